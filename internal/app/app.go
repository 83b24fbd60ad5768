package app

import (
	"context"
	"errors"
	"learnquest_backend/internal/config"
	"learnquest_backend/internal/controller"
	"learnquest_backend/internal/repository"
	"learnquest_backend/internal/service"
	"learnquest_backend/pkg/configwatcher"
	"learnquest_backend/pkg/database"
	"learnquest_backend/pkg/logger"
	"learnquest_backend/pkg/monitoring"
	"learnquest_backend/pkg/security"
	"learnquest_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user      *repository.UserRepository
	activity  *repository.ActivityRepository
	daily     *repository.DailyProgressRepository
	result    *repository.TestResultRepository
	lesson    *repository.LessonRepository
	milestone *repository.MilestoneRepository
}

type services struct {
	tunables    *service.Tunables
	auth        *service.AuthService
	leaderboard *service.LeaderboardService
	progression *service.ProgressionService
}

type controllers struct {
	auth        *controller.AuthController
	progression *controller.ProgressionController
	leaderboard *controller.LeaderboardController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 热更新入口，依次通知各回调
func (a *App) ApplyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		activity:  repository.NewActivityRepository(db),
		daily:     repository.NewDailyProgressRepository(db),
		result:    repository.NewTestResultRepository(db),
		lesson:    repository.NewLessonRepository(db),
		milestone: repository.NewMilestoneRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	s.tunables = service.NewTunables(cfg.Progression)
	s.auth = service.NewAuthService(repos.user, cfg, s.tunables)
	s.leaderboard = service.NewLeaderboardService(repos.user, rdb, s.tunables)
	s.progression = service.NewProgressionService(
		db,
		repos.user,
		repos.activity,
		repos.daily,
		repos.result,
		repos.lesson,
		repos.milestone,
		rdb,
		s.tunables,
		s.leaderboard,
	)

	// 成长参数支持热更新，其余配置需要重启
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.tunables.Update(newCfg.Progression)
		logger.Log.Info("progression tunables updated",
			zap.Int("maxEnergy", newCfg.Progression.MaxEnergy),
			zap.Int("regenMinutes", newCfg.Progression.EnergyRegenMinutes))
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:        controller.NewAuthController(s.auth),
		progression: controller.NewProgressionController(s.progression),
		leaderboard: controller.NewLeaderboardController(s.leaderboard),
		health:      controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if maxRequests > 0 && window > 0 {
		router.Use(security.RateLimiter(maxRequests, window))
	}

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// Build 在已有连接上组装路由，测试里直接传入 sqlite
func Build(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *App {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, db, rdb)
	controllers := app.initControllers(app.services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)
	return app
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	migrate := cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Redis 只用于缓存和提交防抖，不可用时降级运行
	rdb, err := database.InitRedis(&cfg.Redis)
	switch {
	case errors.Is(err, database.ErrRedisDisabled):
		logger.Log.Info("Redis not configured, running without cache")
	case err != nil:
		logger.Log.Warn("Redis unavailable, running without cache", zap.Error(err))
	}

	app := Build(cfg, db, rdb)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("learnquest-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	return app
}

// Run 启动 HTTP 服务并监听配置变更，收到退出信号后优雅关闭
func (a *App) Run(configFile string) {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configFile != "" {
		go func() {
			if err := configwatcher.WatchConfig(ctx, configFile, a.ApplyConfig); err != nil {
				logger.Log.Error("config watcher stopped", zap.Error(err))
			}
		}()
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	// 等待请求处理完成（设置5秒的超时时间）
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
