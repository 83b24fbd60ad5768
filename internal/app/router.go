package app

import (
	"learnquest_backend/docs"
	"learnquest_backend/internal/config"
	"learnquest_backend/internal/middleware"
	"learnquest_backend/internal/model"
	"learnquest_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/leaderboard", c.leaderboard.GetLeaderboard)

		// 只能访问自己的数据，管理员除外
		users := authGroup.Group("/users/:id")
		users.Use(middleware.OwnerMiddleware())
		a.registerProgressionRoutes(users, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, repos, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerProgressionRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.progression.GetProfile)
	rg.PATCH("/stats", c.progression.UpdateStats)
	rg.GET("/energy", c.progression.GetEnergy)

	// 测试与课程
	rg.POST("/test-results", c.progression.SubmitTestResult)
	rg.POST("/lessons/:lessonId/complete", c.progression.CompleteLesson)

	// 每日任务 / 连续打卡 / 里程碑
	rg.GET("/daily-progress", c.progression.GetDailyProgress)
	rg.POST("/daily-progress/claim", c.progression.ClaimDailyTask)
	rg.POST("/streak/claim", c.progression.ClaimWeeklyReward)
	rg.GET("/milestones", c.progression.ListMilestones)
	rg.POST("/milestones/:code/claim", c.progression.ClaimMilestone)
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin), middleware.ActivityMiddleware(repos.user))
	{
		admin.POST("/users/:id/reset-progress", c.progression.ResetProgress)
	}
}
