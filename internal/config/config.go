package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Tracing     TracingConfig `mapstructure:"tracing"`
	Redis       RedisConfig
	CORS        CORSConfig        `mapstructure:"cors"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Progression ProgressionConfig `mapstructure:"progression"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ProgressionConfig 成长系统可热更新的参数
type ProgressionConfig struct {
	MaxEnergy             int `mapstructure:"max_energy"`
	EnergyRegenMinutes    int `mapstructure:"energy_regen_minutes"`
	EnergyPollSeconds     int `mapstructure:"energy_poll_seconds"`
	DailyLessonTarget     int `mapstructure:"daily_lesson_target"`
	DailyTestTarget       int `mapstructure:"daily_test_target"`
	MinSecondsPerQuestion int `mapstructure:"min_seconds_per_question"`
	LeaderboardCacheSec   int `mapstructure:"leaderboard_cache_seconds"`
	SubmissionGuardSec    int `mapstructure:"submission_guard_seconds"`
}

func (p ProgressionConfig) RegenInterval() time.Duration {
	return time.Duration(p.EnergyRegenMinutes) * time.Minute
}

func (p ProgressionConfig) PollInterval() time.Duration {
	return time.Duration(p.EnergyPollSeconds) * time.Second
}

func (p ProgressionConfig) LeaderboardTTL() time.Duration {
	return time.Duration(p.LeaderboardCacheSec) * time.Second
}

func (p ProgressionConfig) SubmissionGuardTTL() time.Duration {
	return time.Duration(p.SubmissionGuardSec) * time.Second
}

// DefaultProgression 配置文件缺省时使用的参数
func DefaultProgression() ProgressionConfig {
	return ProgressionConfig{
		MaxEnergy:             6,
		EnergyRegenMinutes:    30,
		EnergyPollSeconds:     60,
		DailyLessonTarget:     2,
		DailyTestTarget:       3,
		MinSecondsPerQuestion: 2,
		LeaderboardCacheSec:   60,
		SubmissionGuardSec:    30,
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultProgression()
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("progression.max_energy", d.MaxEnergy)
	v.SetDefault("progression.energy_regen_minutes", d.EnergyRegenMinutes)
	v.SetDefault("progression.energy_poll_seconds", d.EnergyPollSeconds)
	v.SetDefault("progression.daily_lesson_target", d.DailyLessonTarget)
	v.SetDefault("progression.daily_test_target", d.DailyTestTarget)
	v.SetDefault("progression.min_seconds_per_question", d.MinSecondsPerQuestion)
	v.SetDefault("progression.leaderboard_cache_seconds", d.LeaderboardCacheSec)
	v.SetDefault("progression.submission_guard_seconds", d.SubmissionGuardSec)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LEARNQUEST")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if err := cfg.Progression.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验成长参数，非法配置直接拒绝，避免热更新把线上参数改坏
func (p ProgressionConfig) Validate() error {
	if p.MaxEnergy <= 0 {
		return fmt.Errorf("progression.max_energy must be positive, got %d", p.MaxEnergy)
	}
	if p.EnergyRegenMinutes <= 0 {
		return fmt.Errorf("progression.energy_regen_minutes must be positive, got %d", p.EnergyRegenMinutes)
	}
	if p.DailyLessonTarget <= 0 || p.DailyTestTarget <= 0 {
		return fmt.Errorf("progression daily targets must be positive")
	}
	if p.MinSecondsPerQuestion < 0 {
		return fmt.Errorf("progression.min_seconds_per_question must not be negative")
	}
	return nil
}
