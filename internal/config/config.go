package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Workshop  WorkshopConfig  `mapstructure:"workshop"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	Debug              bool          `mapstructure:"debug"`
	AllowedHosts       []string      `mapstructure:"allowed_hosts"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// UsePostgres POSTGRES_HOST 未设置时回落到本地 SQLite 文件库
func (d DatabaseConfig) UsePostgres() bool {
	return d.Host != ""
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

type JWTConfig struct {
	Secret            string        `mapstructure:"secret"`
	AccessTokenExpire time.Duration `mapstructure:"access_token_expire"`
	Issuer            string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkshopConfig 车间业务参数
type WorkshopConfig struct {
	MaxActiveTasksPerOperator int  `mapstructure:"max_active_tasks_per_operator"`
	StrictStockReduce         bool `mapstructure:"strict_stock_reduce"`
	DeadlineWarningDays       int  `mapstructure:"deadline_warning_days"`
}

// RateLimitConfig 各类请求的每小时限额
type RateLimitConfig struct {
	AnonPerHour     int `mapstructure:"anon_per_hour"`
	UserPerHour     int `mapstructure:"user_per_hour"`
	ApprovalPerHour int `mapstructure:"approval_per_hour"`
	ExportPerHour   int `mapstructure:"export_per_hour"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在，使用环境变量
	}

	setDefaults(v)
	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if !cfg.Server.Debug && cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("SECRET_KEY 未设置，生产模式下必须配置")
	}
	if cfg.Server.Debug && cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "dev-insecure-secret"
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "workorder")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "data/workorder.db")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("jwt.access_token_expire", "24h")
	v.SetDefault("jwt.issuer", "work-order")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("workshop.max_active_tasks_per_operator", 10)
	v.SetDefault("workshop.strict_stock_reduce", false)
	v.SetDefault("workshop.deadline_warning_days", 3)

	v.SetDefault("rate_limit.anon_per_hour", 100)
	v.SetDefault("rate_limit.user_per_hour", 1000)
	v.SetDefault("rate_limit.approval_per_hour", 10)
	v.SetDefault("rate_limit.export_per_hour", 20)
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.debug", "DEBUG")
	v.BindEnv("server.allowed_hosts", "ALLOWED_HOSTS")
	v.BindEnv("server.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")

	// Database
	v.BindEnv("database.host", "POSTGRES_HOST")
	v.BindEnv("database.port", "POSTGRES_PORT")
	v.BindEnv("database.user", "POSTGRES_USER")
	v.BindEnv("database.password", "POSTGRES_PASSWORD")
	v.BindEnv("database.dbname", "POSTGRES_DB")
	v.BindEnv("database.sqlite_path", "SQLITE_PATH")

	// Redis / RabbitMQ
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("rabbitmq.url", "RABBITMQ_URL")

	// JWT
	v.BindEnv("jwt.secret", "SECRET_KEY")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")

	// 车间参数
	v.BindEnv("workshop.max_active_tasks_per_operator", "MAX_ACTIVE_TASKS_PER_OPERATOR")
	v.BindEnv("workshop.strict_stock_reduce", "STRICT_STOCK_REDUCE")
	v.BindEnv("workshop.deadline_warning_days", "DEADLINE_WARNING_DAYS")

	// 限流
	v.BindEnv("rate_limit.anon_per_hour", "RATE_ANON_PER_HOUR")
	v.BindEnv("rate_limit.user_per_hour", "RATE_USER_PER_HOUR")
	v.BindEnv("rate_limit.approval_per_hour", "RATE_APPROVAL_PER_HOUR")
	v.BindEnv("rate_limit.export_per_hour", "RATE_EXPORT_PER_HOUR")
}

// GetEnvOrDefault 获取环境变量，如果不存在则返回默认值
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
