package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig configures the global slog logger.
type LogConfig struct {
	Level     string
	Format    string
	Component string
	Source    bool
}

type Config struct {
	App struct {
		ENV string
	}

	Log LogConfig

	DB struct {
		Driver     string
		DSN        string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SQLitePath string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	Metrics struct {
		Addr string
	}

	Session struct {
		// CodeAttempts bounds how many random codes are tried before giving up.
		CodeAttempts int
		// WriteRetries bounds optimistic read-modify-write retries on a session document.
		WriteRetries int
	}

	Engine EngineConfig
}

// EngineConfig holds the recommendation engine knobs. Fields tagged for YAML
// can be overridden by ENGINE_TUNING_FILE.
type EngineConfig struct {
	ExplorationLimit int           `yaml:"exploration_limit"`
	LearningLimit    int           `yaml:"learning_limit"`
	Oversample       int           `yaml:"oversample"`
	QualityFilter    string        `yaml:"quality_filter"`
	Timeout          time.Duration `yaml:"timeout"`
	Seed             int64         `yaml:"seed"`
	TuningFile       string        `yaml:"-"`
}

func New() *Config {
	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "grpc_server")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.SQLitePath = getEnvDefault("SQLITE_PATH", "moviematch.db")
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "moviematch")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	cfg.Metrics.Addr = strings.TrimSpace(os.Getenv("METRICS_ADDR"))

	// Session coordination
	cfg.Session.CodeAttempts = getEnvInt("SESSION_CODE_ATTEMPTS", 10)
	cfg.Session.WriteRetries = getEnvInt("SESSION_WRITE_RETRIES", 5)

	// Recommendation engine
	cfg.Engine = DefaultEngineConfig()
	cfg.Engine.ExplorationLimit = getEnvInt("ENGINE_EXPLORATION_LIMIT", cfg.Engine.ExplorationLimit)
	cfg.Engine.LearningLimit = getEnvInt("ENGINE_LEARNING_LIMIT", cfg.Engine.LearningLimit)
	cfg.Engine.Oversample = getEnvInt("ENGINE_OVERSAMPLE", cfg.Engine.Oversample)
	cfg.Engine.QualityFilter = getEnvDefault("ENGINE_QUALITY_FILTER", cfg.Engine.QualityFilter)
	cfg.Engine.Timeout = getEnvDuration("RECOMMENDATION_TIMEOUT", cfg.Engine.Timeout)
	cfg.Engine.Seed = int64(getEnvInt("ENGINE_SEED", 0))
	cfg.Engine.TuningFile = strings.TrimSpace(os.Getenv("ENGINE_TUNING_FILE"))

	return cfg
}

// DefaultEngineConfig returns the engine settings used when nothing is overridden.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ExplorationLimit: 10,
		LearningLimit:    30,
		Oversample:       3,
		QualityFilter:    "movie.rating >= prefs.rating_threshold && movie.year >= prefs.year_start",
		Timeout:          15 * time.Second,
	}
}

// LoadEngineTuning overlays the YAML file at path onto the engine config.
// Keys missing from the file keep their current values.
func (c *Config) LoadEngineTuning(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	tuned := c.Engine
	if err := yaml.Unmarshal(data, &tuned); err != nil {
		return fmt.Errorf("parse tuning file: %w", err)
	}
	if tuned.ExplorationLimit <= 0 || tuned.LearningLimit <= tuned.ExplorationLimit {
		return fmt.Errorf("tuning file: stage limits must satisfy 0 < exploration_limit < learning_limit")
	}
	if tuned.Oversample < 1 {
		return fmt.Errorf("tuning file: oversample must be >= 1")
	}
	tuned.TuningFile = path
	c.Engine = tuned
	return nil
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
