package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"readTimeout"`
		WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	} `mapstructure:"server"`
	Ops struct {
		Port int `mapstructure:"port"` // health/ready/metrics listener
	} `mapstructure:"ops"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
	Export ExportConfig `mapstructure:"export"`
	Events struct {
		Enabled       bool   `mapstructure:"enabled"`
		NATSURL       string `mapstructure:"natsURL"`
		Stream        string `mapstructure:"stream"`
		SubjectPrefix string `mapstructure:"subjectPrefix"`
	} `mapstructure:"events"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Export     WorkerPoolConfig `mapstructure:"export"`
		Preference WorkerPoolConfig `mapstructure:"preference"`
	} `mapstructure:"workerPools"`
}

// ExportConfig holds export engine tuning knobs
type ExportConfig struct {
	SyncThreshold int           `mapstructure:"syncThreshold"` // record count above which exports go async
	MaxRecords    int           `mapstructure:"maxRecords"`    // hard cap per export
	Retention     time.Duration `mapstructure:"retention"`     // how long completed files stay downloadable
	RenderTimeout time.Duration `mapstructure:"renderTimeout"` // per-job render deadline
}

// WorkerPoolConfig holds configuration for an ants worker pool
type WorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to block when submitting if queue full
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)
	v.SetDefault("ops.port", 2112)
	v.SetDefault("metrics.enabled", true)

	// Export defaults
	v.SetDefault("export.syncThreshold", 1000)
	v.SetDefault("export.maxRecords", 100000)
	v.SetDefault("export.retention", 24*time.Hour)
	v.SetDefault("export.renderTimeout", 5*time.Minute)

	// Events defaults (publisher is opt-in)
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.stream", "comm_status_events")
	v.SetDefault("events.subjectPrefix", "v1.comm.status")

	// WorkerPools defaults
	v.SetDefault("workerPools.export.poolSize", 4)
	v.SetDefault("workerPools.export.queueSize", 64)
	v.SetDefault("workerPools.export.maxBlock", time.Second)
	v.SetDefault("workerPools.export.expiryTime", time.Minute)
	v.SetDefault("workerPools.preference.poolSize", 8)
	v.SetDefault("workerPools.preference.queueSize", 1024)
	v.SetDefault("workerPools.preference.maxBlock", time.Second)
	v.SetDefault("workerPools.preference.expiryTime", time.Minute)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// Environment variables override file values
	v.SetEnvPrefix("COMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine: defaults + env carry the day
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.PostgresDSN == "" {
		cfg.Database.PostgresDSN = os.Getenv("POSTGRES_DSN")
	}

	return &cfg, nil
}
