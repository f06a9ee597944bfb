package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Tenant struct {
		ID                   string `mapstructure:"id"`
		DefaultCountryPrefix string `mapstructure:"defaultCountryPrefix"`
		DefaultTimezone      string `mapstructure:"defaultTimezone"`
	} `mapstructure:"tenant"`
	Provider struct {
		Default string        `mapstructure:"default"` // adapter key used when tenant credentials carry none
		Timeout time.Duration `mapstructure:"timeout"` // upper bound for a single BSP call
		Twilio  struct {
			BaseURL    string `mapstructure:"baseURL"`
			AccountSID string `mapstructure:"accountSID"`
			AuthToken  string `mapstructure:"authToken"`
			FromNumber string `mapstructure:"fromNumber"`
		} `mapstructure:"twilio"`
	} `mapstructure:"provider"`
	Scheduler struct {
		Interval   time.Duration `mapstructure:"interval"`   // sweep period for due schedules
		BatchLimit int           `mapstructure:"batchLimit"` // max due rows claimed per sweep
	} `mapstructure:"scheduler"`
	Bulk struct {
		BatchSize  int           `mapstructure:"batchSize"`  // recipients dispatched between throttle pauses
		BatchDelay time.Duration `mapstructure:"batchDelay"` // pause inserted after each batch
	} `mapstructure:"bulk"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Dispatch DispatchWorkerPoolConfig `mapstructure:"dispatch"`
	} `mapstructure:"workerPools"`
}

// DispatchWorkerPoolConfig holds configuration for the schedule dispatch worker pool
type DispatchWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to block when submitting if queue full
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	v.SetDefault("database.postgresAutoMigrate", true)

	v.SetDefault("tenant.defaultCountryPrefix", "+40")
	v.SetDefault("tenant.defaultTimezone", "Europe/Bucharest")

	v.SetDefault("provider.default", "twilio")
	v.SetDefault("provider.timeout", 15*time.Second)
	v.SetDefault("provider.twilio.baseURL", "https://api.twilio.com")

	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("scheduler.batchLimit", 50)

	v.SetDefault("bulk.batchSize", 10)
	v.SetDefault("bulk.batchDelay", 100*time.Millisecond)

	// WorkerPools Defaults
	v.SetDefault("workerPools.dispatch.poolSize", 10)
	v.SetDefault("workerPools.dispatch.queueSize", 1000)
	v.SetDefault("workerPools.dispatch.maxBlock", time.Second)
	v.SetDefault("workerPools.dispatch.expiryTime", time.Minute)

	// Config file settings
	v.SetConfigName("default") // name of config file (without extension)
	v.SetConfigType("yaml")    // REQUIRED if the config file does not have the extension in the name

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("/etc/wa-messaging")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if tenant := os.Getenv("TENANT_ID"); tenant != "" {
		v.Set("tenant.id", tenant)
	}
	if sid := os.Getenv("TWILIO_ACCOUNT_SID"); sid != "" {
		v.Set("provider.twilio.accountSID", sid)
	}
	if token := os.Getenv("TWILIO_AUTH_TOKEN"); token != "" {
		v.Set("provider.twilio.authToken", token)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
