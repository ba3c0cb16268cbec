package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Enabled     bool    `mapstructure:"ENABLED"`
		Addr        string  `mapstructure:"ADDR"`
		Protocol    string  `mapstructure:"PROTOCOL"`
		SampleRatio float64 `mapstructure:"SAMPLE_RATIO"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Path           string `mapstructure:"PATH"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Events struct {
		AmqpURL  string `mapstructure:"AMQP_URL"`
		Exchange string `mapstructure:"EXCHANGE"`
	} `mapstructure:"EVENTS"`
	Worker struct {
		Concurrency    int    `mapstructure:"CONCURRENCY"`
		ExpirySchedule string `mapstructure:"EXPIRY_SCHEDULE"`
	} `mapstructure:"WORKER"`
	Incentive Incentive `mapstructure:"INCENTIVE"`
}

// Incentive holds the tunables of the rules engine.
type Incentive struct {
	DefaultCountryCode       string        `mapstructure:"DEFAULT_COUNTRY_CODE"`
	RapidReferralLimit       int           `mapstructure:"RAPID_REFERRAL_LIMIT"`
	RapidReferralWindow      time.Duration `mapstructure:"RAPID_REFERRAL_WINDOW"`
	PayoutMaxRetries         int           `mapstructure:"PAYOUT_MAX_RETRIES"`
	RejectionReasonMinLength int           `mapstructure:"REJECTION_REASON_MIN_LENGTH"`
	DedupeProofEvents        bool          `mapstructure:"DEDUPE_PROOF_EVENTS"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "partner-incentives")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("OTEL.ENABLED", false)
	v.SetDefault("OTEL.ADDR", "localhost:4318")
	v.SetDefault("OTEL.PROTOCOL", "http")
	v.SetDefault("OTEL.SAMPLE_RATIO", 1.0)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.PATH", "incentives.db")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("EVENTS.AMQP_URL", "")
	v.SetDefault("EVENTS.EXCHANGE", "incentive_events")
	v.SetDefault("PYROSCOPE.ADDR", "")
	v.SetDefault("FLAGSMITH.ADDR", "")
	v.SetDefault("FLAGSMITH.API_KEY", "")
	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("WORKER.EXPIRY_SCHEDULE", "@every 15m")
	v.SetDefault("INCENTIVE.DEFAULT_COUNTRY_CODE", "60")
	v.SetDefault("INCENTIVE.RAPID_REFERRAL_LIMIT", 10)
	v.SetDefault("INCENTIVE.RAPID_REFERRAL_WINDOW", time.Hour)
	v.SetDefault("INCENTIVE.PAYOUT_MAX_RETRIES", 3)
	v.SetDefault("INCENTIVE.REJECTION_REASON_MIN_LENGTH", 10)
	v.SetDefault("INCENTIVE.DEDUPE_PROOF_EVENTS", false)
}

// LoadConfig reads ./config.yaml when present and lets environment variables
// override any key (nested keys use "_" in place of "."). A local .env file is
// loaded into the environment first; real environment variables win.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("ignoring unreadable .env file", zap.Error(err))
	}

	cfg, err := Load(viper.New(), ".")
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}
	return cfg
}

// Load is LoadConfig without the process exit, for callers that handle errors.
func Load(v *viper.Viper, paths ...string) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
