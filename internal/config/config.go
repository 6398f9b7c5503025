package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type PostgresConfig struct {
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"root"`
	Password string `env:"PASSWORD"`
	DBName   string `env:"DB" envDefault:"debtster"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

type RedisConfig struct {
	Enabled     bool          `env:"ENABLED" envDefault:"false"`
	Addr        string        `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" envDefault:"0"`
	MaxRetries  int           `env:"MAX_RETRIES" envDefault:"5"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"10s"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"5s"`
	Prefix      string        `env:"PREFIX" envDefault:"debtster_kpi_"`
}

type StorageConfig struct {
	Driver       string `env:"DRIVER" envDefault:"local"`
	ExportDir    string `env:"EXPORT_DIR" envDefault:"./exports"`
	PublicPrefix string `env:"PUBLIC_PREFIX" envDefault:"/files"`
	ExternalURL  string `env:"EXTERNAL_URL"`
}

type S3Config struct {
	Endpoint        string        `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKeyID     string        `env:"ACCESS_KEY"`
	SecretAccessKey string        `env:"SECRET_KEY"`
	Bucket          string        `env:"BUCKET" envDefault:"exports"`
	UseSSL          bool          `env:"USE_SSL" envDefault:"false"`
	Region          string        `env:"REGION" envDefault:"us-east-1"`
	Prefix          string        `env:"PREFIX" envDefault:"kpi/"`
	URLTTL          time.Duration `env:"URL_TTL" envDefault:"48h"`
}

type AppConfig struct {
	Port             string        `env:"APP_PORT" envDefault:"8010"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	UploadLimitMB    int64         `env:"UPLOAD_LIMIT_MB" envDefault:"32"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	Timezone         string        `env:"APP_TIMEZONE" envDefault:"UTC"`
	BuildConcurrency int           `env:"KPI_BUILD_CONCURRENCY" envDefault:"4"`
	CORSOrigins      []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	Postgres PostgresConfig `envPrefix:"PG_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	S3       S3Config       `envPrefix:"S3_"`
}

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Load reads optional dotenv files (".env" when none are given) and then the
// process environment. Values already set in the environment win.
func Load(files ...string) (AppConfig, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[AppConfig]()
	if err != nil {
		return AppConfig{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("APP_PORT must not be empty"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.UploadLimitMB <= 0 {
		errs = append(errs, errors.New("UPLOAD_LIMIT_MB must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	}
	if !slices.Contains([]string{StorageLocal, StorageS3}, c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageLocal, StorageS3, c.Storage.Driver))
	}
	if c.Storage.Driver == StorageS3 && c.S3.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required for the s3 storage driver"))
	}
	return errors.Join(errs...)
}

// Location is the time zone naive spreadsheet dates are read in.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c AppConfig) UploadLimit() int64 {
	return c.UploadLimitMB << 20
}
