package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "CHAPTERHOUSE"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = "sqlite"
	defaultDatabaseDSN       = "chapterhouse.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultSessionIssuer     = "chapterhouse"
	defaultCookieName        = "chapterhouse_session"
	defaultBlobDriver        = "dir"
	defaultBlobDir           = "uploads"
	defaultBlobPublicPrefix  = "/uploads"
	defaultBlobMaxBytes      = 20 << 20
	defaultCommentsPerMinute = 10
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	DatabaseDriver    string
	DatabaseDSN       string
	LogLevel          string
	LogFormat         string
	SessionSecret     string
	SessionIssuer     string
	SessionCookieName string
	Blob              BlobConfig
	RedisURL          string
	CommentsPerMinute int
}

// BlobConfig selects and configures the upload store.
type BlobConfig struct {
	Driver         string
	Dir            string
	PublicPrefix   string
	MaxBytes       int64
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("blob.driver", defaultBlobDriver)
	configViper.SetDefault("blob.dir", defaultBlobDir)
	configViper.SetDefault("blob.public_prefix", defaultBlobPublicPrefix)
	configViper.SetDefault("blob.max_bytes", defaultBlobMaxBytes)
	configViper.SetDefault("blob.minio.use_ssl", true)
	configViper.SetDefault("ratelimit.comments_per_minute", defaultCommentsPerMinute)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    configViper.GetStringSlice("http.allowed_origins"),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:       configViper.GetString("database.dsn"),
		LogLevel:          configViper.GetString("log.level"),
		LogFormat:         configViper.GetString("log.format"),
		SessionSecret:     configViper.GetString("session.signing_secret"),
		SessionIssuer:     configViper.GetString("session.issuer"),
		SessionCookieName: configViper.GetString("session.cookie_name"),
		Blob: BlobConfig{
			Driver:         strings.ToLower(strings.TrimSpace(configViper.GetString("blob.driver"))),
			Dir:            configViper.GetString("blob.dir"),
			PublicPrefix:   configViper.GetString("blob.public_prefix"),
			MaxBytes:       configViper.GetInt64("blob.max_bytes"),
			MinioEndpoint:  configViper.GetString("blob.minio.endpoint"),
			MinioAccessKey: configViper.GetString("blob.minio.access_key"),
			MinioSecretKey: configViper.GetString("blob.minio.secret_key"),
			MinioBucket:    configViper.GetString("blob.minio.bucket"),
			MinioUseSSL:    configViper.GetBool("blob.minio.use_ssl"),
			MinioPublicURL: configViper.GetString("blob.minio.public_url"),
		},
		RedisURL:          configViper.GetString("redis.url"),
		CommentsPerMinute: configViper.GetInt("ratelimit.comments_per_minute"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadDatabase parses only the keys needed to open the store, for commands that do not
// serve HTTP.
func LoadDatabase(configViper *viper.Viper) (driver, dsn string, err error) {
	driver = strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver")))
	dsn = configViper.GetString("database.dsn")
	if err := validateDatabase(driver, dsn); err != nil {
		return "", "", err
	}
	return driver, dsn, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if err := validateDatabase(c.DatabaseDriver, c.DatabaseDSN); err != nil {
		return err
	}
	switch c.Blob.Driver {
	case "dir":
		if strings.TrimSpace(c.Blob.Dir) == "" {
			return fmt.Errorf("blob.dir is required when blob.driver is dir")
		}
	case "minio":
		if strings.TrimSpace(c.Blob.MinioEndpoint) == "" || strings.TrimSpace(c.Blob.MinioBucket) == "" {
			return fmt.Errorf("blob.minio.endpoint and blob.minio.bucket are required when blob.driver is minio")
		}
	default:
		return fmt.Errorf("blob.driver must be dir or minio, got %q", c.Blob.Driver)
	}
	if c.CommentsPerMinute < 0 {
		return fmt.Errorf("ratelimit.comments_per_minute must not be negative")
	}
	return nil
}

func validateDatabase(driver, dsn string) error {
	switch driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return nil
}
