package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Extraction providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Storage backends
const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageNone  = "none"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Invoice    InvoiceConfig    `mapstructure:"invoice"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	// PublicURL prefixes locally signed file URLs
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// JobsConfig holds queue and dispatcher settings
type JobsConfig struct {
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollerEnabled   bool          `mapstructure:"poller_enabled"`
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	NotifyTimeout   time.Duration `mapstructure:"notify_timeout"`
}

// ExtractionConfig holds document-understanding model settings
type ExtractionConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	GoogleAPIKey string        `mapstructure:"google_api_key"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Temperature  float32       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PerPage      bool          `mapstructure:"per_page"`
	MaxPages     int           `mapstructure:"max_pages"`
	DPI          float64       `mapstructure:"dpi"`
	JPEGQuality  int           `mapstructure:"jpeg_quality"`
}

// StorageConfig selects where original documents are retained
type StorageConfig struct {
	Backend    string        `mapstructure:"backend"`
	BaseDir    string        `mapstructure:"base_dir"`
	SigningKey string        `mapstructure:"signing_key"`
	Bucket     string        `mapstructure:"bucket"`
	Region     string        `mapstructure:"region"`
	Endpoint   string        `mapstructure:"endpoint"`
	Prefix     string        `mapstructure:"prefix"`
	URLTTL     time.Duration `mapstructure:"url_ttl"`
}

// AuthConfig holds identity and cron settings
type AuthConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	Issuer     string `mapstructure:"issuer"`
	CronSecret string `mapstructure:"cron_secret"`
	TrialDays  int    `mapstructure:"trial_days"`
}

// LarkConfig holds the optional ops notifier settings
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	OpsChatID string `mapstructure:"ops_chat_id"`
	BaseURL   string `mapstructure:"base_url"`
}

// Enabled reports whether any Lark setting was provided
func (l LarkConfig) Enabled() bool {
	return l.AppID != "" || l.AppSecret != "" || l.OpsChatID != ""
}

// InvoiceConfig holds reconciliation defaults
type InvoiceConfig struct {
	BaseCurrency string `mapstructure:"base_currency"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads .env (if present), the YAML file and the environment.
// An empty configPath looks for configs/config.yaml and tolerates its absence.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("FACTURIA")
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/invoices.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 10*time.Second)

	v.SetDefault("jobs.stale_after", 15*time.Minute)
	v.SetDefault("jobs.poll_interval", 30*time.Second)
	v.SetDefault("jobs.poller_enabled", false)
	v.SetDefault("jobs.max_payload_bytes", 20<<20)
	v.SetDefault("jobs.dispatch_timeout", 5*time.Minute)
	v.SetDefault("jobs.notify_timeout", 10*time.Second)

	v.SetDefault("extraction.provider", ProviderGemini)
	v.SetDefault("extraction.temperature", 0.1)
	v.SetDefault("extraction.max_tokens", 2048)
	v.SetDefault("extraction.timeout", 90*time.Second)
	v.SetDefault("extraction.per_page", false)
	v.SetDefault("extraction.max_pages", 20)
	v.SetDefault("extraction.dpi", 150)
	v.SetDefault("extraction.jpeg_quality", 85)

	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.base_dir", "data/files")
	v.SetDefault("storage.region", "eu-west-1")
	v.SetDefault("storage.url_ttl", 15*time.Minute)

	v.SetDefault("auth.trial_days", 14)

	v.SetDefault("invoice.base_currency", "€")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the conventional secret names alongside FACTURIA_* keys
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"extraction.google_api_key": "GOOGLE_API_KEY",
		"extraction.openai_api_key": "OPENAI_API_KEY",
		"auth.cron_secret":          "CRON_SECRET",
		"auth.jwt_secret":           "JWT_SECRET",
		"database.dsn":              "DATABASE_DSN",
		"storage.bucket":            "S3_BUCKET",
		"storage.signing_key":       "STORAGE_SIGNING_KEY",
		"lark.app_id":               "LARK_APP_ID",
		"lark.app_secret":           "LARK_APP_SECRET",
		"lark.ops_chat_id":          "LARK_OPS_CHAT_ID",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "FACTURIA_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate checks the settings every process needs
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite3")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn (DATABASE_DSN) is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	switch c.Extraction.Provider {
	case ProviderGemini:
		if c.Extraction.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for the gemini provider")
		}
	case ProviderOpenAI:
		if c.Extraction.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	default:
		return fmt.Errorf("unsupported extraction.provider %q", c.Extraction.Provider)
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for local storage")
		}
		if c.Storage.SigningKey == "" {
			return fmt.Errorf("storage.signing_key (STORAGE_SIGNING_KEY) is required for local storage")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket (S3_BUCKET) is required for s3 storage")
		}
	case StorageNone:
	default:
		return fmt.Errorf("unsupported storage.backend %q", c.Storage.Backend)
	}

	if c.Lark.Enabled() && (c.Lark.AppID == "" || c.Lark.AppSecret == "" || c.Lark.OpsChatID == "") {
		return fmt.Errorf("lark.app_id, lark.app_secret and lark.ops_chat_id must be set together")
	}

	if c.Jobs.MaxPayloadBytes <= 0 {
		return fmt.Errorf("jobs.max_payload_bytes must be positive")
	}

	return nil
}

// ValidateServer checks the additional settings the HTTP server needs
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	return nil
}
