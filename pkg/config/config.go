package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Export sources.
const (
	ExportSQLite  = "sqlite"
	ExportMongo   = "mongo"
	ExportDataset = "dataset"
)

// exportSources maps each content backend to the export source that reads
// what it stores.
var exportSources = map[string]string{
	"file":   ExportDataset,
	"sqlite": ExportSQLite,
	"mongo":  ExportMongo,
}

// Option adjusts the viper instance before the config is unmarshalled.
type Option func(v *viper.Viper) error

// WithFlag lets a command-line flag override key when it was set.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		if flag == nil {
			return nil
		}
		return v.BindPFlag(key, flag)
	}
}

// Config holds the application configuration.
type Config struct {
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`
	ServerPort string `mapstructure:"SERVER_PORT"`

	DataDir     string `mapstructure:"DATA_DIR"`
	DatasetPath string `mapstructure:"DATASET_PATH"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	PostgresURL string `mapstructure:"POSTGRES_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	// ContentBackend selects where harvested items are stored: file, sqlite or mongo.
	ContentBackend string        `mapstructure:"CONTENT_BACKEND"`
	LockBackend    string        `mapstructure:"LOCK_BACKEND"`
	LockTTL        time.Duration `mapstructure:"LOCK_TTL"`

	CookieMaxAge       time.Duration `mapstructure:"COOKIE_MAX_AGE"`
	WechatCookieMaxAge time.Duration `mapstructure:"WECHAT_COOKIE_MAX_AGE"`
	MinCookies         int           `mapstructure:"MIN_COOKIES"`
	LoginWait          time.Duration `mapstructure:"LOGIN_WAIT"`
	Headless           bool          `mapstructure:"HEADLESS"`

	FetchTimeout  time.Duration `mapstructure:"FETCH_TIMEOUT"`
	MinDelay      time.Duration `mapstructure:"MIN_DELAY"`
	MaxDelay      time.Duration `mapstructure:"MAX_DELAY"`
	MinBodyBytes  int           `mapstructure:"MIN_BODY_BYTES"`
	CrawlWorkers  int           `mapstructure:"CRAWL_WORKERS"`
	SaveSnapshots bool          `mapstructure:"SAVE_SNAPSHOTS"`
	Proxies       []string      `mapstructure:"PROXIES"`

	WechatAccounts []string `mapstructure:"WECHAT_ACCOUNTS"`
	MaxArticles    int      `mapstructure:"MAX_ARTICLES"`

	SpiderMaxDepth      int `mapstructure:"SPIDER_MAX_DEPTH"`
	SpiderMaxCandidates int `mapstructure:"SPIDER_MAX_CANDIDATES"`

	// ExportSource selects the staging data read by the exporter: sqlite, mongo or dataset.
	// Empty means the source matching ContentBackend.
	ExportSource    string `mapstructure:"EXPORT_SOURCE"`
	ExportBatchSize int    `mapstructure:"EXPORT_BATCH_SIZE"`
	CursorBackend   string `mapstructure:"CURSOR_BACKEND"`
	CursorFile      string `mapstructure:"CURSOR_FILE"`

	Schedule string `mapstructure:"SCHEDULE"`
}

// Load reads configuration from an env-style file (if present) and environment variables.
func Load(configFile string, opts ...Option) (*Config, error) {
	v := viper.New()
	if configFile == "" {
		configFile = ".env"
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Missing file is fine: production runs are configured through the environment.
	_ = v.ReadInConfig()

	setDefaults(v)
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("bind config option: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.ExportSource == "" {
		cfg.ExportSource = exportSources[cfg.ContentBackend]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SERVER_PORT", "8080")

	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("DATASET_PATH", "data/merged.json")
	v.SetDefault("SQLITE_PATH", "data/staging.db")

	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "harvester")

	v.SetDefault("CONTENT_BACKEND", "file")
	v.SetDefault("LOCK_BACKEND", "file")
	v.SetDefault("LOCK_TTL", "6h")

	v.SetDefault("COOKIE_MAX_AGE", "6h")
	v.SetDefault("WECHAT_COOKIE_MAX_AGE", "60h")
	v.SetDefault("MIN_COOKIES", 5)
	v.SetDefault("LOGIN_WAIT", "2m")
	v.SetDefault("HEADLESS", true)

	v.SetDefault("FETCH_TIMEOUT", "30s")
	v.SetDefault("MIN_DELAY", "3s")
	v.SetDefault("MAX_DELAY", "8s")
	v.SetDefault("MIN_BODY_BYTES", 1000)
	v.SetDefault("CRAWL_WORKERS", 1)
	v.SetDefault("SAVE_SNAPSHOTS", true)
	v.SetDefault("PROXIES", []string{})

	v.SetDefault("WECHAT_ACCOUNTS", []string{})
	v.SetDefault("MAX_ARTICLES", 50)

	v.SetDefault("SPIDER_MAX_DEPTH", 3)
	v.SetDefault("SPIDER_MAX_CANDIDATES", 1000)

	v.SetDefault("EXPORT_SOURCE", "")
	v.SetDefault("EXPORT_BATCH_SIZE", 100)
	v.SetDefault("CURSOR_BACKEND", "env")
	v.SetDefault("CURSOR_FILE", ".env.export")

	v.SetDefault("SCHEDULE", "0 */4 * * *")
}

// Validate checks value ranges that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch {
	case c.MinDelay < 0 || c.MaxDelay < c.MinDelay:
		return fmt.Errorf("invalid delay range %s..%s", c.MinDelay, c.MaxDelay)
	case c.FetchTimeout <= 0:
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	case c.LockTTL < 0:
		return fmt.Errorf("lock ttl must not be negative, got %s", c.LockTTL)
	case c.CrawlWorkers < 1:
		return fmt.Errorf("crawl workers must be at least 1, got %d", c.CrawlWorkers)
	case c.ExportBatchSize < 1:
		return fmt.Errorf("export batch size must be at least 1, got %d", c.ExportBatchSize)
	}
	want, ok := exportSources[c.ContentBackend]
	if !ok {
		return fmt.Errorf("unknown content backend %q", c.ContentBackend)
	}
	if c.ExportSource != want {
		return fmt.Errorf("export source %q cannot read the %s content backend, use %q", c.ExportSource, c.ContentBackend, want)
	}
	return nil
}

// CookieMaxAgeFor returns the cookie lifetime for a source.
func (c *Config) CookieMaxAgeFor(source string) time.Duration {
	if source == "wechat" {
		return c.WechatCookieMaxAge
	}
	return c.CookieMaxAge
}
