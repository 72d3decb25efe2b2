// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Search       SearchConfig       `mapstructure:"search"`
	Content      ContentConfig      `mapstructure:"content"`
	Render       RenderConfig       `mapstructure:"render"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Export       ExportConfig       `mapstructure:"export"`
	ContentStore ContentStoreConfig `mapstructure:"content_store"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SearchConfig governs listing collection from the search provider.
type SearchConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	PageSize        int           `mapstructure:"page_size"`
	MaxPages        int           `mapstructure:"max_pages"`
	UserAgent       string        `mapstructure:"user_agent"`
	AcceptLanguage  string        `mapstructure:"accept_language"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ResultSelector  string        `mapstructure:"result_selector"`
	TitleSelector   string        `mapstructure:"title_selector"`
	SnippetSelector string        `mapstructure:"snippet_selector"`
	BlockedHosts    []string      `mapstructure:"blocked_hosts"`
	RelevancePolicy string        `mapstructure:"relevance_policy"`
}

// ContentConfig governs the page-content fetch phase.
type ContentConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	Workers        int           `mapstructure:"workers"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	HostQPS        float64       `mapstructure:"host_qps"`
	HostBurst      int           `mapstructure:"host_burst"`
}

// RenderConfig configures the headless render promotion path.
type RenderConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	NavTimeout   time.Duration `mapstructure:"nav_timeout"`
	DomainQPS    float64       `mapstructure:"domain_qps"`
	MinTextBytes int           `mapstructure:"min_text_bytes"`
	Markers      []string      `mapstructure:"markers"`
}

// RegistryConfig selects the seen-URL registry backend and its scope.
type RegistryConfig struct {
	Provider string `mapstructure:"provider"`
	Scope    string `mapstructure:"scope"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig controls access to the relational result sink.
type DatabaseConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ExportConfig selects the tabular export sink.
type ExportConfig struct {
	Provider string `mapstructure:"provider"`
	Dir      string `mapstructure:"dir"`
}

// ContentStoreConfig selects where harvested page text lands.
type ContentStoreConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	Table     string `mapstructure:"table"`
}

// QueueConfig holds metadata for publish-subscribe notifications and intake.
type QueueConfig struct {
	Provider     string `mapstructure:"provider"`
	ProjectID    string `mapstructure:"project_id"`
	TopicName    string `mapstructure:"topic_name"`
	Subscription string `mapstructure:"subscription"`
}

// LoggingConfig tunes the zap logger.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a Config out of an initialized Viper.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// SetDefaults registers every configuration default on the given Viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 15*time.Minute)

	v.SetDefault("search.base_url", "https://www.bing.com/search")
	v.SetDefault("search.page_size", 10)
	v.SetDefault("search.max_pages", 9)
	v.SetDefault("search.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36")
	v.SetDefault("search.accept_language", "en-US,en;q=0.9")
	v.SetDefault("search.request_timeout", 10*time.Second)
	v.SetDefault("search.result_selector", "li.b_algo")
	v.SetDefault("search.title_selector", "h2 a")
	v.SetDefault("search.snippet_selector", "div.b_caption p")
	v.SetDefault("search.blocked_hosts", []string{"bing.com", "go.microsoft.com"})
	v.SetDefault("search.relevance_policy", "keyword")

	v.SetDefault("content.request_timeout", 10*time.Second)
	v.SetDefault("content.max_retries", 3)
	v.SetDefault("content.backoff_base", 5*time.Second)
	v.SetDefault("content.workers", 16)
	v.SetDefault("content.respect_robots", false)
	v.SetDefault("content.max_body_bytes", 5*1024*1024)
	v.SetDefault("content.host_qps", 1.0)
	v.SetDefault("content.host_burst", 2)

	v.SetDefault("render.enabled", false)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.nav_timeout", 25*time.Second)
	v.SetDefault("render.domain_qps", 0.5)
	v.SetDefault("render.min_text_bytes", 200)
	v.SetDefault("render.markers", []string{
		"__NEXT_DATA__",
		"data-reactroot",
		"ng-app",
		"window.__APOLLO_STATE__",
	})

	v.SetDefault("registry.provider", "memory")
	v.SetDefault("registry.scope", "run")
	v.SetDefault("registry.addr", "localhost:6379")
	v.SetDefault("registry.db", 0)

	v.SetDefault("database.provider", "noop")
	v.SetDefault("database.table", "search_results")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("export.provider", "csv")
	v.SetDefault("export.dir", "exports")

	v.SetDefault("content_store.provider", "fs")
	v.SetDefault("content_store.dir", "scraped_pages")
	v.SetDefault("content_store.prefix", "pages")
	v.SetDefault("content_store.table", "page_contents")

	v.SetDefault("queue.provider", "noop")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "harvester")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Search.BaseURL == "" {
		return fmt.Errorf("search.base_url must be set")
	}
	if c.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be > 0")
	}
	if c.Search.MaxPages <= 0 {
		return fmt.Errorf("search.max_pages must be > 0")
	}
	if c.Content.MaxRetries <= 0 {
		return fmt.Errorf("content.max_retries must be > 0")
	}
	if c.Content.RequestTimeout <= 0 {
		return fmt.Errorf("content.request_timeout must be > 0")
	}
	if c.Content.Workers <= 0 {
		return fmt.Errorf("content.workers must be > 0")
	}
	if c.Registry.Provider == "redis" && c.Registry.Addr == "" {
		return fmt.Errorf("registry.addr must be set when registry.provider is redis")
	}
	if scope := c.Registry.Scope; scope != "run" && scope != "query" {
		return fmt.Errorf("registry.scope must be run or query, got %q", scope)
	}
	if c.Database.Provider == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set when database.provider is postgres")
	}
	if c.ContentStore.Provider == "gcs" && c.ContentStore.GCSBucket == "" {
		return fmt.Errorf("content_store.gcs_bucket must be set when content_store.provider is gcs")
	}
	if c.Queue.Provider == "pubsub" && (c.Queue.ProjectID == "" || c.Queue.TopicName == "") {
		return fmt.Errorf("queue.project_id and queue.topic_name must be set when queue.provider is pubsub")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when render is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}
