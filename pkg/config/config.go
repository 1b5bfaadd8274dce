package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"irdin-archive/pkg/db"
	"irdin-archive/pkg/httpclient"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the application configuration, read from defaults, an optional
// irdin.yaml, a .env file and IRDIN_* environment variables, in increasing priority.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	Site       SiteConfig       `mapstructure:"site"`
	Media      MediaConfig      `mapstructure:"media"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Transcribe TranscribeConfig `mapstructure:"transcribe"`
	Concepts   ConceptsConfig   `mapstructure:"concepts"`
	API        APIConfig        `mapstructure:"api"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
}

type SiteConfig struct {
	ListingURL     string `mapstructure:"listing_url"`
	FeedURL        string `mapstructure:"feed_url"`
	SitemapURL     string `mapstructure:"sitemap_url"`
	ItemPathMarker string `mapstructure:"item_path_marker"`
	UserAgent      string `mapstructure:"user_agent"`

	// ClientProfile picks the request header set: browser, or cloudflare when
	// the site starts answering browser-like requests with 403.
	ClientProfile string `mapstructure:"client_profile"`
}

type MediaConfig struct {
	// Root holds the audios/ directory; track local paths are relative to it.
	Root string `mapstructure:"root"`
}

// AudioDir is where downloaded audio and transcript sidecars live.
func (m MediaConfig) AudioDir() string {
	return filepath.Join(m.Root, "audios")
}

type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"`
	SQLitePath       string        `mapstructure:"sqlite_path"`
	DSN              string        `mapstructure:"dsn"`
	SupabaseURL      string        `mapstructure:"supabase_url"`
	SupabaseKey      string        `mapstructure:"supabase_key"`
	SupabasePassword string        `mapstructure:"supabase_password"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	ConnMaxLife      time.Duration `mapstructure:"conn_max_life"`
}

type TranscribeConfig struct {
	FasterWhisperBin string `mapstructure:"faster_whisper_bin"`
	MLXWhisperBin    string `mapstructure:"mlx_whisper_bin"`
	WhisperCppBin    string `mapstructure:"whisper_cpp_bin"`
	FFmpegBin        string `mapstructure:"ffmpeg_bin"`
	ModelsDir        string `mapstructure:"models_dir"`
	Language         string `mapstructure:"language"`
	Device           string `mapstructure:"device"`
	RemoteBaseURL    string `mapstructure:"remote_base_url"`
	RemoteAPIKey     string `mapstructure:"remote_api_key"`
}

type ConceptsConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type APIConfig struct {
	Port     string        `mapstructure:"port"`
	RPSLimit float64       `mapstructure:"rps_limit"`
	RPSBurst int           `mapstructure:"rps_burst"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "info")

	v.SetDefault("site.listing_url", "https://www.irdin.org.br/site/categoria-produto/palestras/")
	v.SetDefault("site.feed_url", "https://www.irdin.org.br/feed/?post_type=product")
	v.SetDefault("site.sitemap_url", "https://www.irdin.org.br/product-sitemap.xml")
	v.SetDefault("site.item_path_marker", "/produtos/")
	v.SetDefault("site.client_profile", string(httpclient.BrowserClient))

	v.SetDefault("media.root", "media")

	v.SetDefault("database.driver", db.DriverSQLite)
	v.SetDefault("database.sqlite_path", "irdin.sqlite3")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_life", time.Hour)

	v.SetDefault("transcribe.faster_whisper_bin", "whisper-ctranslate2")
	v.SetDefault("transcribe.mlx_whisper_bin", "mlx_whisper")
	v.SetDefault("transcribe.whisper_cpp_bin", "whisper-cli")
	v.SetDefault("transcribe.ffmpeg_bin", "ffmpeg")
	v.SetDefault("transcribe.models_dir", "models")
	v.SetDefault("transcribe.language", "pt")
	v.SetDefault("transcribe.device", "auto")
	v.SetDefault("transcribe.remote_base_url", "https://api.groq.com/openai/v1")

	v.SetDefault("concepts.base_url", "http://localhost:11434")

	v.SetDefault("api.port", "8080")
	v.SetDefault("api.rps_limit", 10.0)
	v.SetDefault("api.rps_burst", 20)
	v.SetDefault("api.cache_ttl", 30*time.Second)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "irdin")
	v.SetDefault("mongo.collection", "sources")
}

// Load reads the configuration. configFile may be empty, in which case
// ./irdin.yaml is used when present.
func Load(logger *zap.Logger, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env file", zap.Error(err))
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IRDIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("irdin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		logger.Info("loaded config file", zap.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	profile, err := httpclient.ParseClientType(cfg.Site.ClientProfile)
	if err != nil {
		return nil, fmt.Errorf("site.client_profile: %w", err)
	}
	cfg.Site.ClientProfile = string(profile)

	// Groq keys are commonly exported under their own name.
	if cfg.Transcribe.RemoteAPIKey == "" {
		cfg.Transcribe.RemoteAPIKey = os.Getenv("GROQ_API_KEY")
	}

	return &cfg, nil
}

// DB translates the database section into store settings.
func (c *Config) DB() db.Config {
	return db.Config{
		Driver:     c.Database.Driver,
		SQLitePath: c.Database.SQLitePath,
		Postgres: db.PostgresConfig{
			DSN:          c.Database.DSN,
			MaxOpenConns: c.Database.MaxOpenConns,
			ConnMaxLife:  c.Database.ConnMaxLife,
		},
		Supabase: db.SupabaseConfig{
			ConnectionString: c.Database.DSN,
			ProjectURL:       c.Database.SupabaseURL,
			APIKey:           c.Database.SupabaseKey,
			Password:         c.Database.SupabasePassword,
			MaxOpenConns:     c.Database.MaxOpenConns,
			ConnMaxLife:      c.Database.ConnMaxLife,
		},
	}
}
