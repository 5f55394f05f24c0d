// Package config loads the portal settings: defaults, then an optional YAML
// file, then PORTAL_* environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "PORTAL_"

const (
	ModeRemote  = "remote"
	ModeOffline = "offline"
)

type Config struct {
	Mode     string         `koanf:"mode"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	List     ListConfig     `koanf:"list"`
	Chat     ChatConfig     `koanf:"chat"`
	Feeds    FeedsConfig    `koanf:"feeds"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Addr        string `koanf:"addr"`
	LoginURL    string `koanf:"login_url"`
	UploadsDir  string `koanf:"uploads_dir"`
	CORSOrigins string `koanf:"cors_origins"`
	// ChatRateLimit is the number of chat requests per minute per IP.
	ChatRateLimit int `koanf:"chat_rate_limit"`
}

type APIConfig struct {
	BaseURL    string        `koanf:"base_url"`
	PostsPath  string        `koanf:"posts_path"`
	ImageField string        `koanf:"image_field"`
	Timeout    time.Duration `koanf:"timeout"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type RedisConfig struct {
	URL string `koanf:"url"`
}

type ListConfig struct {
	PerPage      int           `koanf:"per_page"`
	Window       int           `koanf:"window"`
	Debounce     time.Duration `koanf:"debounce"`
	AboveTheFold int           `koanf:"above_the_fold"`
	AspectRatio  string        `koanf:"aspect_ratio"`
	TruncateAt   int           `koanf:"truncate_at"`
	ProbeImages  bool          `koanf:"probe_images"`
	// ImageBaseURL resolves relative image URLs for server-side checks.
	// Empty leaves them to the browser.
	ImageBaseURL string `koanf:"image_base_url"`
}

type ChatConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	Backoff time.Duration `koanf:"backoff"`
}

type FeedsConfig struct {
	Limit int           `koanf:"limit"`
	TTL   time.Duration `koanf:"ttl"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

func Default() *Config {
	return &Config{
		Mode: ModeRemote,
		Server: ServerConfig{
			Addr:          ":3000",
			LoginURL:      "/login",
			UploadsDir:    "uploads",
			CORSOrigins:   "*",
			ChatRateLimit: 20,
		},
		API: APIConfig{
			BaseURL:    "http://localhost:5000",
			PostsPath:  "/api/posts",
			ImageField: "image",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:newstech.db?_pragma=busy_timeout(5000)",
		},
		List: ListConfig{
			PerPage:      10,
			Window:       5,
			Debounce:     250 * time.Millisecond,
			AboveTheFold: 3,
			AspectRatio:  "16/9",
			TruncateAt:   240,
		},
		Chat: ChatConfig{
			Timeout: 20 * time.Second,
			Backoff: 600 * time.Millisecond,
		},
		Feeds: FeedsConfig{
			Limit: 24,
			TTL:   5 * time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL: 2 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty or point to a missing
// file, in which case only defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	applyLegacyEnv(cfg)

	k := koanf.New(".")
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// PORTAL_API__BASE_URL -> api.base_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// applyLegacyEnv honors the plain variable names used by existing deployments.
func applyLegacyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
}

var aspectRatio = regexp.MustCompile(`^\d+(\.\d+)?\s*/\s*\d+(\.\d+)?$`)

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeRemote:
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
		}
	case ModeOffline:
		switch c.Database.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("invalid database.driver %q: must be sqlite or postgres", c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required in offline mode")
		}
	default:
		return fmt.Errorf("invalid mode %q: must be remote or offline", c.Mode)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.List.PerPage < 1 || c.List.PerPage > 100 {
		return fmt.Errorf("list.per_page must be between 1 and 100")
	}
	if c.List.Window < 5 || c.List.Window > 7 {
		return fmt.Errorf("list.window must be between 5 and 7")
	}
	if c.List.Debounce < 0 || c.API.Timeout < 0 || c.Chat.Timeout < 0 || c.Chat.Backoff < 0 {
		return fmt.Errorf("durations must be non-negative")
	}
	if c.List.AboveTheFold < 0 {
		return fmt.Errorf("list.above_the_fold must be non-negative")
	}
	if !aspectRatio.MatchString(c.List.AspectRatio) {
		return fmt.Errorf("invalid list.aspect_ratio %q: use W/H", c.List.AspectRatio)
	}
	if c.List.TruncateAt < 1 {
		return fmt.Errorf("list.truncate_at must be positive")
	}
	if c.List.ImageBaseURL != "" {
		u, err := url.Parse(c.List.ImageBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("list.image_base_url %q is not an absolute http(s) URL", c.List.ImageBaseURL)
		}
	}
	if c.API.ImageField == "" {
		return fmt.Errorf("api.image_field is required")
	}
	return nil
}
