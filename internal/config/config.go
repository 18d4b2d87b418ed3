package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/models"
)

type Config struct {
	Run      RunConfig
	Browser  BrowserConfig
	Classes  map[models.Retailer]ClassConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
	// CatalogPath overrides the built-in retailer catalog.
	CatalogPath string
}

type RunConfig struct {
	InputPath       string
	OutputPath      string
	EventLogPath    string
	CheckpointPath  string
	BatchSize       int
	CooldownMin     time.Duration
	CooldownMax     time.Duration
	Retries         int
	BaseDelay       time.Duration
	NavTimeout      time.Duration
	SelectorTimeout time.Duration
	WarmUp          bool
}

type BrowserConfig struct {
	Mode        string
	Headless    bool
	CDPEndpoint string
	ProfileDir  string
	Channel     string
	ProxyServer string
	Timeout     time.Duration
}

// ClassConfig is the per-retailer admission and session policy.
type ClassConfig struct {
	Concurrency int
	Mode        string
	Headless    bool
	DelayMin    time.Duration
	DelayMax    time.Duration
	// Fetch is "browser" or "http".
	Fetch  string
	Bypass bool
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
}

type ServerConfig struct {
	Enabled         bool
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type LoggingConfig struct {
	Level  string
	Format string
}

const (
	FetchBrowser = "browser"
	FetchHTTP    = "http"
)

func Load() (*Config, error) {
	browserCfg := BrowserConfig{
		Mode:        getEnvOrDefault("BROWSER_MODE", string(browser.ModeFresh)),
		Headless:    getBoolOrDefault("BROWSER_HEADLESS", true),
		CDPEndpoint: getEnvOrDefault("BROWSER_CDP_ENDPOINT", "http://localhost:9222"),
		ProfileDir:  getEnvOrDefault("BROWSER_PROFILE_DIR", ".browser-profile"),
		Channel:     getEnvOrDefault("BROWSER_CHANNEL", ""),
		ProxyServer: getEnvOrDefault("BROWSER_PROXY", ""),
		Timeout:     getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
	}

	cfg := &Config{
		Run: RunConfig{
			InputPath:       getEnvOrDefault("SCRAPER_INPUT", "skus.json"),
			OutputPath:      getEnvOrDefault("SCRAPER_OUTPUT", "product_data.csv"),
			EventLogPath:    getEnvOrDefault("SCRAPER_EVENT_LOG", "errors.log"),
			CheckpointPath:  getEnvOrDefault("SCRAPER_CHECKPOINT", "checkpoint.json"),
			BatchSize:       getIntOrDefault("SCRAPER_BATCH_SIZE", 10),
			CooldownMin:     getDurationOrDefault("SCRAPER_COOLDOWN_MIN", 5*time.Second),
			CooldownMax:     getDurationOrDefault("SCRAPER_COOLDOWN_MAX", 10*time.Second),
			Retries:         getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			BaseDelay:       getDurationOrDefault("SCRAPER_RETRY_DELAY", 3*time.Second),
			NavTimeout:      getDurationOrDefault("SCRAPER_NAV_TIMEOUT", 30*time.Second),
			SelectorTimeout: getDurationOrDefault("SCRAPER_SELECTOR_TIMEOUT", 10*time.Second),
			WarmUp:          getBoolOrDefault("SCRAPER_WARM_UP", true),
		},
		Browser: browserCfg,
		Classes: map[models.Retailer]ClassConfig{
			models.RetailerAmazon: loadClass("AMAZON", ClassConfig{
				Concurrency: 2,
				Mode:        browserCfg.Mode,
				Headless:    browserCfg.Headless,
				DelayMin:    2 * time.Second,
				DelayMax:    5 * time.Second,
				Fetch:       FetchBrowser,
				Bypass:      true,
			}),
			models.RetailerWalmart: loadClass("WALMART", ClassConfig{
				Concurrency: 1,
				Mode:        browserCfg.Mode,
				Headless:    browserCfg.Headless,
				DelayMin:    5 * time.Second,
				DelayMax:    15 * time.Second,
				Fetch:       FetchBrowser,
			}),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "sku_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:product_records"),
		},
		Server: ServerConfig{
			Enabled:         getBoolOrDefault("SERVER_ENABLED", false),
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getStringSliceOrDefault("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		CatalogPath: getEnvOrDefault("SCRAPER_CATALOG", ""),
	}

	return cfg, nil
}

// loadClass applies SCRAPER_<NAME>_* overrides to a class default.
func loadClass(name string, def ClassConfig) ClassConfig {
	prefix := "SCRAPER_" + name + "_"
	return ClassConfig{
		Concurrency: getIntOrDefault(prefix+"CONCURRENCY", def.Concurrency),
		Mode:        getEnvOrDefault(prefix+"MODE", def.Mode),
		Headless:    getBoolOrDefault(prefix+"HEADLESS", def.Headless),
		DelayMin:    getDurationOrDefault(prefix+"DELAY_MIN", def.DelayMin),
		DelayMax:    getDurationOrDefault(prefix+"DELAY_MAX", def.DelayMax),
		Fetch:       getEnvOrDefault(prefix+"FETCH", def.Fetch),
		Bypass:      getBoolOrDefault(prefix+"BYPASS", def.Bypass),
	}
}

func (c *Config) Validate() error {
	if c.Run.BatchSize < 1 {
		return fmt.Errorf("SCRAPER_BATCH_SIZE must be at least 1")
	}

	if c.Run.Retries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}

	if c.Run.CooldownMin > c.Run.CooldownMax {
		return fmt.Errorf("SCRAPER_COOLDOWN_MIN cannot be greater than SCRAPER_COOLDOWN_MAX")
	}

	if _, err := browser.ParseMode(c.Browser.Mode); err != nil {
		return fmt.Errorf("BROWSER_MODE: %w", err)
	}

	for r, class := range c.Classes {
		name := strings.ToUpper(string(r))
		if class.Concurrency < 1 {
			return fmt.Errorf("SCRAPER_%s_CONCURRENCY must be at least 1", name)
		}
		if class.DelayMin > class.DelayMax {
			return fmt.Errorf("SCRAPER_%s_DELAY_MIN cannot be greater than SCRAPER_%s_DELAY_MAX", name, name)
		}
		if _, err := browser.ParseMode(class.Mode); err != nil {
			return fmt.Errorf("SCRAPER_%s_MODE: %w", name, err)
		}
		if class.Fetch != FetchBrowser && class.Fetch != FetchHTTP {
			return fmt.Errorf("SCRAPER_%s_FETCH must be %q or %q", name, FetchBrowser, FetchHTTP)
		}
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
