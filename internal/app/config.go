package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/posdesk/internal/format"
)

// Renderers accepted by PRINT_RENDERER.
const (
	RendererChrome    = "chromedp"
	RendererGotenberg = "gotenberg"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"45s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	APIOrigin  string        `envconfig:"API_ORIGIN" required:"true"`
	APIPrefix  string        `envconfig:"API_PREFIX" default:"/api"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"15s"`
	APIVerbose bool          `envconfig:"API_VERBOSE" default:"false"`

	StoreTimezone string        `envconfig:"STORE_TIMEZONE" default:"Asia/Dubai"`
	Currency      string        `envconfig:"CURRENCY" default:"AED"`
	StoreCacheTTL time.Duration `envconfig:"STORE_CACHE_TTL" default:"10m"`

	RedisAddr         string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`

	PrintRenderer       string        `envconfig:"PRINT_RENDERER" default:"gotenberg"`
	ChromeRemoteURL     string        `envconfig:"CHROME_REMOTE_URL"`
	GotenbergURL        string        `envconfig:"GOTENBERG_URL" default:"http://127.0.0.1:3000"`
	PrintLoadFallback   time.Duration `envconfig:"PRINT_LOAD_FALLBACK" default:"1500ms"`
	PrintDelay          time.Duration `envconfig:"PRINT_DELAY" default:"250ms"`
	PrintCleanupTimeout time.Duration `envconfig:"PRINT_CLEANUP_TIMEOUT" default:"5s"`
	PrintOuterTimeout   time.Duration `envconfig:"PRINT_OUTER_TIMEOUT" default:"15s"`
	PrintQueued         bool          `envconfig:"PRINT_QUEUED" default:"false"`

	SpoolDir          string `envconfig:"SPOOL_DIR" default:"var/spool"`
	DownloadDir       string `envconfig:"DOWNLOAD_DIR" default:"var/downloads"`
	ESCPOSPrinterPath string `envconfig:"ESCPOS_PRINTER_PATH"`

	SearchDebounce time.Duration `envconfig:"SEARCH_DEBOUNCE" default:"300ms"`
}

// LoadConfig reads configuration from environment variables. A .env file in
// the working directory is loaded first when present; real environment
// variables win over it.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIOrigin) == "" {
		return errors.New("api origin must be provided")
	}
	switch c.PrintRenderer {
	case RendererChrome, RendererGotenberg:
	default:
		return fmt.Errorf("print renderer must be %q or %q, got %q", RendererChrome, RendererGotenberg, c.PrintRenderer)
	}
	if c.PrintRenderer == RendererGotenberg && strings.TrimSpace(c.GotenbergURL) == "" {
		return errors.New("gotenberg url must be provided")
	}
	if _, err := format.LoadLocation(c.StoreTimezone); err != nil {
		return fmt.Errorf("store timezone: %w", err)
	}
	if _, err := format.NewMoney(c.Currency); err != nil {
		return err
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
