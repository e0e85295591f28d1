package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/posdesk/internal/apiclient"
	"github.com/odyssey-erp/posdesk/internal/download"
	"github.com/odyssey-erp/posdesk/internal/format"
	"github.com/odyssey-erp/posdesk/internal/observability"
	"github.com/odyssey-erp/posdesk/internal/platform/cache"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/report"
	"github.com/odyssey-erp/posdesk/internal/report/catalog"
	"github.com/odyssey-erp/posdesk/internal/screen"
	screenhttp "github.com/odyssey-erp/posdesk/internal/screen/http"
	"github.com/odyssey-erp/posdesk/internal/spool"
	"github.com/odyssey-erp/posdesk/internal/storeprofile"
	"github.com/odyssey-erp/posdesk/jobs"
)

// Services holds the print pipeline wired from configuration. Optional parts
// are nil when their backing resource is not configured or unreachable.
type Services struct {
	Config    *Config
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	API       *apiclient.Client
	Catalog   *catalog.Catalog
	Formatter report.Formatter
	Builder   *printdoc.Builder
	Screen    *screen.Screen
	Sessions  *screen.Sessions
	Redis     *redis.Client
	Store     *storeprofile.Service
	Downloads *download.Service
	Driver    *spool.Driver
	Receipts  *spool.ESCPOSPrinter
	Queue     *jobs.Client
	Inspector *asynq.Inspector

	closers []func() error
}

// NewServices builds every pipeline component. The caller must Close the
// result.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	s := &Services{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	if err := s.init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) init(ctx context.Context) error {
	cfg, logger := s.Config, s.Logger

	loc, err := format.LoadLocation(cfg.StoreTimezone)
	if err != nil {
		return err
	}
	money, err := format.NewMoney(cfg.Currency)
	if err != nil {
		return err
	}
	s.Formatter = report.NewFormatter(money, loc)

	s.API, err = apiclient.New(apiclient.Config{
		Origin:  cfg.APIOrigin,
		Prefix:  cfg.APIPrefix,
		Timeout: cfg.APITimeout,
		Verbose: cfg.APIVerbose,
	}, logger)
	if err != nil {
		return fmt.Errorf("api client: %w", err)
	}
	if s.Catalog, err = catalog.Load(); err != nil {
		return fmt.Errorf("report catalog: %w", err)
	}
	if s.Builder, err = printdoc.NewBuilder(s.Formatter); err != nil {
		return err
	}
	s.Screen = screen.New(s.API, s.Formatter, logger)
	s.Sessions = screen.NewSessions(s.Screen, cfg.SearchDebounce)

	s.Redis = s.redis(ctx)
	var rdb redis.Cmdable
	if s.Redis != nil {
		rdb = s.Redis
	}
	s.Store = storeprofile.NewService(s.API, rdb, cfg.StoreCacheTTL, logger)
	s.Downloads = download.NewService(s.API, logger).WithObserver(s.Metrics)

	surface, err := s.surface(ctx)
	if err != nil {
		return err
	}
	s.Driver = spool.NewDriver(surface, spool.DirSpooler{Dir: cfg.SpoolDir}, spool.Options{
		LoadFallback:   cfg.PrintLoadFallback,
		PrintDelay:     cfg.PrintDelay,
		CleanupTimeout: cfg.PrintCleanupTimeout,
		OuterTimeout:   cfg.PrintOuterTimeout,
	}, logger).WithObserver(s.Metrics)

	if cfg.ESCPOSPrinterPath != "" {
		printer, err := spool.OpenESCPOS(cfg.ESCPOSPrinterPath)
		if err != nil {
			logger.Warn("thermal printer unavailable, receipts fall back to html print", slog.Any("error", err))
		} else {
			s.Receipts = printer
		}
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	if cfg.PrintQueued {
		if s.Queue, err = jobs.NewClient(redisOpts); err != nil {
			return fmt.Errorf("print queue: %w", err)
		}
		s.closers = append(s.closers, s.Queue.Close)
	}
	if s.Redis != nil {
		s.Inspector = asynq.NewInspector(redisOpts)
		s.closers = append(s.closers, s.Inspector.Close)
	}
	return nil
}

func (s *Services) redis(ctx context.Context) *redis.Client {
	if s.Config.RedisAddr == "" {
		return nil
	}
	client, err := cache.New(ctx, s.Config.RedisAddr)
	if err != nil {
		s.Logger.Warn("redis unavailable, store profile is fetched per request", slog.Any("error", err))
		return nil
	}
	s.closers = append(s.closers, client.Close)
	return client
}

func (s *Services) surface(ctx context.Context) (spool.Surface, error) {
	switch s.Config.PrintRenderer {
	case RendererChrome:
		chrome, err := spool.NewChromeSurface(s.Config.ChromeRemoteURL, s.Logger)
		if err != nil {
			return nil, fmt.Errorf("chrome surface: %w", err)
		}
		s.closers = append(s.closers, func() error {
			chrome.Close()
			return nil
		})
		return chrome, nil
	default:
		client := spool.NewGotenbergClient(s.Config.GotenbergURL, &http.Client{Timeout: s.Config.PrintOuterTimeout})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			s.Logger.Warn("gotenberg unreachable, prints fail until it is up", slog.String("url", s.Config.GotenbergURL), slog.Any("error", err))
		}
		return spool.NewGotenbergSurface(client), nil
	}
}

// Handler returns the report and print HTTP handler.
func (s *Services) Handler() *screenhttp.Handler {
	deps := screenhttp.Deps{
		Logger:    s.Logger,
		Catalog:   s.Catalog,
		Screen:    s.Screen,
		Sessions:  s.Sessions,
		Builder:   s.Builder,
		Store:     s.Store,
		Invoices:  s.API,
		Printer:   s.Driver,
		Downloads: s.Downloads,
		Metrics:   s.Metrics,
	}
	if s.Queue != nil {
		deps.Queue = s.Queue
	}
	if s.Receipts != nil {
		deps.Receipts = s.Receipts
	}
	return screenhttp.NewHandler(deps)
}

// PruneSessions drops idle terminal sessions until ctx ends.
func (s *Services) PruneSessions(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sessions.Prune(idle); n > 0 {
				s.Logger.Debug("pruned idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Close stops the print driver and releases every resource in reverse order.
func (s *Services) Close() error {
	var errs []error
	if s.Driver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.Config.PrintOuterTimeout+time.Second)
		if err := s.Driver.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("print driver: %w", err))
		}
		cancel()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
