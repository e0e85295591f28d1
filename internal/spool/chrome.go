package spool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/odyssey-erp/posdesk/internal/printdoc"
)

// ChromeSurface opens one headless Chrome tab per frame.
type ChromeSurface struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *slog.Logger
}

// NewChromeSurface connects to the browser at remoteURL, or launches a local
// headless browser when remoteURL is empty.
func NewChromeSurface(remoteURL string, logger *slog.Logger) (*ChromeSurface, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ChromeSurface{logger: logger}
	if remoteURL != "" {
		s.allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(context.Background(), remoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("font-render-hinting", "none"),
		)
		s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	if err := chromedp.Run(s.browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("spool: start browser: %w", err)
	}
	return s, nil
}

// Close shuts the browser down.
func (s *ChromeSurface) Close() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// Open implements Surface.
func (s *ChromeSurface) Open(_ context.Context, _ printdoc.Document) (Frame, error) {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, fmt.Errorf("spool: open tab: %w", err)
	}
	return &chromeFrame{ctx: tabCtx, cancel: cancel, logger: s.logger}, nil
}

type chromeFrame struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	once   sync.Once
}

func (f *chromeFrame) Load(ctx context.Context, html string) (<-chan struct{}, error) {
	stop := context.AfterFunc(ctx, f.cancel)
	defer stop()
	err := chromedp.Run(f.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		frameTree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
	}))
	if err != nil {
		return nil, err
	}
	loaded := make(chan struct{})
	go func() {
		// Resolves once fonts and images settle; the driver falls back to a
		// timer if it never does.
		var ready bool
		err := chromedp.Run(f.ctx,
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(`document.readyState === "complete"`, &ready),
		)
		if err != nil {
			f.logger.Debug("chrome frame load signal", slog.Any("error", err))
			return
		}
		close(loaded)
	}()
	return loaded, nil
}

func (f *chromeFrame) Print(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, f.cancel)
	defer stop()
	var pdf []byte
	err := chromedp.Run(f.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPreferCSSPageSize(true).
			Do(ctx)
		if err != nil {
			return err
		}
		pdf = data
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

func (f *chromeFrame) Close() error {
	f.once.Do(f.cancel)
	return nil
}
