// Package spool prints HTML documents through an off-screen rendering
// surface and guarantees the surface is released on every exit path.
package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/posdesk/internal/printdoc"
)

var (
	// ErrEmptyDocument is returned for documents without HTML.
	ErrEmptyDocument = errors.New("spool: empty document")
	// ErrClosed is returned once the driver has been shut down.
	ErrClosed = errors.New("spool: driver closed")
)

// Frame is an off-screen rendering of one document.
type Frame interface {
	// Load writes html into the frame. The returned channel is closed when
	// the frame signals it finished loading; some surfaces never signal.
	Load(ctx context.Context, html string) (<-chan struct{}, error)
	// Print renders the loaded document and returns the output bytes.
	Print(ctx context.Context) ([]byte, error)
	// Close releases the frame.
	Close() error
}

// Surface creates frames. Every job gets its own frame.
type Surface interface {
	Open(ctx context.Context, doc printdoc.Document) (Frame, error)
}

// Spooler stores printed output.
type Spooler interface {
	Spool(ctx context.Context, job *Job, data []byte) (string, error)
}

// Observer receives the outcome of each finished job.
type Observer interface {
	ObservePrintJob(outcome string)
}

// Options tune the driver's timers.
type Options struct {
	// LoadFallback is how long to wait for a load signal before printing anyway.
	LoadFallback time.Duration
	// PrintDelay separates load completion from the print call.
	PrintDelay time.Duration
	// CleanupTimeout bounds a print once started.
	CleanupTimeout time.Duration
	// OuterTimeout bounds the whole job from creation.
	OuterTimeout time.Duration
}

// DefaultOptions returns the production timer values.
func DefaultOptions() Options {
	return Options{
		LoadFallback:   1500 * time.Millisecond,
		PrintDelay:     250 * time.Millisecond,
		CleanupTimeout: 5 * time.Second,
		OuterTimeout:   15 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.LoadFallback <= 0 {
		o.LoadFallback = def.LoadFallback
	}
	if o.PrintDelay < 0 {
		o.PrintDelay = 0
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = def.CleanupTimeout
	}
	if o.OuterTimeout <= 0 {
		o.OuterTimeout = def.OuterTimeout
	}
	return o
}

// Driver runs print jobs. Jobs are fire-and-forget: Print returns at once and
// the job proceeds in the background.
type Driver struct {
	surface  Surface
	spooler  Spooler
	opts     Options
	logger   *slog.Logger
	observer Observer

	mu     sync.Mutex
	closed bool
	jobs   map[string]*Job
	wg     sync.WaitGroup
}

// NewDriver constructs a driver. spooler may be nil to discard output.
func NewDriver(surface Surface, spooler Spooler, opts Options, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		surface: surface,
		spooler: spooler,
		opts:    opts.withDefaults(),
		logger:  logger,
		jobs:    make(map[string]*Job),
	}
}

// WithObserver attaches an outcome observer.
func (d *Driver) WithObserver(o Observer) *Driver {
	d.observer = o
	return d
}

// Print starts a job for doc. The job outlives ctx's cancellation but keeps
// its values.
func (d *Driver) Print(ctx context.Context, doc printdoc.Document) (*Job, error) {
	if strings.TrimSpace(doc.HTML) == "" {
		return nil, ErrEmptyDocument
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	job := newJob(uuid.NewString(), doc, context.WithoutCancel(ctx), d.finished)
	d.jobs[job.ID] = job
	d.wg.Add(1)
	d.mu.Unlock()

	job.addTimer(time.AfterFunc(d.opts.OuterTimeout, func() {
		job.cleanup(ReasonOuterTimeout)
	}))
	go d.run(job)
	return job, nil
}

// Job returns an active job by ID.
func (d *Driver) Job(id string) (*Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[id]
	return j, ok
}

// Active returns the number of jobs not yet cleaned up.
func (d *Driver) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

// Shutdown refuses new jobs and waits for running ones until ctx ends, then
// disposes whatever is left.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		remaining := make([]*Job, 0, len(d.jobs))
		for _, j := range d.jobs {
			remaining = append(remaining, j)
		}
		d.mu.Unlock()
		for _, j := range remaining {
			j.Dispose()
		}
		<-waited
		return ctx.Err()
	}
}

func (d *Driver) run(job *Job) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			job.fail(fmt.Errorf("spool: panic: %v", r))
			job.cleanup(ReasonFailed)
		}
	}()
	ctx := job.context()

	frame, err := d.surface.Open(ctx, job.Doc)
	if err != nil {
		job.fail(fmt.Errorf("spool: open frame: %w", err))
		job.cleanup(ReasonFailed)
		return
	}
	if !job.attach(frame) {
		_ = frame.Close()
		return
	}

	loaded, err := frame.Load(ctx, job.Doc.HTML)
	if err != nil {
		job.fail(fmt.Errorf("spool: load frame: %w", err))
		job.cleanup(ReasonFailed)
		return
	}
	select {
	case <-loaded:
	case <-time.After(d.opts.LoadFallback):
		d.logger.Debug("print load signal missing, continuing", slog.String("job", job.ID))
	case <-ctx.Done():
		return
	}
	if !job.advance(StateLoaded) {
		return
	}

	if d.opts.PrintDelay > 0 {
		select {
		case <-time.After(d.opts.PrintDelay):
		case <-ctx.Done():
			return
		}
	}
	if !job.advance(StatePrinting) {
		return
	}
	job.addTimer(time.AfterFunc(d.opts.CleanupTimeout, func() {
		job.cleanup(ReasonCleanupTimeout)
	}))

	data, err := printFrame(ctx, frame)
	if err != nil {
		job.fail(err)
		job.cleanup(ReasonFailed)
		return
	}
	if d.spooler != nil && len(data) > 0 {
		path, err := d.spooler.Spool(ctx, job, data)
		if err != nil {
			job.fail(fmt.Errorf("spool: store output: %w", err))
			job.cleanup(ReasonFailed)
			return
		}
		job.setOutput(path)
	}
	job.cleanup(ReasonPrinted)
}

// printFrame turns a panicking print into an error.
func printFrame(ctx context.Context, frame Frame) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("spool: print panic: %v", r)
		}
	}()
	data, err = frame.Print(ctx)
	if err != nil {
		return nil, fmt.Errorf("spool: print: %w", err)
	}
	return data, nil
}

func (d *Driver) finished(job *Job) {
	d.mu.Lock()
	delete(d.jobs, job.ID)
	d.mu.Unlock()

	job.mu.Lock()
	reason, err, closeErr := job.reason, job.err, job.closeErr
	job.mu.Unlock()

	attrs := []any{
		slog.String("job", job.ID),
		slog.String("kind", string(job.Doc.Kind)),
		slog.String("reason", reason),
		slog.Duration("elapsed", time.Since(job.Created)),
	}
	switch {
	case err != nil:
		d.logger.Warn("print job failed", append(attrs, slog.Any("error", err))...)
	case reason == ReasonCleanupTimeout || reason == ReasonOuterTimeout:
		d.logger.Warn("print job timed out", attrs...)
	default:
		d.logger.Info("print job finished", attrs...)
	}
	if closeErr != nil {
		d.logger.Warn("print frame close", slog.String("job", job.ID), slog.Any("error", closeErr))
	}
	if d.observer != nil {
		d.observer.ObservePrintJob(reason)
	}
}
