package screen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/odyssey-erp/posdesk/internal/report"
	"github.com/odyssey-erp/posdesk/internal/report/catalog"
)

// ErrSuperseded is returned to a load that a newer load replaced. Its result,
// if any, is discarded.
var ErrSuperseded = errors.New("screen: superseded by a newer request")

// Latest lets only the most recent call win. Starting a call cancels the
// context of the one in flight.
type Latest struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Run executes fn under l. A call that was superseded while running returns
// ErrSuperseded even if fn succeeded.
func Run[T any](l *Latest, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.seq++
	mine := l.seq
	l.cancel = cancel
	l.mu.Unlock()

	v, err := fn(ctx)

	l.mu.Lock()
	current := l.seq == mine
	if current {
		l.cancel = nil
	}
	l.mu.Unlock()
	cancel()

	if !current {
		var zero T
		return zero, ErrSuperseded
	}
	return v, err
}

// Cancel aborts the call in flight, if any.
func (l *Latest) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.seq++
}

// Debouncer delays a free-text search change so a burst of keystrokes
// produces one fetch. The delay is cut short by cancellation.
type Debouncer struct {
	delay time.Duration
	mu    sync.Mutex
	last  string
	seen  bool
}

// NewDebouncer constructs a Debouncer.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Wait blocks for the delay when q differs from the previous query.
func (d *Debouncer) Wait(ctx context.Context, q string) error {
	d.mu.Lock()
	changed := d.seen && q != d.last
	d.last, d.seen = q, true
	d.mu.Unlock()
	if !changed || d.delay <= 0 {
		return nil
	}
	t := time.NewTimer(d.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Session is one terminal's view of one report.
type Session struct {
	screen   *Screen
	latest   Latest
	debounce *Debouncer
	mu       sync.Mutex
	used     time.Time
}

// Load loads f; a newer Load on the same session supersedes it.
func (s *Session) Load(ctx context.Context, def catalog.Definition, f report.Filter) (*View, error) {
	s.touch()
	return Run(&s.latest, ctx, func(ctx context.Context) (*View, error) {
		if err := s.debounce.Wait(ctx, f.Query); err != nil {
			return nil, err
		}
		return s.screen.Load(ctx, def, f)
	})
}

func (s *Session) touch() {
	s.mu.Lock()
	s.used = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Sessions keys sessions by terminal and report.
type Sessions struct {
	screen *Screen
	delay  time.Duration
	mu     sync.Mutex
	byKey  map[string]*Session
}

// NewSessions constructs a registry whose sessions debounce search by delay.
func NewSessions(screen *Screen, delay time.Duration) *Sessions {
	return &Sessions{screen: screen, delay: delay, byKey: map[string]*Session{}}
}

// Get returns the session for terminal and report, creating it on first use.
func (r *Sessions) Get(terminal, reportName string) *Session {
	key := terminal + "/" + reportName
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byKey[key]
	if !ok {
		s = &Session{screen: r.screen, debounce: NewDebouncer(r.delay), used: time.Now()}
		r.byKey[key] = s
	}
	return s
}

// Prune drops sessions idle for longer than idle and returns how many went.
func (r *Sessions) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, s := range r.byKey {
		if s.lastUsed().Before(cutoff) {
			s.latest.Cancel()
			delete(r.byKey, key)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}
