package spool

import (
	"context"
	"sync"
	"time"

	"github.com/odyssey-erp/posdesk/internal/printdoc"
)

// State is the lifecycle position of a print job.
type State int

const (
	StateCreated State = iota
	StateLoaded
	StatePrinting
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLoaded:
		return "loaded"
	case StatePrinting:
		return "printing"
	case StateCleanedUp:
		return "cleaned_up"
	default:
		return "unknown"
	}
}

// Cleanup reasons recorded on the job.
const (
	ReasonPrinted        = "printed"
	ReasonFailed         = "failed"
	ReasonCleanupTimeout = "cleanup_timeout"
	ReasonOuterTimeout   = "outer_timeout"
	ReasonDisposed       = "disposed"
)

// Job is one print of one document. It owns its frame and releases it
// exactly once, whichever exit path gets there first.
type Job struct {
	ID      string
	Doc     printdoc.Document
	Created time.Time

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}

	mu       sync.Mutex
	state    State
	frame    Frame
	timers   []*time.Timer
	reason   string
	err      error
	closeErr error
	output   string

	onCleanup func(*Job)
}

func newJob(id string, doc printdoc.Document, parent context.Context, onCleanup func(*Job)) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		ID:        id,
		Doc:       doc,
		Created:   time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		onCleanup: onCleanup,
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Done is closed once the job is cleaned up.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until cleanup or ctx ends. It returns ctx's error in the
// latter case; print failures are reported by Err, not by Wait.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reason names the exit path that cleaned the job up.
func (j *Job) Reason() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reason
}

// Err returns the swallowed print error, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Output returns where the spooler stored the printed artifact.
func (j *Job) Output() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.output
}

// Dispose releases the job. It is safe to call any number of times from any
// goroutine.
func (j *Job) Dispose() {
	j.cleanup(ReasonDisposed)
}

func (j *Job) context() context.Context {
	return j.ctx
}

// attach hands the opened frame to the job. It reports false when the job was
// already cleaned up, in which case the caller still owns the frame.
func (j *Job) attach(f Frame) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateCleanedUp {
		return false
	}
	j.frame = f
	return true
}

// advance moves the job forward. It never leaves the cleaned up state.
func (j *Job) advance(to State) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateCleanedUp || to <= j.state {
		return false
	}
	j.state = to
	return true
}

func (j *Job) addTimer(t *time.Timer) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateCleanedUp {
		t.Stop()
		return
	}
	j.timers = append(j.timers, t)
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err == nil && j.state != StateCleanedUp {
		j.err = err
	}
}

func (j *Job) setOutput(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.output = path
}

func (j *Job) cleanup(reason string) {
	j.once.Do(func() {
		j.mu.Lock()
		j.state = StateCleanedUp
		j.reason = reason
		frame := j.frame
		j.frame = nil
		timers := j.timers
		j.timers = nil
		j.mu.Unlock()

		for _, t := range timers {
			t.Stop()
		}
		j.cancel()
		if frame != nil {
			if err := frame.Close(); err != nil {
				j.mu.Lock()
				j.closeErr = err
				j.mu.Unlock()
			}
		}
		if j.onCleanup != nil {
			j.onCleanup(j)
		}
		close(j.done)
	})
}
