package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/af-corp/aegis-chat/internal/telemetry"
	"github.com/af-corp/aegis-chat/internal/types"
)

// ErrAuditorClosed is reported when a record arrives after Close.
var ErrAuditorClosed = errors.New("auditor closed")

// ErrQueueFull is reported when a record is dropped because the queue is full.
var ErrQueueFull = errors.New("audit queue full")

// Record is an append-only security log entry.
type Record struct {
	UserID        string
	Content       string
	ViolationType string
	Severity      types.Severity
	CreatedAt     time.Time
}

// LogAppender persists security log records.
type LogAppender interface {
	Append(ctx context.Context, rec Record) error
}

// AuditorOptions configures an Auditor.
type AuditorOptions struct {
	QueueSize int
	Timeout   time.Duration
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
	// OnError, if set, is called from the worker for every record that could
	// not be written.
	OnError func(Record, error)
}

// Auditor writes security log records on a background worker so the chat
// request never waits on, or fails because of, the log write.
type Auditor struct {
	appender LogAppender
	opts     AuditorOptions

	mu     sync.RWMutex
	closed bool
	queue  chan Record
	done   chan struct{}
}

// NewAuditor starts the background worker.
func NewAuditor(appender LogAppender, opts AuditorOptions) *Auditor {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &Auditor{
		appender: appender,
		opts:     opts,
		queue:    make(chan Record, opts.QueueSize),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues rec without blocking. Credentials in the content are
// redacted first. It reports whether the record was accepted; a rejected
// record is logged and counted, never returned as an error.
func (a *Auditor) Record(rec Record) bool {
	rec.Content = Redact(rec.Content)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.fail(rec, "closed", ErrAuditorClosed)
		return false
	}
	select {
	case a.queue <- rec:
		return true
	default:
		a.fail(rec, "dropped", ErrQueueFull)
		return false
	}
}

// Close stops accepting records and waits for queued ones to be written or
// for ctx to expire.
func (a *Auditor) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain audit queue: %w", ctx.Err())
	}
}

func (a *Auditor) run() {
	defer close(a.done)
	for rec := range a.queue {
		a.write(rec)
	}
}

func (a *Auditor) write(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			a.fail(rec, "panic", fmt.Errorf("security log append panicked: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.Timeout)
	defer cancel()
	if err := a.appender.Append(ctx, rec); err != nil {
		a.fail(rec, "write_error", err)
	}
}

func (a *Auditor) fail(rec Record, reason string, err error) {
	a.opts.Logger.Error("security log write failed",
		"reason", reason,
		"error", err,
		"user_id", rec.UserID,
		"violation_type", rec.ViolationType,
	)
	a.opts.Metrics.RecordAuditFailure(reason)
	if a.opts.OnError != nil {
		a.opts.OnError(rec, err)
	}
}
