package calllog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/telemetry/hooks"
)

// Storage persists call records.
type Storage interface {
	Store(ctx context.Context, r *Record) error
	Query(ctx context.Context, q Query) ([]*Record, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrDropped is returned when a record could not be queued.
var ErrDropped = errors.New("call log record dropped")

// Recorder is a hooks sink that writes call records asynchronously.
type Recorder struct {
	hooks.Nop

	storage Storage
	cfg     config.CallLogConfig
	records chan *Record
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	logger  *slog.Logger
}

// NewRecorder starts a recorder writing to storage. Zero config values fall
// back to the call log defaults.
func NewRecorder(storage Storage, cfg config.CallLogConfig) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = config.DefaultCallLogBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultCallLogWriteTimeout
	}

	r := &Recorder{
		storage: storage,
		cfg:     cfg,
		records: make(chan *Record, cfg.BufferSize),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "calllog.recorder"),
	}
	r.wg.Add(1)
	go r.worker()

	r.logger.Info("call log recorder started",
		"buffer_size", cfg.BufferSize,
		"write_timeout", cfg.WriteTimeout,
		"max_body_bytes", cfg.MaxBodyBytes,
	)
	return r
}

// Success queues a record for a successful call.
func (r *Recorder) Success(_ context.Context, ev *hooks.SuccessEvent) error {
	return r.enqueue(FromSuccess(ev, r.cfg.MaxBodyBytes))
}

// Failure queues a record for a failed call.
func (r *Recorder) Failure(_ context.Context, ev *hooks.FailureEvent) error {
	return r.enqueue(FromFailure(ev, r.cfg.MaxBodyBytes))
}

func (r *Recorder) enqueue(rec *Record) error {
	select {
	case <-r.done:
		return fmt.Errorf("%w: recorder closed", ErrDropped)
	default:
	}

	timer := time.NewTimer(r.cfg.WriteTimeout)
	defer timer.Stop()

	select {
	case r.records <- rec:
		return nil
	case <-timer.C:
		r.logger.Error("call log queue full, dropping record",
			"call_id", rec.CallID,
			"capacity", cap(r.records),
		)
		return fmt.Errorf("%w: queue full", ErrDropped)
	case <-r.done:
		return fmt.Errorf("%w: recorder closed", ErrDropped)
	}
}

// Close stops accepting records, writes what is queued and returns.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.logger.Info("call log recorder stopped")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.records:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *Record) {
	// Storage writes get their own budget; WriteTimeout only bounds enqueueing.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.storage.Store(ctx, rec); err != nil {
		r.logger.Error("failed to store call record",
			"record_id", rec.ID,
			"call_id", rec.CallID,
			"error", err,
		)
		return
	}
	r.logger.Debug("call recorded",
		"record_id", rec.ID,
		"call_id", rec.CallID,
		"outcome", rec.Outcome,
	)
}
