// Package dispatcher serializes incoming report lines onto a single goroutine that
// decodes them and applies them to the vessel store in arrival order.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"aiscam-svr/internal/clock"
	"aiscam-svr/internal/observability"
	"aiscam-svr/internal/report"
)

// Applier is the vessel store's write side.
type Applier interface {
	Apply(ctx context.Context, r report.Report, t time.Time) (uint32, error)
}

// Archiver records raw lines before decoding.
type Archiver interface {
	Write(line string)
}

type Option func(*Ingestor)

// Buffered sets the queue size. Submit blocks when the queue is full.
func Buffered(size int) Option {
	return func(i *Ingestor) { i.bufferSize = size }
}

func WithArchive(a Archiver) Option {
	return func(i *Ingestor) { i.archive = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) { i.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(i *Ingestor) { i.clk = c }
}

type line struct {
	data []byte
	at   time.Time
}

// Ingestor owns the single ingestion goroutine.
type Ingestor struct {
	store      Applier
	archive    Archiver
	logger     *slog.Logger
	clk        clock.Clock
	bufferSize int

	queue chan line
}

func NewIngestor(store Applier, opts ...Option) *Ingestor {
	i := &Ingestor{store: store, bufferSize: 1024}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	if i.clk == nil {
		i.clk = clock.RealClock{}
	}
	i.queue = make(chan line, i.bufferSize)
	return i
}

// Submit queues one line stamped with its receive time. The slice is copied.
func (i *Ingestor) Submit(ctx context.Context, data []byte) error {
	l := line{data: append([]byte(nil), data...), at: i.clk.Now()}
	select {
	case i.queue <- l:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued lines until ctx is done.
func (i *Ingestor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l := <-i.queue:
			i.process(ctx, l)
		}
	}
}

func (i *Ingestor) process(ctx context.Context, l line) {
	start := time.Now()
	observability.ReportsReceived.Inc()
	if i.archive != nil {
		i.archive.Write(string(l.data))
	}

	r, err := report.Decode(l.data)
	switch {
	case errors.Is(err, report.ErrUnsupported):
		observability.ReportsRejected.WithLabelValues("unsupported").Inc()
		i.logger.Debug("skipping report", "error", err)
		return
	case err != nil:
		observability.ReportsRejected.WithLabelValues("invalid").Inc()
		i.logger.Warn("invalid report", "error", err, "line", string(l.data))
		return
	}

	if _, err := i.store.Apply(ctx, r, l.at); err != nil {
		observability.ReportsRejected.WithLabelValues("apply").Inc()
		i.logger.Error("apply failed", "mmsi", r.MMSI, "error", err)
		return
	}
	observability.ReportsApplied.WithLabelValues(r.Kind().String()).Inc()
	observability.ObserveApplyLatency(start)
}
