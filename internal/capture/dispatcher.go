package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"aiscam-svr/internal/clock"
	"aiscam-svr/internal/observability"
)

// Sink receives capture requests.
type Sink interface {
	Name() string
	Send(ctx context.Context, req Request) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// Buffered sets the queue size. Requests beyond it are dropped.
func Buffered(size int) Option {
	return func(d *Dispatcher) { d.bufferSize = size }
}

// WithTimeout bounds each sink delivery.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

func WithSinks(sinks ...Sink) Option {
	return func(d *Dispatcher) { d.sinks = append(d.sinks, sinks...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clk = c }
}

// Dispatcher implements the scheduler's capturer. CaptureDue never blocks: delivery
// happens on the goroutine running Run.
type Dispatcher struct {
	describer  Describer
	sinks      []Sink
	bufferSize int
	timeout    time.Duration
	logger     *slog.Logger
	clk        clock.Clock

	queue chan Request
}

func NewDispatcher(describer Describer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		describer:  describer,
		bufferSize: 16,
		timeout:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.clk == nil {
		d.clk = clock.RealClock{}
	}
	d.queue = make(chan Request, d.bufferSize)
	return d
}

// CaptureDue describes the vessel and queues the request.
func (d *Dispatcher) CaptureDue(mmsi uint32, depth float64) {
	req := Describe(d.describer, mmsi, depth, d.clk.Now())
	if err := d.Enqueue(req); err != nil {
		d.logger.Warn("capture dropped", "mmsi", mmsi, "id", req.ID, "error", err)
	}
}

// Enqueue queues req without blocking.
func (d *Dispatcher) Enqueue(req Request) error {
	select {
	case d.queue <- req:
		return nil
	default:
		observability.CapturesDropped.Inc()
		return fmt.Errorf("capture queue full (%d)", d.bufferSize)
	}
}

// Run delivers queued requests until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.deliver(ctx, req)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req Request) {
	d.logger.Info("capture", "id", req.ID, "mmsi", req.MMSI, "name", req.Name,
		"depth", req.Depth, "large", req.Large)
	for _, s := range d.sinks {
		if err := d.send(ctx, s, req); err != nil {
			observability.SinkErrors.WithLabelValues(s.Name()).Inc()
			d.logger.Error("capture sink failed", "sink", s.Name(), "id", req.ID, "mmsi", req.MMSI, "error", err)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, s Sink, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	defer observability.ObserveSinkLatency(s.Name(), time.Now())

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return s.Send(sctx, req)
}
