// Package scheduler arms one capture timer per vessel ahead of its predicted crossing
// of the camera bearing, and suppresses repeat captures during a cooldown.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"aiscam-svr/internal/clock"
	"aiscam-svr/internal/geometry"
	"aiscam-svr/internal/observability"
)

// Config holds the camera position and timing constants.
type Config struct {
	Observer geometry.Observer

	// Warmup and ShutterDelay are subtracted from the crossing time.
	Warmup       time.Duration
	ShutterDelay time.Duration

	// Window bounds how far ahead a capture may be armed.
	Window time.Duration
	// Cooldown is how long a fired entry blocks re-arming before it is purged.
	Cooldown time.Duration
}

func DefaultConfig(obs geometry.Observer) Config {
	return Config{
		Observer:     obs,
		Warmup:       time.Second,
		ShutterDelay: time.Second,
		Window:       60 * time.Second,
		Cooldown:     60 * time.Second,
	}
}

// Tracker provides a consistent snapshot of a vessel's center and motion.
type Tracker interface {
	Track(mmsi uint32) (geometry.Track, bool, error)
}

// Capturer is told when a vessel is about to cross the bearing. It must not block
// for long; failures are the implementation's to handle.
type Capturer interface {
	CaptureDue(mmsi uint32, depth float64)
}

// Phase of a schedule entry. An absent entry is unscheduled.
type Phase int

const (
	Armed Phase = iota
	Fired
	CoolingDown
)

func (p Phase) String() string {
	switch p {
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case CoolingDown:
		return "cooling_down"
	default:
		return "unknown"
	}
}

// Entry is the public view of a vessel's schedule.
type Entry struct {
	FireAt time.Time
	Depth  float64
	Phase  Phase
}

type job struct {
	Entry
	gen   uint64
	timer clock.Timer
	purge clock.Timer
}

type Scheduler struct {
	cfg      Config
	tracker  Tracker
	capturer Capturer
	clk      clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	jobs    map[uint32]*job
	gen     uint64
	armed   int
	stopped bool
}

func New(cfg Config, tracker Tracker, capturer Capturer, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		tracker:  tracker,
		capturer: capturer,
		clk:      clk,
		logger:   logger,
		jobs:     make(map[uint32]*job),
	}
}

func (s *Scheduler) latency() time.Duration {
	return s.cfg.Warmup + s.cfg.ShutterDelay
}

// OnUpdate re-evaluates the crossing prediction for mmsi. It has the signature of a
// vessel.Subscriber. A missing prediction leaves any armed timer untouched.
func (s *Scheduler) OnUpdate(mmsi uint32, _ time.Time) {
	track, ok, err := s.tracker.Track(mmsi)
	if err != nil {
		s.logger.Debug("track unavailable", "mmsi", mmsi, "error", err)
		return
	}
	if !ok {
		return
	}

	crossing, ok := geometry.PredictCrossing(s.cfg.Observer, track)
	if !ok {
		observability.Predictions.WithLabelValues("none").Inc()
		return
	}

	now := s.clk.Now()
	delta := crossing.Time.Sub(now) - s.latency()
	if delta <= 0 || delta >= s.cfg.Window {
		observability.Predictions.WithLabelValues("outside_window").Inc()
		return
	}

	s.arm(mmsi, now, delta, crossing.Depth)
}

// arm cancels any armed timer for mmsi and starts a new one in one critical section.
func (s *Scheduler) arm(mmsi uint32, now time.Time, delta time.Duration, depth float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	outcome := "armed"
	if j, ok := s.jobs[mmsi]; ok {
		if j.Phase != Armed {
			observability.Predictions.WithLabelValues("suppressed").Inc()
			return
		}
		j.timer.Stop()
		s.armed--
		outcome = "rearmed"
	}

	s.gen++
	gen := s.gen
	j := &job{
		Entry: Entry{FireAt: now.Add(delta), Depth: depth, Phase: Armed},
		gen:   gen,
	}
	j.timer = s.clk.AfterFunc(delta, func() { s.fire(mmsi, gen) })
	s.jobs[mmsi] = j
	s.armed++
	observability.TimersArmed.Set(float64(s.armed))
	observability.Predictions.WithLabelValues(outcome).Inc()

	s.logger.Debug("capture "+outcome, "mmsi", mmsi, "fire_at", j.FireAt, "depth", depth)
}

// fire runs on the timer. A stale generation means the timer lost a race with a re-arm.
func (s *Scheduler) fire(mmsi uint32, gen uint64) {
	s.mu.Lock()
	j, ok := s.jobs[mmsi]
	if !ok || j.gen != gen || j.Phase != Armed || s.stopped {
		s.mu.Unlock()
		return
	}
	j.Phase = Fired
	j.timer = nil
	s.armed--
	observability.TimersArmed.Set(float64(s.armed))
	j.purge = s.clk.AfterFunc(s.cfg.Cooldown, func() { s.purge(mmsi, gen) })
	depth := j.Depth
	s.mu.Unlock()

	observability.CapturesFired.Inc()
	s.logger.Info("capture due", "mmsi", mmsi, "depth", depth)
	s.capture(mmsi, depth)

	s.mu.Lock()
	if cur, ok := s.jobs[mmsi]; ok && cur == j && j.Phase == Fired {
		j.Phase = CoolingDown
	}
	s.mu.Unlock()
}

func (s *Scheduler) capture(mmsi uint32, depth float64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("capturer panicked", "mmsi", mmsi, "panic", r)
		}
	}()
	s.capturer.CaptureDue(mmsi, depth)
}

func (s *Scheduler) purge(mmsi uint32, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[mmsi]; ok && j.gen == gen {
		delete(s.jobs, mmsi)
		s.logger.Debug("schedule purged", "mmsi", mmsi)
	}
}

// State returns the schedule entry for mmsi, false when unscheduled.
func (s *Scheduler) State(mmsi uint32) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[mmsi]
	if !ok {
		return Entry{}, false
	}
	return j.Entry, true
}

// Len returns the number of scheduled vessels in any phase.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels all timers. Later updates are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for mmsi, j := range s.jobs {
		if j.timer != nil {
			j.timer.Stop()
		}
		if j.purge != nil {
			j.purge.Stop()
		}
		delete(s.jobs, mmsi)
	}
	s.armed = 0
	observability.TimersArmed.Set(0)
}
