package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiscam-svr/internal/clock"
	"aiscam-svr/internal/geometry"
)

const ship uint32 = 366000001

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

var camera = geometry.Observer{Lat: 0, Lon: 0, Bearing: 0}

type fakeTracker struct {
	mu     sync.Mutex
	tracks map[uint32]geometry.Track
}

func (f *fakeTracker) set(mmsi uint32, tr geometry.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tracks == nil {
		f.tracks = map[uint32]geometry.Track{}
	}
	f.tracks[mmsi] = tr
}

func (f *fakeTracker) Track(mmsi uint32) (geometry.Track, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr, ok := f.tracks[mmsi]
	if !ok {
		return geometry.Track{}, false, errors.New("unknown vessel")
	}
	return tr, true, nil
}

type call struct {
	mmsi  uint32
	depth float64
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	hook  func(mmsi uint32)
}

func (r *recorder) CaptureDue(mmsi uint32, depth float64) {
	if r.hook != nil {
		r.hook(mmsi)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{mmsi, depth})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type panicker struct{ calls int }

func (p *panicker) CaptureDue(uint32, float64) {
	p.calls++
	panic("camera on fire")
}

func setup(t *testing.T) (*Scheduler, *fakeTracker, *recorder, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(t0)
	tr := &fakeTracker{}
	rec := &recorder{}
	s := New(DefaultConfig(camera), tr, rec, clk, nil)
	t.Cleanup(s.Stop)
	return s, tr, rec, clk
}

// fast eastbound vessel crossing the north ray ~1.1 km out in ~43 s
func approaching(lon float64, at time.Time) geometry.Track {
	return geometry.Track{Lat: 0.01, Lon: lon, Speed: 50, Course: 90, LastUpdate: at}
}

func expectedFire(t *testing.T, tr geometry.Track) time.Time {
	t.Helper()
	c, ok := geometry.PredictCrossing(camera, tr)
	require.True(t, ok)
	return c.Time.Add(-2 * time.Second)
}

func TestOnUpdate_Arms(t *testing.T) {
	s, tr, rec, clk := setup(t)
	track := approaching(-0.01, t0)
	tr.set(ship, track)

	s.OnUpdate(ship, t0)

	e, ok := s.State(ship)
	require.True(t, ok)
	assert.Equal(t, Armed, e.Phase)
	assert.Equal(t, expectedFire(t, track), e.FireAt)
	assert.InDelta(t, 1111.95, e.Depth, 1)
	assert.Equal(t, 1, clk.Pending())
	assert.Zero(t, rec.count())
}

func TestOnUpdate_RearmKeepsOneTimer(t *testing.T) {
	s, tr, _, clk := setup(t)
	tr.set(ship, approaching(-0.01, t0))
	s.OnUpdate(ship, t0)

	clk.Advance(5 * time.Second)
	second := approaching(-0.005, clk.Now())
	tr.set(ship, second)
	s.OnUpdate(ship, clk.Now())

	want := expectedFire(t, second)
	require.Equal(t, 1, clk.Pending())
	assert.Equal(t, []time.Time{want}, clk.Deadlines())

	e, ok := s.State(ship)
	require.True(t, ok)
	assert.Equal(t, Armed, e.Phase)
	assert.Equal(t, want, e.FireAt)
}

func TestFire_CallsCapturerOnce(t *testing.T) {
	s, tr, rec, clk := setup(t)
	tr.set(ship, approaching(-0.01, t0))
	s.OnUpdate(ship, t0)

	clk.Advance(45 * time.Second)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, ship, rec.calls[0].mmsi)
	assert.InDelta(t, 1111.95, rec.calls[0].depth, 1)

	e, ok := s.State(ship)
	require.True(t, ok)
	assert.Equal(t, CoolingDown, e.Phase)
}

func TestCooldown_SuppressesThenPurges(t *testing.T) {
	s, tr, rec, clk := setup(t)
	tr.set(ship, approaching(-0.01, t0))
	s.OnUpdate(ship, t0)
	clk.Advance(45 * time.Second)
	require.Equal(t, 1, rec.count())

	// still near the line and reporting: must not re-arm during cooldown
	for i := 0; i < 5; i++ {
		clk.Advance(5 * time.Second)
		tr.set(ship, approaching(-0.008, clk.Now()))
		s.OnUpdate(ship, clk.Now())

		e, ok := s.State(ship)
		require.True(t, ok)
		assert.Equal(t, CoolingDown, e.Phase)
	}
	assert.Equal(t, 1, clk.Pending(), "only the purge timer")

	clk.Advance(60 * time.Second)
	_, ok := s.State(ship)
	assert.False(t, ok)

	tr.set(ship, approaching(-0.01, clk.Now()))
	s.OnUpdate(ship, clk.Now())
	e, ok := s.State(ship)
	require.True(t, ok)
	assert.Equal(t, Armed, e.Phase)

	clk.Advance(45 * time.Second)
	assert.Equal(t, 2, rec.count())
}

func TestPurgeIsUnconditionalAfterCooldown(t *testing.T) {
	s, tr, _, clk := setup(t)
	tr.set(ship, approaching(-0.01, t0))
	s.OnUpdate(ship, t0)

	e, _ := s.State(ship)
	fireAt := e.FireAt

	clk.Advance(fireAt.Sub(t0))
	_, ok := s.State(ship)
	require.True(t, ok)

	clk.Advance(60*time.Second - time.Millisecond)
	_, ok = s.State(ship)
	assert.True(t, ok)

	clk.Advance(time.Millisecond)
	_, ok = s.State(ship)
	assert.False(t, ok)
}

func TestOnUpdate_NullPredictionLeavesTimerArmed(t *testing.T) {
	s, tr, rec, clk := setup(t)
	tr.set(ship, approaching(-0.01, t0))
	s.OnUpdate(ship, t0)
	before, _ := s.State(ship)

	clk.Advance(2 * time.Second)
	stopped := approaching(-0.009, clk.Now())
	stopped.Speed = 0.1
	tr.set(ship, stopped)
	s.OnUpdate(ship, clk.Now())

	after, ok := s.State(ship)
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(time.Minute)
	assert.Equal(t, 1, rec.count())
}

func TestOnUpdate_OutsideWindow(t *testing.T) {
	s, tr, _, clk := setup(t)

	// ~216 s away
	slow := approaching(-0.01, t0)
	slow.Speed = 10
	tr.set(ship, slow)
	s.OnUpdate(ship, t0)
	_, ok := s.State(ship)
	assert.False(t, ok)

	// already past the crossing
	tr.set(ship, approaching(-0.01, t0.Add(-time.Hour)))
	s.OnUpdate(ship, t0)
	_, ok = s.State(ship)
	assert.False(t, ok)

	// crossing sooner than the capture latency
	tr.set(ship, approaching(-0.0001, t0))
	s.OnUpdate(ship, t0)
	_, ok = s.State(ship)
	assert.False(t, ok)

	assert.Zero(t, clk.Pending())
}

func TestOnUpdate_UnknownVessel(t *testing.T) {
	s, _, _, clk := setup(t)
	assert.NotPanics(t, func() { s.OnUpdate(42, t0) })
	assert.Zero(t, s.Len())
	assert.Zero(t, clk.Pending())
}

func TestFire_StaleGenerationIsNoop(t *testing.T) {
	s, tr, rec, _ := setup(t)
	tr.set(ship, approaching(-0.01, t0))
	s.OnUpdate(ship, t0)

	s.mu.Lock()
	stale := s.jobs[ship].gen
	s.mu.Unlock()

	tr.set(ship, approaching(-0.009, t0))
	s.OnUpdate(ship, t0)

	s.fire(ship, stale)
	assert.Zero(t, rec.count())

	e, ok := s.State(ship)
	require.True(t, ok)
	assert.Equal(t, Armed, e.Phase)
}

func TestFire_CapturerRunsWithoutLock(t *testing.T) {
	s, tr, rec, clk := setup(t)
	var seen Phase = -1
	rec.hook = func(mmsi uint32) {
		e, ok := s.State(mmsi)
		if ok {
			seen = e.Phase
		}
		// updates arriving during the capture are suppressed
		s.OnUpdate(mmsi, clk.Now())
	}

	tr.set(ship, approaching(-0.01, t0))
	s.OnUpdate(ship, t0)
	clk.Advance(45 * time.Second)

	assert.Equal(t, Fired, seen)
	assert.Equal(t, 1, rec.count())
}

func TestFire_PanickingCapturer(t *testing.T) {
	clk := clock.NewMockClock(t0)
	tr := &fakeTracker{}
	p := &panicker{}
	s := New(DefaultConfig(camera), tr, p, clk, nil)
	defer s.Stop()

	tr.set(ship, approaching(-0.01, t0))
	s.OnUpdate(ship, t0)

	assert.NotPanics(t, func() { clk.Advance(45 * time.Second) })
	assert.Equal(t, 1, p.calls)

	e, ok := s.State(ship)
	require.True(t, ok)
	assert.Equal(t, CoolingDown, e.Phase)

	clk.Advance(time.Minute)
	_, ok = s.State(ship)
	assert.False(t, ok)
}

func TestIndependentVessels(t *testing.T) {
	s, tr, rec, clk := setup(t)
	tr.set(1, approaching(-0.01, t0))
	tr.set(2, approaching(-0.005, t0))

	s.OnUpdate(1, t0)
	s.OnUpdate(2, t0)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, clk.Pending())

	clk.Advance(45 * time.Second)
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, uint32(2), rec.calls[0].mmsi)
	assert.Equal(t, uint32(1), rec.calls[1].mmsi)
}

func TestStop(t *testing.T) {
	s, tr, rec, clk := setup(t)
	tr.set(ship, approaching(-0.01, t0))
	s.OnUpdate(ship, t0)

	s.Stop()
	assert.Zero(t, clk.Pending())
	assert.Zero(t, s.Len())

	s.OnUpdate(ship, t0)
	clk.Advance(time.Minute)
	assert.Zero(t, rec.count())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "armed", Armed.String())
	assert.Equal(t, "fired", Fired.String())
	assert.Equal(t, "cooling_down", CoolingDown.String())
}
