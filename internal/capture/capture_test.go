package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiscam-svr/internal/report"
	"aiscam-svr/internal/vessel"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }
func sp(v string) *string   { return &v }

func knownVessel(t *testing.T) *vessel.Store {
	t.Helper()
	s := vessel.NewStore()
	ctx := context.Background()
	_, err := s.Apply(ctx, report.Report{Type: 5, MMSI: 366123456, ShipName: sp("GOLDEN BEAR"), ShipType: ip(70),
		Destination: sp("OAKLAND"), ToBow: fp(150), ToStern: fp(50), ToPort: fp(15), ToStarboard: fp(17)}, t0)
	require.NoError(t, err)
	_, err = s.Apply(ctx, report.Report{Type: 1, MMSI: 366123456, Lat: fp(37.8), Lon: fp(-122.4),
		Status: ip(0), Course: fp(268.44), Speed: fp(11.96)}, t0)
	require.NoError(t, err)
	return s
}

func TestDescribe_Caption(t *testing.T) {
	s := knownVessel(t)

	req := Describe(s, 366123456, 1000, t0)

	assert.Equal(t, "🇺🇸 GOLDEN BEAR, Cargo (200 x 32 m), Under Way Using Engine, destination: OAKLAND, course: 268.4 ° / speed: 12.0 kn", req.Caption)
	assert.Equal(t, "GOLDEN BEAR", req.Name)
	assert.Equal(t, 200, req.Length)
	assert.Equal(t, 32, req.Width)
	assert.Equal(t, "https://www.marinetraffic.com/en/ais/details/ships/mmsi:366123456", req.URL)
	assert.Equal(t, t0, req.IssuedAt)
	assert.NotEmpty(t, req.ID)
}

func TestDescribe_UnknownVessel(t *testing.T) {
	s := vessel.NewStore()
	req := Describe(s, 999000001, 500, t0)
	assert.Equal(t, "🇿🇿 (Unidentified), Unknown Type", req.Caption)
	assert.False(t, req.Large)
}

func TestDescribe_MinimalVessel(t *testing.T) {
	s := vessel.NewStore()
	_, err := s.Apply(context.Background(), report.Report{Type: 18, MMSI: 338000001, Lat: fp(1), Lon: fp(1),
		Course: fp(10), Speed: fp(4)}, t0)
	require.NoError(t, err)

	req := Describe(s, 338000001, 500, t0)
	assert.Equal(t, "🇺🇸 (Unidentified), Unknown Type, course: 10.0 ° / speed: 4.0 kn", req.Caption)
}

func TestDescribe_Large(t *testing.T) {
	s := knownVessel(t)

	// 200 m hull
	assert.True(t, Describe(s, 366123456, 300, t0).Large)
	assert.False(t, Describe(s, 366123456, 400, t0).Large)
}

func TestDescribe_UniqueIDs(t *testing.T) {
	s := knownVessel(t)
	a := Describe(s, 366123456, 300, t0)
	b := Describe(s, 366123456, 300, t0)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRequestStruct(t *testing.T) {
	req := Describe(knownVessel(t), 366123456, 250, t0)
	st, err := req.Struct()
	require.NoError(t, err)

	f := st.GetFields()
	assert.Equal(t, req.ID, f["id"].GetStringValue())
	assert.Equal(t, 366123456.0, f["mmsi"].GetNumberValue())
	assert.Equal(t, true, f["large"].GetBoolValue())
	assert.Equal(t, "2026-06-01T12:00:00Z", f["issued_at"].GetStringValue())
}

type memSink struct {
	name string
	mu   sync.Mutex
	got  []Request
	err  error
	wait time.Duration
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Send(ctx context.Context, req Request) error {
	if m.wait > 0 {
		select {
		case <-time.After(m.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, req)
	return m.err
}

func (m *memSink) requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.got...)
}

type panicSink struct{}

func (panicSink) Name() string                        { return "panic" }
func (panicSink) Send(context.Context, Request) error { panic("boom") }

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	good := &memSink{name: "good"}
	failing := &memSink{name: "failing", err: errors.New("camera offline")}
	d := NewDispatcher(knownVessel(t), WithSinks(panicSink{}, failing, good))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.CaptureDue(366123456, 800)

	require.Eventually(t, func() bool { return len(good.requests()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, failing.requests(), 1)
	assert.Equal(t, uint32(366123456), good.requests()[0].MMSI)
	assert.InDelta(t, 800, good.requests()[0].Depth, 1e-9)
}

func TestDispatcher_SinkTimeout(t *testing.T) {
	slow := &memSink{name: "slow", wait: time.Hour}
	after := &memSink{name: "after"}
	d := NewDispatcher(knownVessel(t), WithSinks(slow, after), WithTimeout(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.CaptureDue(366123456, 800)
	require.Eventually(t, func() bool { return len(after.requests()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, slow.requests())
}

func TestDispatcher_QueueFullDrops(t *testing.T) {
	d := NewDispatcher(vessel.NewStore(), Buffered(2))

	assert.NoError(t, d.Enqueue(Request{ID: "1"}))
	assert.NoError(t, d.Enqueue(Request{ID: "2"}))
	assert.Error(t, d.Enqueue(Request{ID: "3"}))

	// CaptureDue never blocks even when full
	done := make(chan struct{})
	go func() {
		d.CaptureDue(1, 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CaptureDue blocked")
	}
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	d := NewDispatcher(vessel.NewStore())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
