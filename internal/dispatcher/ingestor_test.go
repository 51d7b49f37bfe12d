package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiscam-svr/internal/clock"
	"aiscam-svr/internal/report"
	"aiscam-svr/internal/vessel"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type memArchive struct {
	mu    sync.Mutex
	lines []string
}

func (m *memArchive) Write(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

func (m *memArchive) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

type failingStore struct{ calls int }

func (f *failingStore) Apply(context.Context, report.Report, time.Time) (uint32, error) {
	f.calls++
	return 0, errors.New("disk on fire")
}

func run(t *testing.T, i *Ingestor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = i.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestIngestor_AppliesInOrder(t *testing.T) {
	store := vessel.NewStore()
	archive := &memArchive{}
	clk := clock.NewMockClock(t0)

	var mu sync.Mutex
	var seen []time.Time
	store.Subscribe(func(_ uint32, at time.Time) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, at)
	})

	i := NewIngestor(store, WithArchive(archive), WithClock(clk))
	run(t, i)

	ctx := context.Background()
	lines := []string{
		`{"type":1,"mmsi":366000001,"lat":37.80,"lon":-122.40,"course":90,"speed":10}`,
		`{"type":4,"mmsi":3669999}`,
		`garbage`,
		`{"type":1,"mmsi":366000001,"lat":37.81,"lon":-122.39,"course":91,"speed":11}`,
		`{"type":5,"mmsi":366000001,"shipname":"PILOT"}`,
	}
	for _, l := range lines {
		require.NoError(t, i.Submit(ctx, []byte(l)))
		clk.Advance(time.Second)
	}

	require.Eventually(t, func() bool { return archive.len() == len(lines) }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 5*time.Millisecond)

	st, err := store.Snapshot(366000001)
	require.NoError(t, err)
	require.NotNil(t, st.Position)
	assert.InDelta(t, 37.81, st.Position.Lat, 1e-9)
	assert.Equal(t, t0.Add(3*time.Second), st.LastUpdate)
	assert.Equal(t, "PILOT", store.Name(366000001))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Time{t0, t0.Add(3 * time.Second), t0.Add(4 * time.Second)}, seen)
}

func TestIngestor_ApplyErrorDoesNotStop(t *testing.T) {
	store := &failingStore{}
	archive := &memArchive{}
	i := NewIngestor(store, WithArchive(archive))
	run(t, i)

	ctx := context.Background()
	for k := 0; k < 3; k++ {
		require.NoError(t, i.Submit(ctx, []byte(`{"type":24,"mmsi":338000001,"shipname":"X"}`)))
	}
	require.Eventually(t, func() bool { return archive.len() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestIngestor_SubmitCopiesInput(t *testing.T) {
	i := NewIngestor(vessel.NewStore())
	buf := []byte(`{"type":24,"mmsi":338000001,"shipname":"A"}`)
	require.NoError(t, i.Submit(context.Background(), buf))
	buf[0] = 'x'

	l := <-i.queue
	assert.Equal(t, byte('{'), l.data[0])
}

func TestIngestor_SubmitHonorsContext(t *testing.T) {
	i := NewIngestor(vessel.NewStore(), Buffered(1))
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, i.Submit(ctx, []byte("a")))
	cancel()
	assert.ErrorIs(t, i.Submit(ctx, []byte("b")), context.Canceled)
}

func TestIngestor_RunReturnsOnCancel(t *testing.T) {
	i := NewIngestor(vessel.NewStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, i.Run(ctx), context.Canceled)
}
