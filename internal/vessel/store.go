package vessel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"aiscam-svr/internal/geometry"
	"aiscam-svr/internal/observability"
	"aiscam-svr/internal/report"
)

const unidentified = "(Unidentified)"

// StaticCache persists static attributes across restarts.
type StaticCache interface {
	Lookup(ctx context.Context, mmsi uint32) (Static, bool, error)
	Upsert(ctx context.Context, mmsi uint32, s Static) error
}

// Subscriber is notified after every applied report. It runs on the goroutine
// that called Apply, after the store lock is released.
type Subscriber func(mmsi uint32, t time.Time)

type Option func(*Store)

func WithCache(c StaticCache) Option {
	return func(s *Store) { s.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithCodes(c *Codes) Option {
	return func(s *Store) { s.codes = c }
}

// Store maps MMSI to the latest vessel state. Entries are never removed.
type Store struct {
	mu      sync.RWMutex
	vessels map[uint32]*State
	subs    []Subscriber

	cache  StaticCache
	codes  *Codes
	logger *slog.Logger
}

func NewStore(opts ...Option) *Store {
	s := &Store{vessels: make(map[uint32]*State)}
	for _, opt := range opts {
		opt(s)
	}
	if s.codes == nil {
		s.codes = mustLoadCodes()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Subscribe registers fn for all subsequent updates.
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Apply merges r into the vessel's state at time t and notifies subscribers.
// Cache failures are logged and never fail the update.
func (s *Store) Apply(ctx context.Context, r report.Report, t time.Time) (uint32, error) {
	kind := r.Kind()
	if kind == report.KindUnsupported {
		return 0, fmt.Errorf("apply mmsi %d: %w", r.MMSI, report.ErrUnsupported)
	}
	mmsi := r.MMSI

	s.mu.RLock()
	_, known := s.vessels[mmsi]
	s.mu.RUnlock()

	var seed Static
	var seeded bool
	if !known && s.cache != nil {
		var err error
		seed, seeded, err = s.cache.Lookup(ctx, mmsi)
		if err != nil {
			observability.CacheErrors.WithLabelValues("lookup").Inc()
			s.logger.Warn("static cache lookup failed", "mmsi", mmsi, "error", err)
			seeded = false
		}
	}

	var merged Static
	s.mu.Lock()
	v, ok := s.vessels[mmsi]
	if !ok {
		v = &State{MMSI: mmsi, Class: ClassA}
		if r.ClassB() {
			v.Class = ClassB
		}
		if seeded {
			v.Static = seed.Clone()
		}
		s.vessels[mmsi] = v
		observability.VesselsTracked.Set(float64(len(s.vessels)))
	}
	if r.HasStatic() {
		v.Static.Merge(StaticFromReport(r))
		merged = v.Static.Clone()
	}
	if r.HasPosition() {
		p := Position{
			Lat:     *r.Lat,
			Lon:     *r.Lon,
			Status:  r.Status,
			Heading: r.Heading,
			Course:  *r.Course,
			Speed:   *r.Speed,
		}
		p = p.clone()
		v.Position = &p
		v.LastUpdate = t
	}
	subs := s.subs
	s.mu.Unlock()

	if r.HasStatic() && s.cache != nil {
		if err := s.cache.Upsert(ctx, mmsi, merged); err != nil {
			observability.CacheErrors.WithLabelValues("upsert").Inc()
			s.logger.Warn("static cache upsert failed", "mmsi", mmsi, "error", err)
		}
	}

	for _, fn := range subs {
		fn(mmsi, t)
	}
	return mmsi, nil
}

// Snapshot returns a deep copy of the vessel's state.
func (s *Store) Snapshot(mmsi uint32) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vessels[mmsi]
	if !ok {
		return State{}, ErrNotFound
	}
	return v.clone(), nil
}

// Len returns the number of vessels tracked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vessels)
}

// Dimensions returns hull length and width in whole metres, (0, 0) when unknown.
func (s *Store) Dimensions(mmsi uint32) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vessels[mmsi]
	if !ok {
		return 0, 0, ErrNotFound
	}
	l, w := v.Static.Dimensions()
	return int(l), int(w), nil
}

// CenterCoords returns the vessel's hull center. ok is false before the first position report.
func (s *Store) CenterCoords(mmsi uint32) (lat, lon float64, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, found := s.vessels[mmsi]
	if !found {
		return 0, 0, false, ErrNotFound
	}
	if v.Position == nil {
		return 0, 0, false, nil
	}
	lat, lon = center(v)
	return lat, lon, true, nil
}

// Track returns the center position and motion of a vessel as one consistent snapshot.
func (s *Store) Track(mmsi uint32) (geometry.Track, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, found := s.vessels[mmsi]
	if !found {
		return geometry.Track{}, false, ErrNotFound
	}
	if v.Position == nil {
		return geometry.Track{}, false, nil
	}
	lat, lon := center(v)
	return geometry.Track{
		Lat:        lat,
		Lon:        lon,
		Speed:      v.Position.Speed,
		Course:     v.Position.Course,
		LastUpdate: v.LastUpdate,
	}, true, nil
}

// center must be called with the lock held and a known position.
func center(v *State) (float64, float64) {
	heading := 0.0
	if v.Position.Heading != nil {
		heading = *v.Position.Heading
	}
	st := v.Static
	return geometry.CenterOfVessel(v.Position.Lat, v.Position.Lon,
		deref(st.ToBow), deref(st.ToStern), deref(st.ToPort), deref(st.ToStarboard), heading)
}

// Name returns the ship name or a placeholder.
func (s *Store) Name(mmsi uint32) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.vessels[mmsi]; ok && v.Static.Name != nil {
		return *v.Static.Name
	}
	return unidentified
}

// Flag returns the flag emoji of the MMSI's country of registration.
func (s *Store) Flag(mmsi uint32) string {
	return FlagEmoji(s.codes.Country(mmsi))
}

// ShipType returns the label of the vessel's ship type code.
func (s *Store) ShipType(mmsi uint32) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.vessels[mmsi]; ok && v.Static.ShipType != nil {
		if label, ok := s.codes.ShipTypes[*v.Static.ShipType]; ok {
			return label
		}
	}
	return unknownType
}

// Status returns the navigational status label, empty when unknown.
func (s *Store) Status(mmsi uint32) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.vessels[mmsi]; ok && v.Position != nil && v.Position.Status != nil {
		return s.codes.Statuses[*v.Position.Status]
	}
	return ""
}
