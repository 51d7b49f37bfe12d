// Package pipeline builds vessel views from the store and fans them out to feeds.
package pipeline

import (
	"fmt"
	"time"

	"aiscam-svr/internal/clock"
	"aiscam-svr/internal/vessel"
)

// StaleAfter is the report age after which a view is marked stale.
const StaleAfter = 120 * time.Second

// Source is the read side of the vessel store.
type Source interface {
	Snapshot(mmsi uint32) (vessel.State, error)
	Name(mmsi uint32) string
	Flag(mmsi uint32) string
	ShipType(mmsi uint32) string
	Status(mmsi uint32) string
	Dimensions(mmsi uint32) (int, int, error)
	CenterCoords(mmsi uint32) (float64, float64, bool, error)
}

// Publisher receives every built view. It must not block.
type Publisher interface {
	PublishVessel(v *VesselView)
}

func coordsValid(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return true
}

func CalcFix(lat, lon float64) int {
	if coordsValid(lat, lon) {
		return 1
	}
	return 0
}

func DecideMsgType(ts, now time.Time) int {
	if ts.IsZero() || now.Sub(ts) > StaleAfter {
		return 0
	}
	return 1
}

// BuildView returns nil without error for vessels that have no position yet.
func BuildView(src Source, mmsi uint32, now time.Time) (*VesselView, error) {
	st, err := src.Snapshot(mmsi)
	if err != nil {
		return nil, fmt.Errorf("view %d: %w", mmsi, err)
	}
	if st.Position == nil {
		return nil, nil
	}
	clat, clon, _, err := src.CenterCoords(mmsi)
	if err != nil {
		return nil, fmt.Errorf("view %d: %w", mmsi, err)
	}
	length, width, _ := src.Dimensions(mmsi)

	v := &VesselView{
		MMSI:      mmsi,
		Class:     string(st.Class),
		Name:      src.Name(mmsi),
		Flag:      src.Flag(mmsi),
		ShipType:  src.ShipType(mmsi),
		Status:    src.Status(mmsi),
		Datetime:  st.LastUpdate.UTC().Format(time.RFC3339),
		Lat:       st.Position.Lat,
		Lon:       st.Position.Lon,
		CenterLat: clat,
		CenterLon: clon,
		Spd:       st.Position.Speed,
		Crs:       st.Position.Course,
		Heading:   st.Position.Heading,
		Length:    length,
		Width:     width,
		MsgType:   DecideMsgType(st.LastUpdate, now),
		Fix:       CalcFix(st.Position.Lat, st.Position.Lon),
	}
	if st.Static.Destination != nil {
		v.Destination = *st.Static.Destination
	}
	return v, nil
}

// Feed rebuilds a vessel's view after each store update and hands it to every publisher.
type Feed struct {
	src  Source
	clk  clock.Clock
	pubs []Publisher
}

func NewFeed(src Source, clk clock.Clock, pubs ...Publisher) *Feed {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Feed{src: src, clk: clk, pubs: pubs}
}

// OnUpdate has the signature of a vessel.Subscriber.
func (f *Feed) OnUpdate(mmsi uint32, _ time.Time) {
	if len(f.pubs) == 0 {
		return
	}
	v, err := BuildView(f.src, mmsi, f.clk.Now())
	if err != nil || v == nil {
		return
	}
	for _, p := range f.pubs {
		p.PublishVessel(v)
	}
}
