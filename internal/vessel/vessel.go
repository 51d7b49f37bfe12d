// Package vessel keeps the latest known state of every vessel heard on the radio.
package vessel

import (
	"errors"
	"time"

	"aiscam-svr/internal/report"
)

var ErrNotFound = errors.New("vessel not found")

// Class is the AIS transponder class.
type Class string

const (
	ClassA Class = "A"
	ClassB Class = "B"
)

// Static holds identity and voyage attributes. Nil fields are unknown.
type Static struct {
	Name        *string  `json:"shipname,omitempty"`
	ShipType    *int     `json:"shiptype,omitempty"`
	IMO         *int     `json:"imo,omitempty"`
	Destination *string  `json:"destination,omitempty"`
	Draught     *float64 `json:"draught,omitempty"`
	ToBow       *float64 `json:"to_bow,omitempty"`
	ToStern     *float64 `json:"to_stern,omitempty"`
	ToPort      *float64 `json:"to_port,omitempty"`
	ToStarboard *float64 `json:"to_starboard,omitempty"`
}

// StaticFromReport extracts the static fields carried by r.
func StaticFromReport(r report.Report) Static {
	return Static{
		Name:        r.ShipName,
		ShipType:    r.ShipType,
		IMO:         r.IMO,
		Destination: r.Destination,
		Draught:     r.Draught,
		ToBow:       r.ToBow,
		ToStern:     r.ToStern,
		ToPort:      r.ToPort,
		ToStarboard: r.ToStarboard,
	}
}

// Merge overwrites s with every field set in o. Fields absent from o are kept.
func (s *Static) Merge(o Static) {
	if o.Name != nil {
		s.Name = ptr(*o.Name)
	}
	if o.ShipType != nil {
		s.ShipType = ptr(*o.ShipType)
	}
	if o.IMO != nil {
		s.IMO = ptr(*o.IMO)
	}
	if o.Destination != nil {
		s.Destination = ptr(*o.Destination)
	}
	if o.Draught != nil {
		s.Draught = ptr(*o.Draught)
	}
	if o.ToBow != nil {
		s.ToBow = ptr(*o.ToBow)
	}
	if o.ToStern != nil {
		s.ToStern = ptr(*o.ToStern)
	}
	if o.ToPort != nil {
		s.ToPort = ptr(*o.ToPort)
	}
	if o.ToStarboard != nil {
		s.ToStarboard = ptr(*o.ToStarboard)
	}
}

// Clone returns a copy that shares no pointers with s.
func (s Static) Clone() Static {
	var c Static
	c.Merge(s)
	return c
}

// IsZero reports whether no field is known.
func (s Static) IsZero() bool {
	return s.Name == nil && s.ShipType == nil && s.IMO == nil && s.Destination == nil &&
		s.Draught == nil && s.ToBow == nil && s.ToStern == nil && s.ToPort == nil && s.ToStarboard == nil
}

// Position is the dynamic part of a vessel state. All fields come from the same report.
type Position struct {
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	Status  *int     `json:"status,omitempty"`
	Heading *float64 `json:"heading,omitempty"`
	Course  float64  `json:"course"`
	Speed   float64  `json:"speed"`
}

func (p Position) clone() Position {
	c := p
	if p.Status != nil {
		c.Status = ptr(*p.Status)
	}
	if p.Heading != nil {
		c.Heading = ptr(*p.Heading)
	}
	return c
}

// State is a point in time copy of one vessel.
type State struct {
	MMSI       uint32    `json:"mmsi"`
	Class      Class     `json:"class"`
	Static     Static    `json:"static"`
	Position   *Position `json:"position,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

func (s *State) clone() State {
	c := State{
		MMSI:       s.MMSI,
		Class:      s.Class,
		Static:     s.Static.Clone(),
		LastUpdate: s.LastUpdate,
	}
	if s.Position != nil {
		p := s.Position.clone()
		c.Position = &p
	}
	return c
}

// Dimensions returns hull length and width in metres; missing offsets count as 0.
func (s Static) Dimensions() (length, width float64) {
	return deref(s.ToBow) + deref(s.ToStern), deref(s.ToPort) + deref(s.ToStarboard)
}

func ptr[T any](v T) *T { return &v }

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
