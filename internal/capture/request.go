// Package capture turns a due crossing into a capture request and delivers it to the
// camera and any other downstream sinks.
package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"aiscam-svr/internal/vessel"
)

// largeRatio is 0.9 * tan(31.1°), half of the camera's 62.2° horizontal field of view.
// A hull longer than largeRatio * depth does not fit a zoomed frame.
const largeRatio = 0.542915

const detailsURL = "https://www.marinetraffic.com/en/ais/details/ships/mmsi:%d"

// Describer is the read side of the vessel store needed to describe a capture.
type Describer interface {
	Snapshot(mmsi uint32) (vessel.State, error)
	Name(mmsi uint32) string
	Flag(mmsi uint32) string
	ShipType(mmsi uint32) string
	Status(mmsi uint32) string
	Dimensions(mmsi uint32) (int, int, error)
}

// Request asks the camera for one exposure of a vessel crossing the bearing.
type Request struct {
	ID       string    `json:"id"`
	MMSI     uint32    `json:"mmsi"`
	Depth    float64   `json:"depth"`
	Name     string    `json:"name"`
	Flag     string    `json:"flag"`
	ShipType string    `json:"ship_type"`
	Length   int       `json:"length"`
	Width    int       `json:"width"`
	Large    bool      `json:"large"`
	Caption  string    `json:"caption"`
	URL      string    `json:"url"`
	IssuedAt time.Time `json:"issued_at"`
}

// Describe builds the request for mmsi at the given depth. Unknown vessels get
// placeholder text.
func Describe(d Describer, mmsi uint32, depth float64, at time.Time) Request {
	length, width, _ := d.Dimensions(mmsi)
	req := Request{
		ID:       uuid.NewString(),
		MMSI:     mmsi,
		Depth:    depth,
		Name:     d.Name(mmsi),
		Flag:     d.Flag(mmsi),
		ShipType: d.ShipType(mmsi),
		Length:   length,
		Width:    width,
		Large:    float64(length) > largeRatio*depth,
		URL:      fmt.Sprintf(detailsURL, mmsi),
		IssuedAt: at,
	}
	req.Caption = caption(d, req)
	return req
}

func caption(d Describer, req Request) string {
	var b strings.Builder
	if req.Flag != "" {
		b.WriteString(req.Flag)
		b.WriteByte(' ')
	}
	b.WriteString(req.Name)
	b.WriteString(", ")
	b.WriteString(req.ShipType)

	if req.Length > 0 && req.Width > 0 {
		fmt.Fprintf(&b, " (%d x %d m)", req.Length, req.Width)
	}
	if status := d.Status(req.MMSI); status != "" {
		b.WriteString(", ")
		b.WriteString(status)
	}

	st, err := d.Snapshot(req.MMSI)
	if err != nil {
		return b.String()
	}
	if st.Static.Destination != nil && *st.Static.Destination != "" {
		b.WriteString(", destination: ")
		b.WriteString(*st.Static.Destination)
	}
	if st.Position != nil {
		fmt.Fprintf(&b, ", course: %.1f ° / speed: %.1f kn", st.Position.Course, st.Position.Speed)
	}
	return b.String()
}

// Struct encodes the request as a protobuf Struct for the camera service.
func (r Request) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":        r.ID,
		"mmsi":      r.MMSI,
		"depth":     r.Depth,
		"name":      r.Name,
		"flag":      r.Flag,
		"ship_type": r.ShipType,
		"length":    r.Length,
		"width":     r.Width,
		"large":     r.Large,
		"caption":   r.Caption,
		"url":       r.URL,
		"issued_at": r.IssuedAt.UTC().Format(time.RFC3339Nano),
	})
}
