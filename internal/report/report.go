// Package report models decoded AIS messages as they arrive from the external decoder,
// one JSON object per line using the pyais/gpsd field names.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalid is returned for lines that are not a well formed report.
	ErrInvalid = errors.New("invalid report")
	// ErrUnsupported is returned for message types the tracker ignores.
	ErrUnsupported = errors.New("unsupported message type")
)

// HeadingNotAvailable is the AIS sentinel for a missing true heading.
const HeadingNotAvailable = 511

// Kind groups AIS message types by the fields they carry.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPosition
	KindStatic
	KindStaticVoyage
)

func (k Kind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindStatic:
		return "static"
	case KindStaticVoyage:
		return "static_voyage"
	default:
		return "unsupported"
	}
}

// Report is one decoded AIS message. Optional fields are nil when the message
// did not carry them.
type Report struct {
	Type int    `json:"type" validate:"required"`
	MMSI uint32 `json:"mmsi" validate:"required,max=999999999"`

	// static and voyage
	ShipName    *string  `json:"shipname,omitempty"`
	ShipType    *int     `json:"shiptype,omitempty" validate:"omitempty,gte=0,lte=99"`
	IMO         *int     `json:"imo,omitempty" validate:"omitempty,gte=0"`
	Destination *string  `json:"destination,omitempty"`
	Draught     *float64 `json:"draught,omitempty" validate:"omitempty,gte=0"`
	ToBow       *float64 `json:"to_bow,omitempty" validate:"omitempty,gte=0"`
	ToStern     *float64 `json:"to_stern,omitempty" validate:"omitempty,gte=0"`
	ToPort      *float64 `json:"to_port,omitempty" validate:"omitempty,gte=0"`
	ToStarboard *float64 `json:"to_starboard,omitempty" validate:"omitempty,gte=0"`

	// position
	Lat     *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lon     *float64 `json:"lon,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Status  *int     `json:"status,omitempty" validate:"omitempty,gte=0,lte=15"`
	Heading *float64 `json:"heading,omitempty" validate:"omitempty,gte=0"`
	Course  *float64 `json:"course,omitempty" validate:"omitempty,gte=0,lte=360"`
	Speed   *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
}

// Kind classifies the report by message type.
func (r Report) Kind() Kind {
	switch r.Type {
	case 1, 2, 3, 18:
		return KindPosition
	case 24:
		return KindStatic
	case 5:
		return KindStaticVoyage
	default:
		return KindUnsupported
	}
}

// ClassB reports whether the message type is only sent by class B transponders.
func (r Report) ClassB() bool {
	return r.Type == 18 || r.Type == 24
}

// HasStatic reports whether the message carries static attributes.
func (r Report) HasStatic() bool {
	k := r.Kind()
	return k == KindStatic || k == KindStaticVoyage
}

// HasPosition reports whether the message carries dynamic attributes.
func (r Report) HasPosition() bool {
	return r.Kind() == KindPosition
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(positionFields, Report{})
	return v
}

// positionFields requires the fields a crossing prediction needs on position reports.
func positionFields(sl validator.StructLevel) {
	r := sl.Current().Interface().(Report)
	if !r.HasPosition() {
		return
	}
	if r.Lat == nil {
		sl.ReportError(r.Lat, "Lat", "lat", "required", "")
	}
	if r.Lon == nil {
		sl.ReportError(r.Lon, "Lon", "lon", "required", "")
	}
	if r.Course == nil {
		sl.ReportError(r.Course, "Course", "course", "required", "")
	}
	if r.Speed == nil {
		sl.ReportError(r.Speed, "Speed", "speed", "required", "")
	}
}

// Decode parses and validates one JSON line. Errors wrap ErrInvalid or ErrUnsupported.
func Decode(line []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(line, &r); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if r.Kind() == KindUnsupported {
		return r, fmt.Errorf("%w: %d", ErrUnsupported, r.Type)
	}

	r.normalize()

	if err := validate.Struct(r); err != nil {
		return r, fmt.Errorf("%w: mmsi %d: %v", ErrInvalid, r.MMSI, err)
	}
	return r, nil
}

// normalize maps AIS "not available" encodings to absent fields.
func (r *Report) normalize() {
	if r.Heading != nil && *r.Heading >= HeadingNotAvailable {
		r.Heading = nil
	}
	r.ShipName = cleanText(r.ShipName)
	r.Destination = cleanText(r.Destination)
}

// cleanText strips the '@' padding of AIS six-bit text; blank text is absent.
func cleanText(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(strings.TrimRight(*s, "@"))
	if v == "" {
		return nil
	}
	return &v
}
