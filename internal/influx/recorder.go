// Package influx records vessel tracks and captures as InfluxDB points.
package influx

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"aiscam-svr/internal/capture"
	"aiscam-svr/internal/observability"
	"aiscam-svr/internal/pipeline"
)

// Recorder writes through the non-blocking write API. A nil *Recorder discards.
type Recorder struct {
	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	logger *slog.Logger
	done   chan struct{}
}

// New returns nil when url is empty.
func New(url, token, org, bucket string, logger *slog.Logger) *Recorder {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000))

	r := &Recorder{
		client: client,
		writer: client.WriteAPI(org, bucket),
		logger: logger.With("component", "influx", "bucket", bucket),
		done:   make(chan struct{}),
	}
	errorsCh := r.writer.Errors()
	go func() {
		defer close(r.done)
		for err := range errorsCh {
			observability.InfluxWriteErrors.Inc()
			r.logger.Error("influx write failed", "error", err)
		}
	}()
	return r
}

// Ping reports whether the server is reachable.
func (r *Recorder) Ping(ctx context.Context) (bool, error) {
	if r == nil {
		return false, nil
	}
	return r.client.Ping(ctx)
}

// VesselPoint builds a vessel_position point stamped with the report time.
func VesselPoint(v *pipeline.VesselView) *influxdb2_write.Point {
	ts, err := time.Parse(time.RFC3339, v.Datetime)
	if err != nil {
		ts = time.Now()
	}
	p := influxdb2.NewPointWithMeasurement("vessel_position").
		AddTag("mmsi", strconv.FormatUint(uint64(v.MMSI), 10)).
		AddField("name", v.Name).
		AddField("lat", v.Lat).
		AddField("lon", v.Lon).
		AddField("center_lat", v.CenterLat).
		AddField("center_lon", v.CenterLon).
		AddField("speed", v.Spd).
		AddField("course", v.Crs).
		SetTime(ts)
	// empty tag values are not valid line protocol
	if v.Class != "" {
		p.AddTag("class", v.Class)
	}
	if v.ShipType != "" {
		p.AddTag("ship_type", v.ShipType)
	}
	if v.Heading != nil {
		p.AddField("heading", *v.Heading)
	}
	return p
}

// CapturePoint builds a capture point stamped with the issue time.
func CapturePoint(req capture.Request) *influxdb2_write.Point {
	return influxdb2.NewPointWithMeasurement("capture").
		AddTag("mmsi", strconv.FormatUint(uint64(req.MMSI), 10)).
		AddTag("large", strconv.FormatBool(req.Large)).
		AddField("id", req.ID).
		AddField("name", req.Name).
		AddField("depth", req.Depth).
		AddField("length", req.Length).
		AddField("width", req.Width).
		SetTime(req.IssuedAt)
}

// PublishVessel implements pipeline.Publisher.
func (r *Recorder) PublishVessel(v *pipeline.VesselView) {
	if r == nil || v == nil {
		return
	}
	r.writer.WritePoint(VesselPoint(v))
}

func (r *Recorder) Name() string { return "influx" }

// Send implements capture.Sink.
func (r *Recorder) Send(_ context.Context, req capture.Request) error {
	if r == nil {
		return nil
	}
	r.writer.WritePoint(CapturePoint(req))
	return nil
}

// Close flushes pending points.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.writer.Flush()
	r.client.Close()
	<-r.done
}
