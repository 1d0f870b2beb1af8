package render

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/flightmap/tracker/states"
	"github.com/flightmap/tracker/trajectory"
)

//go:embed map.html.tmpl
var mapTemplate string

// ErrEmptyDataset is returned when there is nothing to draw.
var ErrEmptyDataset = errors.New("no samples to render")

// Tier buckets a marker by altitude.
type Tier string

const (
	TierHigh Tier = "high"
	TierMid  Tier = "mid"
	TierLow  Tier = "low"
)

// AltitudeTier applies the fixed thresholds: above 30000 is high, above 10000
// is mid, anything else is low.
func AltitudeTier(altitude float64) Tier {
	switch {
	case altitude > 30000:
		return TierHigh
	case altitude > 10000:
		return TierMid
	default:
		return TierLow
	}
}

// Color is the marker colour of a tier.
func (t Tier) Color() string {
	switch t {
	case TierHigh:
		return "green"
	case TierMid:
		return "blue"
	default:
		return "red"
	}
}

// View is everything one render draws. Points holds the position of every
// sample in the window, duplicates included.
type View struct {
	Latest      map[string]states.Sample
	Paths       map[string]trajectory.Path
	Order       []string
	Points      []trajectory.LatLon
	GeneratedAt time.Time
	Window      time.Duration
}

// ViewFromResult wraps a trajectory result and the samples it was built from.
func ViewFromResult(res trajectory.Result, samples []states.Sample, generatedAt time.Time, window time.Duration) View {
	points := make([]trajectory.LatLon, len(samples))
	for i, s := range samples {
		points[i] = trajectory.LatLon{Lat: s.Latitude, Lon: s.Longitude}
	}
	return View{
		Latest:      res.Latest,
		Paths:       res.Paths,
		Order:       res.Order,
		Points:      points,
		GeneratedAt: generatedAt,
		Window:      window,
	}
}

// Center is the mean position of the window's samples. A view without points
// falls back to the latest markers.
func Center(v View) (trajectory.LatLon, error) {
	if len(v.Latest) == 0 {
		return trajectory.LatLon{}, ErrEmptyDataset
	}
	points := v.Points
	if len(points) == 0 {
		for _, s := range v.Latest {
			points = append(points, trajectory.LatLon{Lat: s.Latitude, Lon: s.Longitude})
		}
	}
	var sumLat, sumLon float64
	for _, pt := range points {
		sumLat += pt.Lat
		sumLon += pt.Lon
	}
	n := float64(len(points))
	return trajectory.LatLon{Lat: sumLat / n, Lon: sumLon / n}, nil
}

// Renderer produces the self-contained HTML map.
type Renderer struct {
	tmpl *template.Template
	zoom int
}

// New parses the map template. zoom is the initial Leaflet zoom level.
func New(zoom int) (*Renderer, error) {
	if zoom <= 0 {
		zoom = 6
	}
	tmpl, err := template.New("map").Parse(mapTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse map template: %w", err)
	}
	return &Renderer{tmpl: tmpl, zoom: zoom}, nil
}

type marker struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Tier      Tier    `json:"tier"`
	TierColor string  `json:"tier_color"`
	Popup     string  `json:"popup"`
}

type line struct {
	ID     string       `json:"id"`
	Color  string       `json:"color"`
	Points [][2]float64 `json:"points"`
}

type mapData struct {
	Center  [2]float64 `json:"center"`
	Zoom    int        `json:"zoom"`
	Markers []marker   `json:"markers"`
	Lines   []line     `json:"lines"`
}

type page struct {
	GeneratedAt string
	Window      string
	Aircraft    int
	Paths       int
	Data        mapData
}

// Render builds the artifact. It fails with ErrEmptyDataset when the view has
// no markers and with the context error when abandoned.
func (r *Renderer) Render(ctx context.Context, v View) ([]byte, error) {
	center, err := Center(v)
	if err != nil {
		return nil, err
	}

	data := mapData{
		Center: [2]float64{center.Lat, center.Lon},
		Zoom:   r.zoom,
	}
	for _, id := range v.Order {
		s, ok := v.Latest[id]
		if !ok {
			continue
		}
		tier := AltitudeTier(s.Altitude)
		data.Markers = append(data.Markers, marker{
			ID:        id,
			Lat:       s.Latitude,
			Lon:       s.Longitude,
			Tier:      tier,
			TierColor: tier.Color(),
			Popup:     popup(s),
		})

		path, ok := v.Paths[id]
		if !ok {
			continue
		}
		pts := make([][2]float64, len(path))
		for i, pt := range path {
			pts[i] = [2]float64{pt.Lat, pt.Lon}
		}
		data.Lines = append(data.Lines, line{ID: id, Color: trajectory.Color(id), Points: pts})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = r.tmpl.Execute(&buf, page{
		GeneratedAt: v.GeneratedAt.UTC().Format(time.RFC3339),
		Window:      v.Window.String(),
		Aircraft:    len(data.Markers),
		Paths:       len(data.Lines),
		Data:        data,
	})
	if err != nil {
		return nil, fmt.Errorf("execute map template: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func popup(s states.Sample) string {
	lastSeen := "unknown"
	if s.ObservedAt != nil {
		lastSeen = s.ObservedAt.UTC().Format("2006-01-02 15:04:05 MST")
	}
	return fmt.Sprintf(
		"<b>ICAO24:</b> %s<br><b>Callsign:</b> %s<br><b>Country:</b> %s<br>"+
			"<b>Altitude:</b> %.0f<br><b>Velocity:</b> %.1f<br><b>Last Update:</b> %s",
		template.HTMLEscapeString(s.AircraftID),
		template.HTMLEscapeString(s.Callsign),
		template.HTMLEscapeString(s.OriginCountry),
		s.Altitude, s.Velocity, lastSeen,
	)
}
