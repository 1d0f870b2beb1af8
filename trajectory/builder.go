package trajectory

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/flightmap/tracker/states"
)

// LatLon is one path vertex.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Path is the time-ordered track of one aircraft. It always has at least two
// points.
type Path []LatLon

// Result holds the per-aircraft view of one batch of samples.
type Result struct {
	Paths  map[string]Path
	Latest map[string]states.Sample
	// Order lists every aircraft with a Latest entry, sorted by identifier.
	Order []string
}

// Build groups samples by aircraft. Paths use only timestamped samples in
// ascending time order, ties keeping input order. Latest is the sample with
// the greatest observation time, ties going to the earliest in input order;
// an aircraft with no timestamped sample gets its first input sample.
func Build(samples []states.Sample) Result {
	res := Result{
		Paths:  make(map[string]Path),
		Latest: make(map[string]states.Sample),
	}

	groups := make(map[string][]states.Sample)
	for _, s := range samples {
		if _, seen := groups[s.AircraftID]; !seen {
			res.Order = append(res.Order, s.AircraftID)
		}
		groups[s.AircraftID] = append(groups[s.AircraftID], s)
	}
	sort.Strings(res.Order)

	for id, group := range groups {
		res.Latest[id] = latest(group)
		if path := buildPath(group); len(path) >= 2 {
			res.Paths[id] = path
		}
	}
	return res
}

func latest(group []states.Sample) states.Sample {
	best := group[0]
	for _, s := range group[1:] {
		if s.ObservedAt == nil {
			continue
		}
		if best.ObservedAt == nil || s.ObservedAt.After(*best.ObservedAt) {
			best = s
		}
	}
	return best
}

func buildPath(group []states.Sample) Path {
	timed := make([]states.Sample, 0, len(group))
	for _, s := range group {
		if s.ObservedAt != nil {
			timed = append(timed, s)
		}
	}
	if len(timed) < 2 {
		return nil
	}
	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].ObservedAt.Before(*timed[j].ObservedAt)
	})

	path := make(Path, len(timed))
	for i, s := range timed {
		path[i] = LatLon{Lat: s.Latitude, Lon: s.Longitude}
	}
	return path
}

// Color maps an aircraft identifier to a stable "#rrggbb" colour.
func Color(aircraftID string) string {
	return fmt.Sprintf("#%06x", xxhash.Sum64String(aircraftID)&0xFFFFFF)
}
