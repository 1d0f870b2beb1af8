package trajectory

import (
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/flightmap/tracker/states"
)

func ts(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

func at(id string, observed *time.Time, lat, lon float64) states.Sample {
	return states.Sample{AircraftID: id, ObservedAt: observed, Latitude: lat, Longitude: lon}
}

func TestBuildOrdersPathsByTime(t *testing.T) {
	// newest first, the way the history store returns them
	res := Build([]states.Sample{
		at("a", ts(300), 33, -77),
		at("b", ts(250), 40, -75),
		at("a", ts(100), 31, -79),
		at("a", ts(200), 32, -78),
	})

	want := Path{{31, -79}, {32, -78}, {33, -77}}
	if !reflect.DeepEqual(res.Paths["a"], want) {
		t.Fatalf("path a = %v, want %v", res.Paths["a"], want)
	}
	if got := res.Latest["a"].Latitude; got != 33 {
		t.Fatalf("latest a latitude = %v, want 33", got)
	}
	if !reflect.DeepEqual(res.Order, []string{"a", "b"}) {
		t.Fatalf("order = %v, want [a b]", res.Order)
	}
}

func TestBuildNeverEmitsSinglePointPaths(t *testing.T) {
	res := Build([]states.Sample{
		at("solo", ts(100), 30, -80),
		at("pair", ts(100), 30, -80),
		at("pair", ts(200), 31, -80),
		at("untimed", nil, 35, -77),
		at("untimed", nil, 36, -77),
		at("mixed", ts(50), 28, -80),
		at("mixed", nil, 29, -80),
	})

	for id, p := range res.Paths {
		if len(p) < 2 {
			t.Fatalf("path %s has %d points", id, len(p))
		}
	}
	for _, id := range []string{"solo", "untimed", "mixed"} {
		if _, ok := res.Paths[id]; ok {
			t.Errorf("%s should not have a path", id)
		}
		if _, ok := res.Latest[id]; !ok {
			t.Errorf("%s should still have a latest marker", id)
		}
	}
	if len(res.Paths["pair"]) != 2 {
		t.Fatalf("pair path = %v, want 2 points", res.Paths["pair"])
	}
}

func TestBuildLatestTieBreaks(t *testing.T) {
	res := Build([]states.Sample{
		at("tie", ts(100), 30, -80),
		at("tie", ts(100), 31, -80),
		at("untimed", nil, 35, -77),
		at("untimed", nil, 36, -77),
		at("late-ts", nil, 20, -80),
		at("late-ts", ts(10), 21, -80),
	})

	if got := res.Latest["tie"].Latitude; got != 30 {
		t.Errorf("tie latest latitude = %v, want first in input order (30)", got)
	}
	if got := res.Latest["untimed"].Latitude; got != 35 {
		t.Errorf("untimed latest latitude = %v, want first in input order (35)", got)
	}
	if got := res.Latest["late-ts"].Latitude; got != 21 {
		t.Errorf("late-ts latest latitude = %v, want the timestamped sample (21)", got)
	}
}

func TestBuildStableForEqualTimestamps(t *testing.T) {
	res := Build([]states.Sample{
		at("a", ts(100), 1, 0),
		at("a", ts(100), 2, 0),
		at("a", ts(50), 0, 0),
	})
	want := Path{{0, 0}, {1, 0}, {2, 0}}
	if !reflect.DeepEqual(res.Paths["a"], want) {
		t.Fatalf("path = %v, want %v", res.Paths["a"], want)
	}
}

func TestBuildEmpty(t *testing.T) {
	res := Build(nil)
	if len(res.Paths) != 0 || len(res.Latest) != 0 || len(res.Order) != 0 {
		t.Fatalf("Build(nil) = %+v, want empty", res)
	}
}

func TestColorIsDeterministic(t *testing.T) {
	hex := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	for _, id := range []string{"a1b2c3", "UNKNOWN", "", "4ca7b5"} {
		first, second := Color(id), Color(id)
		if first != second {
			t.Fatalf("Color(%q) changed between calls: %s vs %s", id, first, second)
		}
		if !hex.MatchString(first) {
			t.Fatalf("Color(%q) = %q, not #rrggbb", id, first)
		}
	}
	if Color("a1b2c3") == Color("a1b2c4") {
		t.Fatal("neighbouring identifiers should not share a colour")
	}
}

func TestColorIsStableAcrossProcesses(t *testing.T) {
	// fixed values: the colour must not depend on process state such as map seeds
	cases := map[string]string{
		"a1b2c3":  "#13f144",
		"UNKNOWN": "#e3165d",
	}
	for id, want := range cases {
		if got := Color(id); got != want {
			t.Errorf("Color(%q) = %s, want %s", id, got, want)
		}
	}
}
