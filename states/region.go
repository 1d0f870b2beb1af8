package states

// Region is a latitude/longitude bounding box. Both ends of each interval are
// part of the region.
type Region struct {
	MinLat float64 `yaml:"min_lat" json:"min_lat" validate:"gte=-90,lte=90,ltfield=MaxLat"`
	MaxLat float64 `yaml:"max_lat" json:"max_lat" validate:"gte=-90,lte=90"`
	MinLon float64 `yaml:"min_lon" json:"min_lon" validate:"gte=-180,lte=180,ltfield=MaxLon"`
	MaxLon float64 `yaml:"max_lon" json:"max_lon" validate:"gte=-180,lte=180"`
}

// EastCoast returns the Florida to New York corridor used by default.
func EastCoast() Region {
	return Region{MinLat: 27, MaxLat: 41, MinLon: -81, MaxLon: -74}
}

// Contains reports whether the point lies inside the closed box.
func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat &&
		lon >= r.MinLon && lon <= r.MaxLon
}

// InRegion reports whether the sample lies inside the region.
func InRegion(s Sample, r Region) bool {
	return r.Contains(s.Latitude, s.Longitude)
}
