package models

import "fmt"

// Place is one geocoding candidate.
type Place struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// RouteInfo is a driving estimate between two points.
type RouteInfo struct {
	DistanceText    string  `json:"distance_text"`
	DurationText    string  `json:"duration_text"`
	DurationSeconds int64   `json:"duration_seconds"`
	DistanceMeters  float64 `json:"distance_meters"`
}
