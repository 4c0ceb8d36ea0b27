// README: Common identifier and coordinate value objects used across modules.
package types

// ID identifies a rider, driver, or ride record.
type ID string

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
