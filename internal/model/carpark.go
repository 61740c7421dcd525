package model

import "time"

// Carpark is one parking facility from the national carpark information
// dataset, with its SVY21 grid position already converted to WGS84 degrees.
// Facilities with unparseable source coordinates carry (0, 0).
type Carpark struct {
	ID               string    `json:"id"` // carpark number, e.g. "ACB"
	Address          string    `json:"address"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	CarparkType      string    `json:"carpark_type"`
	ParkingSystem    string    `json:"parking_system"`
	ShortTermParking string    `json:"short_term_parking"`
	FreeParking      string    `json:"free_parking"`
	NightParking     string    `json:"night_parking"`
	Decks            int       `json:"decks"`
	GantryHeight     float64   `json:"gantry_height"`
	Basement         bool      `json:"basement"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasLocation reports whether the carpark carries a usable position.
func (c *Carpark) HasLocation() bool {
	return c.Latitude != 0 || c.Longitude != 0
}

// LotAvailability is one lot-type availability reading for a carpark from
// the live availability feed.
type LotAvailability struct {
	CarparkID     string    `json:"carpark_id"`
	LotType       string    `json:"lot_type"` // "C" car, "Y" motorcycle, "H" heavy vehicle
	LotsTotal     int       `json:"lots_total"`
	LotsAvailable int       `json:"lots_available"`
	AsOf          time.Time `json:"as_of"`
}
