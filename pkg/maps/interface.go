package maps

import "context"

// ReverseGeocoder turns a coordinate pair into a postal address.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*Address, error)
}

type Address struct {
	FormattedAddress string  `json:"formatted_address"`
	Country          string  `json:"country"`
	CountryCode      string  `json:"country_code"`
	Region           string  `json:"region"`
	City             string  `json:"city"`
	PlaceID          string  `json:"place_id"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
}
