package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"
)

var ErrNoResults = errors.New("no geocoding results")

type GoogleMapsProvider struct {
	client *maps.Client
}

func NewGoogleMapsProvider(apiKey string) (*GoogleMapsProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return &GoogleMapsProvider{
		client: client,
	}, nil
}

func (g *GoogleMapsProvider) ReverseGeocode(ctx context.Context, lat, lng float64) (*Address, error) {
	req := &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
		ResultType: []string{
			"locality",
			"administrative_area_level_1",
			"country",
		},
	}

	resp, err := g.client.ReverseGeocode(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocoding failed: %w", err)
	}
	if len(resp) == 0 {
		return nil, ErrNoResults
	}

	addr := &Address{
		FormattedAddress: resp[0].FormattedAddress,
		PlaceID:          resp[0].PlaceID,
		Latitude:         lat,
		Longitude:        lng,
	}
	// Later results are coarser; fill any component the first one lacked.
	for _, result := range resp {
		applyComponents(addr, result.AddressComponents)
	}

	return addr, nil
}

func applyComponents(addr *Address, components []maps.AddressComponent) {
	for _, c := range components {
		for _, t := range c.Types {
			switch t {
			case "country":
				if addr.Country == "" {
					addr.Country = c.LongName
					addr.CountryCode = c.ShortName
				}
			case "administrative_area_level_1":
				if addr.Region == "" {
					addr.Region = c.LongName
				}
			case "locality", "postal_town":
				if addr.City == "" {
					addr.City = c.LongName
				}
			}
		}
	}
}
