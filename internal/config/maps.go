package config

import "time"

// MapsConfig drives reverse geocoding of client-supplied coordinates.
type MapsConfig struct {
	Provider   string            `yaml:"provider"`
	GoogleMaps *GoogleMapsConfig `yaml:"google_maps"`
	Timeout    time.Duration     `yaml:"timeout"`
}

type GoogleMapsConfig struct {
	APIKey string `yaml:"api_key"`
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		Provider: getEnv("MAPS_PROVIDER", "none"),
		GoogleMaps: &GoogleMapsConfig{
			APIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		},
		Timeout: getEnvAsDuration("MAPS_TIMEOUT", 3*time.Second),
	}
}

func (m *MapsConfig) Enabled() bool {
	return m.Provider == "google" && m.GoogleMaps != nil && m.GoogleMaps.APIKey != ""
}
