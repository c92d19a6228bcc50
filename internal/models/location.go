package models

// Location is the resolved geography of a visitor. Every field is always
// populated; resolvers substitute defaults instead of leaving gaps.
type Location struct {
	Country   string  `json:"country" bson:"country"`
	City      string  `json:"city" bson:"city"`
	Region    string  `json:"region" bson:"region"`
	Timezone  string  `json:"timezone" bson:"timezone"`
	IP        string  `json:"ip" bson:"ip"`
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
	Source    string  `json:"source" bson:"source"`
}

const (
	LocationSourceClient   = "client"
	LocationSourceReverse  = "reverse_geocode"
	LocationSourceLookup   = "ip_lookup"
	LocationSourceAuto     = "auto_detect"
	LocationSourceFallback = "fallback"
	LocationSourceLocale   = "locale"
)

// MergeDefaults fills empty fields of l from def.
func (l Location) MergeDefaults(def Location) Location {
	if l.Country == "" {
		l.Country = def.Country
	}
	if l.City == "" {
		l.City = def.City
	}
	if l.Region == "" {
		l.Region = def.Region
	}
	if l.Timezone == "" {
		l.Timezone = def.Timezone
	}
	if l.IP == "" {
		l.IP = def.IP
	}
	if l.Latitude == 0 && l.Longitude == 0 {
		l.Latitude = def.Latitude
		l.Longitude = def.Longitude
	}
	if l.Source == "" {
		l.Source = def.Source
	}
	return l
}
