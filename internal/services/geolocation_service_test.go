package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitrack/internal/config"
	"visitrack/internal/models"
	"visitrack/pkg/logger"
	"visitrack/pkg/maps"
)

// geoServer serves canned provider responses and records request paths.
type geoServer struct {
	*httptest.Server
	mu        sync.Mutex
	paths     []string
	responses map[string]string
}

func newGeoServer(t *testing.T, responses map[string]string) *geoServer {
	g := &geoServer{responses: responses}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.paths = append(g.paths, r.URL.Path)
		g.mu.Unlock()

		body, ok := g.responses[r.URL.Path]
		if !ok {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(g.Close)
	return g
}

func (g *geoServer) requests() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.paths...)
}

func newTestGeolocation(srv *geoServer, cache CacheService, reverse maps.ReverseGeocoder, disabled bool) GeolocationService {
	cfg := &config.GeoConfig{
		LookupTimeout: time.Second,
		CacheTTL:      time.Hour,
		UserAgent:     "visitrack-test",
		Providers:     []string{"ipapi", "ip-api", "ipwhois"},
		Disabled:      disabled,
	}
	return NewGeolocationService(cfg, cache, reverse, logger.NewNop(), WithProviderBaseURLs(map[string]string{
		"ipapi":   srv.URL + "/ipapi",
		"ip-api":  srv.URL + "/ip-api",
		"ipwhois": srv.URL + "/ipwhois",
	}))
}

const ipapiGoogle = `{"ip":"8.8.8.8","country_name":"United States","city":"Mountain View","region":"California","timezone":"America/Los_Angeles","latitude":37.4,"longitude":-122.1}`

func TestResolveLoopbackSkipsProviders(t *testing.T) {
	srv := newGeoServer(t, map[string]string{"/ipapi/json/": ipapiGoogle})
	geo := newTestGeolocation(srv, nil, nil, false)

	for _, ip := range []string{"127.0.0.1", "::1", "localhost", "::ffff:127.0.0.1"} {
		t.Run(ip, func(t *testing.T) {
			loc := geo.Resolve(context.Background(), ip)
			assert.Equal(t, "Localhost", loc.Country)
			assert.Equal(t, models.LocationSourceFallback, loc.Source)
		})
	}
	assert.Empty(t, srv.requests())
}

func TestResolvePublicIPUsesProviderAndCache(t *testing.T) {
	srv := newGeoServer(t, map[string]string{"/ipapi/8.8.8.8/json/": ipapiGoogle})
	geo := newTestGeolocation(srv, NewMemoryCacheService(time.Hour), nil, false)

	loc := geo.Resolve(context.Background(), "8.8.8.8")
	assert.Equal(t, "United States", loc.Country)
	assert.Equal(t, "Mountain View", loc.City)
	assert.Equal(t, models.LocationSourceLookup, loc.Source)

	again := geo.Resolve(context.Background(), "8.8.8.8")
	assert.Equal(t, loc, again)
	assert.Equal(t, []string{"/ipapi/8.8.8.8/json/"}, srv.requests())
}

func TestResolveFailsOverBetweenProviders(t *testing.T) {
	srv := newGeoServer(t, map[string]string{
		"/ipapi/1.1.1.1/json/": `{"ip":"1.1.1.1","country_name":"Unknown"}`,
		"/ip-api/json/1.1.1.1": `{"status":"fail","message":"quota"}`,
		"/ipwhois/1.1.1.1":     `{"success":true,"ip":"1.1.1.1","country":"Australia","city":"Sydney","timezone":{"id":"Australia/Sydney"}}`,
	})
	geo := newTestGeolocation(srv, nil, nil, false)

	loc := geo.Resolve(context.Background(), "1.1.1.1")

	assert.Equal(t, "Australia", loc.Country)
	assert.Equal(t, "Australia/Sydney", loc.Timezone)
	assert.Equal(t, models.LocationSourceLookup, loc.Source)
	assert.Len(t, srv.requests(), 3)
}

func TestResolvePrivateIP(t *testing.T) {
	t.Run("Auto-detect succeeds", func(t *testing.T) {
		srv := newGeoServer(t, map[string]string{"/ipapi/json/": ipapiGoogle})
		geo := newTestGeolocation(srv, nil, nil, false)

		loc := geo.Resolve(context.Background(), "10.0.0.5")
		assert.Equal(t, "Mountain View", loc.City)
		assert.Equal(t, models.LocationSourceAuto, loc.Source)
		assert.Equal(t, "10.0.0.5", loc.IP)
	})

	t.Run("Everything fails", func(t *testing.T) {
		srv := newGeoServer(t, map[string]string{})
		geo := newTestGeolocation(srv, nil, nil, false)

		loc := geo.Resolve(context.Background(), "192.168.1.20")
		assert.Equal(t, "Local Network", loc.Country)
		assert.Equal(t, models.LocationSourceFallback, loc.Source)
	})
}

func TestResolveDisabled(t *testing.T) {
	srv := newGeoServer(t, map[string]string{"/ipapi/8.8.8.8/json/": ipapiGoogle})
	geo := newTestGeolocation(srv, nil, nil, true)

	loc := geo.Resolve(context.Background(), "8.8.8.8")

	assert.Equal(t, "Ashburn", loc.City)
	assert.Empty(t, srv.requests())
}

func TestFallback(t *testing.T) {
	tests := []struct {
		ip      string
		country string
		city    string
	}{
		{"", "United States", "New York"},
		{"127.0.0.1", "Localhost", "Localhost"},
		{"172.16.4.1", "Local Network", "Local Network"},
		{"93.184.216.34", "United States", "Ashburn"},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			loc := Fallback(tt.ip)
			assert.Equal(t, tt.country, loc.Country)
			assert.Equal(t, tt.city, loc.City)
			assert.Equal(t, tt.ip, loc.IP)
			assert.Equal(t, models.LocationSourceFallback, loc.Source)
		})
	}
}

type fakeReverse struct {
	addr *maps.Address
	err  error
}

func (f *fakeReverse) ReverseGeocode(ctx context.Context, lat, lng float64) (*maps.Address, error) {
	return f.addr, f.err
}

func TestParseLocation(t *testing.T) {
	srv := newGeoServer(t, map[string]string{})
	reverse := &fakeReverse{addr: &maps.Address{Country: "Italy", City: "Rome", Region: "Lazio"}}
	geo := newTestGeolocation(srv, nil, reverse, false)

	tests := []struct {
		name     string
		supplied *models.Location
		ip       string
		hints    models.LocaleHints
		country  string
		city     string
		source   string
	}{
		{
			name:     "Client place is trusted",
			supplied: &models.Location{Country: "Japan"},
			ip:       "8.8.8.8",
			country:  "Japan",
			city:     "Unknown",
			source:   models.LocationSourceClient,
		},
		{
			name:     "Coordinates are reverse geocoded",
			supplied: &models.Location{Latitude: 41.9, Longitude: 12.5},
			ip:       "127.0.0.1",
			country:  "Italy",
			city:     "Rome",
			source:   models.LocationSourceReverse,
		},
		{
			name:     "Placeholder country falls through to locale",
			supplied: &models.Location{Country: "Unknown"},
			ip:       "127.0.0.1",
			hints:    models.LocaleHints{Timezone: "Europe/Paris"},
			country:  "France",
			city:     "Paris",
			source:   models.LocationSourceLocale,
		},
		{
			name:    "Accept-Language when no timezone",
			ip:      "127.0.0.1",
			hints:   models.LocaleHints{AcceptLanguage: "de-DE,de;q=0.9,en;q=0.8"},
			country: "Germany",
			city:    "Berlin",
			source:  models.LocationSourceLocale,
		},
		{
			name:    "No hints keeps the fallback",
			ip:      "127.0.0.1",
			country: "Localhost",
			city:    "Localhost",
			source:  models.LocationSourceFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := geo.ParseLocation(context.Background(), tt.supplied, tt.ip, tt.hints)
			assert.Equal(t, tt.country, loc.Country)
			assert.Equal(t, tt.city, loc.City)
			assert.Equal(t, tt.source, loc.Source)
		})
	}
}

func TestParseLocationReverseFailure(t *testing.T) {
	srv := newGeoServer(t, map[string]string{})
	geo := newTestGeolocation(srv, nil, &fakeReverse{err: errors.New("quota exceeded")}, false)

	loc := geo.ParseLocation(context.Background(), &models.Location{Latitude: 41.9, Longitude: 12.5}, "127.0.0.1",
		models.LocaleHints{Timezone: "America/Phoenix"})

	assert.Equal(t, "United States", loc.Country)
	assert.Equal(t, models.LocationSourceLocale, loc.Source)
}

func TestLocaleLocation(t *testing.T) {
	tests := []struct {
		name    string
		hints   models.LocaleHints
		country string
		ok      bool
	}{
		{"Known timezone", models.LocaleHints{Timezone: "Asia/Tokyo"}, "Japan", true},
		{"Other American timezone", models.LocaleHints{Timezone: "America/Phoenix"}, "United States", true},
		{"Timezone beats language", models.LocaleHints{Timezone: "Europe/Madrid", AcceptLanguage: "fr-FR"}, "Spain", true},
		{"Region code", models.LocaleHints{AcceptLanguage: "en-GB,en;q=0.8"}, "United Kingdom", true},
		{"Bare language", models.LocaleHints{AcceptLanguage: "pt"}, "Brazil", true},
		{"Wildcard", models.LocaleHints{AcceptLanguage: "*"}, "", false},
		{"Unknown language", models.LocaleHints{AcceptLanguage: "xx-YY"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, ok := LocaleLocation(tt.hints)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.country, loc.Country)
		})
	}
}
