package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/utils"
)

var errInvalidLookup = errors.New("lookup returned no usable location")

// ipProvider is one IP geolocation API. url builds the request for an IP, or
// for the caller's own address when ip is empty (auto-detect mode).
type ipProvider struct {
	name  string
	url   func(ip string) string
	parse func(body []byte) (*models.Location, error)
}

// geoHTTPClient performs time-boxed provider calls.
type geoHTTPClient struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

func newGeoHTTPClient(timeout time.Duration, userAgent string) *geoHTTPClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &geoHTTPClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		timeout:   timeout,
	}
}

func (c *geoHTTPClient) lookup(ctx context.Context, p ipProvider, ip string) (*models.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(ip), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, utils.NewUpstreamError(p.name+" request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewUpstreamError(fmt.Sprintf("%s returned status %d", p.name, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}

	loc, err := p.parse(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	if !isUsableLocation(loc) {
		return nil, errInvalidLookup
	}
	if loc.IP == "" {
		loc.IP = ip
	}
	return loc, nil
}

var placeholderCountries = map[string]bool{
	"":          true,
	"unknown":   true,
	"reserved":  true,
	"-":         true,
	"xx":        true,
	"undefined": true,
	"n/a":       true,
	"none":      true,
}

func isPlaceholder(value string) bool {
	return placeholderCountries[strings.ToLower(strings.TrimSpace(value))]
}

// isUsableLocation is the validity predicate applied to every provider result.
func isUsableLocation(loc *models.Location) bool {
	return loc != nil && !isPlaceholder(loc.Country)
}

// builtinProviders returns the known providers keyed by name. baseURLs lets
// tests point a provider at a local server.
func builtinProviders(baseURLs map[string]string) map[string]ipProvider {
	base := func(name, def string) string {
		if u, ok := baseURLs[name]; ok {
			return strings.TrimRight(u, "/")
		}
		return def
	}

	ipapiBase := base("ipapi", "https://ipapi.co")
	ipAPIBase := base("ip-api", "http://ip-api.com")
	ipwhoisBase := base("ipwhois", "https://ipwho.is")

	return map[string]ipProvider{
		"ipapi": {
			name: "ipapi",
			url: func(ip string) string {
				if ip == "" {
					return ipapiBase + "/json/"
				}
				return ipapiBase + "/" + ip + "/json/"
			},
			parse: parseIPAPI,
		},
		"ip-api": {
			name: "ip-api",
			url: func(ip string) string {
				return ipAPIBase + "/json/" + ip
			},
			parse: parseIPAPICom,
		},
		"ipwhois": {
			name: "ipwhois",
			url: func(ip string) string {
				return ipwhoisBase + "/" + ip
			},
			parse: parseIPWhois,
		},
	}
}

func parseIPAPI(body []byte) (*models.Location, error) {
	var r struct {
		Error       bool    `json:"error"`
		Reason      string  `json:"reason"`
		IP          string  `json:"ip"`
		CountryName string  `json:"country_name"`
		City        string  `json:"city"`
		Region      string  `json:"region"`
		Timezone    string  `json:"timezone"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if r.Error {
		return nil, errors.New(r.Reason)
	}
	return &models.Location{
		Country:   r.CountryName,
		City:      r.City,
		Region:    r.Region,
		Timezone:  r.Timezone,
		IP:        r.IP,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}, nil
}

func parseIPAPICom(body []byte) (*models.Location, error) {
	var r struct {
		Status     string  `json:"status"`
		Message    string  `json:"message"`
		Query      string  `json:"query"`
		Country    string  `json:"country"`
		City       string  `json:"city"`
		RegionName string  `json:"regionName"`
		Timezone   string  `json:"timezone"`
		Lat        float64 `json:"lat"`
		Lon        float64 `json:"lon"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if r.Status != "success" {
		return nil, errors.New(r.Message)
	}
	return &models.Location{
		Country:   r.Country,
		City:      r.City,
		Region:    r.RegionName,
		Timezone:  r.Timezone,
		IP:        r.Query,
		Latitude:  r.Lat,
		Longitude: r.Lon,
	}, nil
}

func parseIPWhois(body []byte) (*models.Location, error) {
	var r struct {
		Success   bool    `json:"success"`
		Message   string  `json:"message"`
		IP        string  `json:"ip"`
		Country   string  `json:"country"`
		City      string  `json:"city"`
		Region    string  `json:"region"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  struct {
			ID string `json:"id"`
		} `json:"timezone"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if !r.Success {
		return nil, errors.New(r.Message)
	}
	return &models.Location{
		Country:   r.Country,
		City:      r.City,
		Region:    r.Region,
		Timezone:  r.Timezone.ID,
		IP:        r.IP,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}, nil
}
