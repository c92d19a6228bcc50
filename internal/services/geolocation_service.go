package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"visitrack/internal/config"
	"visitrack/internal/models"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
	"visitrack/pkg/maps"
	"visitrack/pkg/metrics"
)

type GeolocationService interface {
	// Resolve always returns a populated location for ip.
	Resolve(ctx context.Context, ip string) models.Location
	// ParseLocation picks the best location from a client-supplied value, the
	// request IP and locale hints.
	ParseLocation(ctx context.Context, supplied *models.Location, ip string, hints models.LocaleHints) models.Location
}

type geolocationService struct {
	providers []ipProvider
	http      *geoHTTPClient
	cache     CacheService
	cacheTTL  time.Duration
	reverse   maps.ReverseGeocoder
	disabled  bool
	logger    *logger.Logger
}

type GeolocationOption func(*geolocationService)

// WithProviderBaseURLs overrides provider endpoints, keyed by provider name.
func WithProviderBaseURLs(urls map[string]string) GeolocationOption {
	return func(s *geolocationService) {
		s.providers = selectProviders(builtinProviders(urls), providerNames(s.providers))
	}
}

func NewGeolocationService(cfg *config.GeoConfig, cache CacheService, reverse maps.ReverseGeocoder, logger *logger.Logger, opts ...GeolocationOption) GeolocationService {
	s := &geolocationService{
		providers: selectProviders(builtinProviders(nil), cfg.Providers),
		http:      newGeoHTTPClient(cfg.LookupTimeout, cfg.UserAgent),
		cache:     cache,
		cacheTTL:  cfg.CacheTTL,
		reverse:   reverse,
		disabled:  cfg.Disabled,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func selectProviders(all map[string]ipProvider, names []string) []ipProvider {
	selected := make([]ipProvider, 0, len(names))
	for _, name := range names {
		if p, ok := all[strings.TrimSpace(name)]; ok {
			selected = append(selected, p)
		}
	}
	return selected
}

func providerNames(providers []ipProvider) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.name
	}
	return names
}

func (s *geolocationService) Resolve(ctx context.Context, ip string) models.Location {
	ip = strings.TrimSpace(ip)

	// Loopback never benefits from a lookup.
	if s.disabled || utils.IsLoopbackIP(ip) {
		return Fallback(ip)
	}

	if utils.IsPublicIP(ip) {
		if loc, ok := s.cached(ctx, ip); ok {
			return loc
		}
		if loc, ok := s.tryProviders(ctx, ip); ok {
			loc.Source = models.LocationSourceLookup
			s.store(ctx, ip, loc)
			return loc
		}
	}

	if loc, ok := s.tryProviders(ctx, ""); ok {
		loc.Source = models.LocationSourceAuto
		if ip != "" {
			loc.IP = ip
		}
		return loc
	}

	return Fallback(ip)
}

func (s *geolocationService) tryProviders(ctx context.Context, ip string) (models.Location, bool) {
	for _, p := range s.providers {
		if ctx.Err() != nil {
			break
		}

		loc, err := s.http.lookup(ctx, p, ip)
		if err != nil {
			metrics.GeoLookups.WithLabelValues(p.name, "miss").Inc()
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"provider": p.name,
				"ip":       ip,
			}).Debug("Geolocation provider lookup failed")
			continue
		}

		metrics.GeoLookups.WithLabelValues(p.name, "hit").Inc()
		return *loc, true
	}
	return models.Location{}, false
}

func (s *geolocationService) cached(ctx context.Context, ip string) (models.Location, bool) {
	if s.cache == nil {
		return models.Location{}, false
	}
	var loc models.Location
	if err := s.cache.Get(ctx, utils.CacheGeoPrefix+ip, &loc); err != nil {
		return models.Location{}, false
	}
	metrics.GeoLookups.WithLabelValues("cache", "hit").Inc()
	return loc, true
}

func (s *geolocationService) store(ctx context.Context, ip string, loc models.Location) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, utils.CacheGeoPrefix+ip, loc, s.cacheTTL); err != nil {
		s.logger.WithError(err).WithField("ip", ip).Warn("Failed to cache geolocation")
	}
}

func (s *geolocationService) ParseLocation(ctx context.Context, supplied *models.Location, ip string, hints models.LocaleHints) models.Location {
	if supplied != nil {
		hasPlace := !isPlaceholder(supplied.Country) || !isPlaceholder(supplied.City)
		hasCoords := utils.HasCoordinates(supplied.Latitude, supplied.Longitude) &&
			utils.IsValidCoordinates(supplied.Latitude, supplied.Longitude)

		if hasPlace {
			loc := *supplied
			loc.Source = models.LocationSourceClient
			return s.withDefaults(loc, ip, hints)
		}
		if hasCoords {
			if loc, ok := s.reverseGeocode(ctx, supplied.Latitude, supplied.Longitude); ok {
				return s.withDefaults(loc, ip, hints)
			}
		}
	}

	resolved := s.Resolve(ctx, ip)
	if resolved.Source != models.LocationSourceFallback {
		return resolved
	}

	if loc, ok := LocaleLocation(hints); ok {
		loc.IP = ip
		return loc
	}
	return resolved
}

func (s *geolocationService) reverseGeocode(ctx context.Context, lat, lng float64) (models.Location, bool) {
	if s.reverse == nil {
		return models.Location{}, false
	}

	key := fmt.Sprintf("%s%.4f,%.4f", utils.CacheReversePrefix, lat, lng)
	if s.cache != nil {
		var loc models.Location
		if err := s.cache.Get(ctx, key, &loc); err == nil {
			return loc, true
		}
	}

	addr, err := s.reverse.ReverseGeocode(ctx, lat, lng)
	if err != nil || addr == nil || isPlaceholder(addr.Country) {
		if err != nil {
			s.logger.WithError(err).Debug("Reverse geocoding failed")
		}
		return models.Location{}, false
	}

	loc := models.Location{
		Country:   addr.Country,
		City:      addr.City,
		Region:    addr.Region,
		Latitude:  lat,
		Longitude: lng,
		Source:    models.LocationSourceReverse,
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, loc, s.cacheTTL)
	}
	return loc, true
}

// withDefaults fills the gaps of a trusted location without inventing a place.
func (s *geolocationService) withDefaults(loc models.Location, ip string, hints models.LocaleHints) models.Location {
	def := models.Location{
		City:     "Unknown",
		Region:   "Unknown",
		Timezone: utils.CoalesceString(hints.Timezone, utils.DefaultTimeZone),
		IP:       ip,
	}
	if isPlaceholder(loc.Country) {
		loc.Country = ""
		if locale, ok := LocaleLocation(hints); ok {
			def.Country = locale.Country
		} else {
			def.Country = "Unknown"
		}
	}
	if isPlaceholder(loc.City) {
		loc.City = ""
	}
	return loc.MergeDefaults(def)
}

var (
	urbanFallback = models.Location{
		Country:   "United States",
		City:      "New York",
		Region:    "New York",
		Timezone:  "America/New_York",
		Latitude:  40.7128,
		Longitude: -74.0060,
	}
	defaultFallback = models.Location{
		Country:   "United States",
		City:      "Ashburn",
		Region:    "Virginia",
		Timezone:  "America/New_York",
		Latitude:  39.0438,
		Longitude: -77.4874,
	}
)

// Fallback derives a location from the literal IP alone.
func Fallback(ip string) models.Location {
	ip = strings.TrimSpace(ip)

	var loc models.Location
	switch {
	case ip == "":
		loc = urbanFallback
	case utils.IsLoopbackIP(ip):
		loc = models.Location{
			Country:  "Localhost",
			City:     "Localhost",
			Region:   "Local",
			Timezone: utils.DefaultTimeZone,
		}
	case utils.IsPrivateIP(ip):
		loc = models.Location{
			Country:  "Local Network",
			City:     "Local Network",
			Region:   "Private",
			Timezone: utils.DefaultTimeZone,
		}
	default:
		loc = defaultFallback
	}

	loc.IP = ip
	loc.Source = models.LocationSourceFallback
	return loc
}

type localeEntry struct {
	country  string
	city     string
	region   string
	timezone string
}

var (
	localeByTimezone = map[string]localeEntry{
		"America/New_York":    {"United States", "New York", "New York", "America/New_York"},
		"America/Chicago":     {"United States", "Chicago", "Illinois", "America/Chicago"},
		"America/Denver":      {"United States", "Denver", "Colorado", "America/Denver"},
		"America/Los_Angeles": {"United States", "Los Angeles", "California", "America/Los_Angeles"},
		"America/Toronto":     {"Canada", "Toronto", "Ontario", "America/Toronto"},
		"America/Sao_Paulo":   {"Brazil", "São Paulo", "São Paulo", "America/Sao_Paulo"},
		"America/Mexico_City": {"Mexico", "Mexico City", "CDMX", "America/Mexico_City"},
		"Europe/London":       {"United Kingdom", "London", "England", "Europe/London"},
		"Europe/Paris":        {"France", "Paris", "Île-de-France", "Europe/Paris"},
		"Europe/Berlin":       {"Germany", "Berlin", "Berlin", "Europe/Berlin"},
		"Europe/Madrid":       {"Spain", "Madrid", "Madrid", "Europe/Madrid"},
		"Europe/Rome":         {"Italy", "Rome", "Lazio", "Europe/Rome"},
		"Europe/Amsterdam":    {"Netherlands", "Amsterdam", "North Holland", "Europe/Amsterdam"},
		"Asia/Tokyo":          {"Japan", "Tokyo", "Tokyo", "Asia/Tokyo"},
		"Asia/Kolkata":        {"India", "Mumbai", "Maharashtra", "Asia/Kolkata"},
		"Asia/Shanghai":       {"China", "Shanghai", "Shanghai", "Asia/Shanghai"},
		"Asia/Singapore":      {"Singapore", "Singapore", "Singapore", "Asia/Singapore"},
		"Australia/Sydney":    {"Australia", "Sydney", "New South Wales", "Australia/Sydney"},
	}
	localeByRegionCode = map[string]string{
		"US": "America/New_York",
		"CA": "America/Toronto",
		"BR": "America/Sao_Paulo",
		"MX": "America/Mexico_City",
		"GB": "Europe/London",
		"FR": "Europe/Paris",
		"DE": "Europe/Berlin",
		"ES": "Europe/Madrid",
		"IT": "Europe/Rome",
		"NL": "Europe/Amsterdam",
		"JP": "Asia/Tokyo",
		"IN": "Asia/Kolkata",
		"CN": "Asia/Shanghai",
		"SG": "Asia/Singapore",
		"AU": "Australia/Sydney",
	}
	localeByLanguage = map[string]string{
		"en": "America/New_York",
		"fr": "Europe/Paris",
		"de": "Europe/Berlin",
		"es": "Europe/Madrid",
		"it": "Europe/Rome",
		"nl": "Europe/Amsterdam",
		"ja": "Asia/Tokyo",
		"hi": "Asia/Kolkata",
		"zh": "Asia/Shanghai",
		"pt": "America/Sao_Paulo",
	}
)

// LocaleLocation guesses a location from the browser timezone and
// Accept-Language header. Timezone wins over language.
func LocaleLocation(hints models.LocaleHints) (models.Location, bool) {
	if entry, ok := localeByTimezone[hints.Timezone]; ok {
		return entry.toLocation(), true
	}
	if strings.HasPrefix(hints.Timezone, "America/") {
		return localeByTimezone["America/New_York"].toLocation(), true
	}

	lang := primaryLanguageTag(hints.AcceptLanguage)
	if lang == "" {
		return models.Location{}, false
	}

	parts := strings.FieldsFunc(lang, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) > 1 {
		if tz, ok := localeByRegionCode[strings.ToUpper(parts[1])]; ok {
			return localeByTimezone[tz].toLocation(), true
		}
	}
	if tz, ok := localeByLanguage[strings.ToLower(parts[0])]; ok {
		return localeByTimezone[tz].toLocation(), true
	}
	return models.Location{}, false
}

// primaryLanguageTag returns the first tag of an Accept-Language header.
func primaryLanguageTag(header string) string {
	first := strings.Split(header, ",")[0]
	first = strings.TrimSpace(strings.Split(first, ";")[0])
	if first == "*" {
		return ""
	}
	return first
}

func (e localeEntry) toLocation() models.Location {
	return models.Location{
		Country:  e.country,
		City:     e.city,
		Region:   e.region,
		Timezone: e.timezone,
		Source:   models.LocationSourceLocale,
	}
}
