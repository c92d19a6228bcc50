package utils

import "time"

const (
	AppName    = "visitrack"
	AppVersion = "1.0.0"

	DefaultTimeZone = "UTC"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Token lifetime for operator tokens minted by tooling.
	JWTAccessTokenTTL = 24 * time.Hour

	// A page stay outside (0, MaxPageDurationSeconds] is instrumentation noise.
	MaxPageDurationSeconds = 3600
	// Page stay values at or above this are treated as milliseconds.
	MillisecondDetectionThreshold = 1000

	MaxBatchEvents = 1000
)

// Response statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPartial = "partial"
)

// Error messages
const (
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrValidationFailed = "validation failed"
)

// Cache key prefixes
const (
	CacheGeoPrefix     = "geo:"
	CacheReversePrefix = "geo:rev:"
	CacheLockPrefix    = "lock:visitor:"
)

// Event types
const (
	EventPageView   = "page_view"
	EventPageLeave  = "page_leave"
	EventClick      = "click"
	EventFormStart  = "form_start"
	EventFormSubmit = "form_submit"
	EventConversion = "conversion"
	EventPurchase   = "purchase"
	EventSignup     = "signup"

	// VideoEventPrefix groups video_play, video_pause and the rest.
	VideoEventPrefix = "video_"
)

// InteractionEventTypes count toward engagement as deliberate interactions.
var InteractionEventTypes = []string{EventClick, EventFormStart, EventFormSubmit}

// ConversionEventTypes mark a session as converted.
var ConversionEventTypes = []string{EventConversion, EventPurchase, EventSignup, EventFormSubmit}
