package config

import "time"

// AnalyticsConfig holds the session lifecycle thresholds and read-side defaults.
type AnalyticsConfig struct {
	SessionTimeout        time.Duration `yaml:"session_timeout"`
	OfflineThreshold      time.Duration `yaml:"offline_threshold"`
	ReaperInactivity      time.Duration `yaml:"reaper_inactivity"`
	PresenceExpiry        time.Duration `yaml:"presence_expiry"`
	ReaperInterval        time.Duration `yaml:"reaper_interval"`
	RealtimeWindowDefault time.Duration `yaml:"realtime_window_default"`
	CacheTTL              time.Duration `yaml:"cache_ttl"`
	CohortModel           string        `yaml:"cohort_model"` // observed, geometric
	CohortPeriodsDefault  int           `yaml:"cohort_periods_default"`
	PathLimitDefault      int           `yaml:"path_limit_default"`
}

func loadAnalyticsConfig() *AnalyticsConfig {
	return &AnalyticsConfig{
		SessionTimeout:        getEnvAsDuration("SESSION_TIMEOUT", 30*time.Minute),
		OfflineThreshold:      getEnvAsDuration("OFFLINE_THRESHOLD", 2*time.Minute),
		ReaperInactivity:      getEnvAsDuration("REAPER_INACTIVITY", 2*time.Minute),
		PresenceExpiry:        getEnvAsDuration("PRESENCE_EXPIRY", 30*time.Minute),
		ReaperInterval:        getEnvAsDuration("REAPER_INTERVAL", 90*time.Second),
		RealtimeWindowDefault: getEnvAsDuration("REALTIME_WINDOW_DEFAULT", 15*time.Minute),
		CacheTTL:              getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		CohortModel:           getEnv("ANALYTICS_COHORT_MODEL", "observed"),
		CohortPeriodsDefault:  getEnvAsInt("ANALYTICS_COHORT_PERIODS", 6),
		PathLimitDefault:      getEnvAsInt("ANALYTICS_PATH_LIMIT", 10),
	}
}
