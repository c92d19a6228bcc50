package config

import "time"

type IngestionConfig struct {
	FlushSize         int           `yaml:"flush_size"`
	FlushTimeout      time.Duration `yaml:"flush_timeout"`
	BatchMax          int           `yaml:"batch_max"`
	QueueBackend      string        `yaml:"queue_backend"` // memory, redis
	QueueKey          string        `yaml:"queue_key"`
	BackgroundTimeout time.Duration `yaml:"background_timeout"`
	EventIDPrefix     string        `yaml:"event_id_prefix"`
}

type GeoConfig struct {
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	UserAgent     string        `yaml:"user_agent"`
	Providers     []string      `yaml:"providers"`
	Disabled      bool          `yaml:"disabled"`
}

func loadIngestionConfig() *IngestionConfig {
	return &IngestionConfig{
		FlushSize:         getEnvAsInt("INGEST_FLUSH_SIZE", 50),
		FlushTimeout:      getEnvAsDuration("INGEST_FLUSH_TIMEOUT", 5*time.Second),
		BatchMax:          getEnvAsInt("INGEST_BATCH_MAX", 1000),
		QueueBackend:      getEnv("INGEST_QUEUE_BACKEND", "memory"),
		QueueKey:          getEnv("INGEST_QUEUE_KEY", "ingest:queue"),
		BackgroundTimeout: getEnvAsDuration("INGEST_BACKGROUND_TIMEOUT", 30*time.Second),
		EventIDPrefix:     getEnv("INGEST_EVENT_ID_PREFIX", "evt"),
	}
}

func loadGeoConfig() *GeoConfig {
	return &GeoConfig{
		LookupTimeout: getEnvAsDuration("GEO_LOOKUP_TIMEOUT", 3*time.Second),
		CacheTTL:      getEnvAsDuration("GEO_CACHE_TTL", 24*time.Hour),
		UserAgent:     getEnv("GEO_USER_AGENT", "Mozilla/5.0 (compatible; visitrack/1.0)"),
		Providers:     getEnvAsSlice("GEO_PROVIDERS", []string{"ipapi", "ip-api", "ipwhois"}),
		Disabled:      getEnvAsBool("GEO_DISABLED", false),
	}
}
