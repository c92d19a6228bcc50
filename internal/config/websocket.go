package config

import (
	"time"
)

type WebSocketConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Path              string        `yaml:"path"`
	ReadBufferSize    int           `yaml:"read_buffer_size"`
	WriteBufferSize   int           `yaml:"write_buffer_size"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

func loadWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		Enabled:           getEnvAsBool("WEBSOCKET_ENABLED", true),
		Path:              getEnv("WEBSOCKET_PATH", "/ws/live"),
		ReadBufferSize:    getEnvAsInt("WEBSOCKET_READ_BUFFER_SIZE", 1024),
		WriteBufferSize:   getEnvAsInt("WEBSOCKET_WRITE_BUFFER_SIZE", 1024),
		BroadcastInterval: getEnvAsDuration("WEBSOCKET_BROADCAST_INTERVAL", 10*time.Second),
		AllowedOrigins:    getEnvAsSlice("WEBSOCKET_ALLOWED_ORIGINS", []string{"*"}),
	}
}
