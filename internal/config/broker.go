package config

import "time"

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      string        `yaml:"brokers"`
	EventsTopic  string        `yaml:"events_topic"`
	ClientID     string        `yaml:"client_id"`
	DeliveryWait time.Duration `yaml:"delivery_wait"`
}

type ClickHouseConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        []string      `yaml:"addr"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Table       string        `yaml:"table"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func loadKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Enabled:      getEnvAsBool("KAFKA_ENABLED", false),
		Brokers:      getEnv("KAFKA_BROKERS", "localhost:9092"),
		EventsTopic:  getEnv("KAFKA_EVENTS_TOPIC", "visitrack.events"),
		ClientID:     getEnv("KAFKA_CLIENT_ID", "visitrack"),
		DeliveryWait: getEnvAsDuration("KAFKA_DELIVERY_WAIT", 5*time.Second),
	}
}

func loadClickHouseConfig() *ClickHouseConfig {
	return &ClickHouseConfig{
		Enabled:     getEnvAsBool("CLICKHOUSE_ENABLED", false),
		Addr:        getEnvAsSlice("CLICKHOUSE_ADDR", []string{"localhost:9000"}),
		Database:    getEnv("CLICKHOUSE_DATABASE", "default"),
		Username:    getEnv("CLICKHOUSE_USERNAME", "default"),
		Password:    getEnv("CLICKHOUSE_PASSWORD", ""),
		Table:       getEnv("CLICKHOUSE_EVENTS_TABLE", "visitor_events"),
		DialTimeout: getEnvAsDuration("CLICKHOUSE_DIAL_TIMEOUT", 5*time.Second),
	}
}
