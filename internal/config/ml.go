package config

type MLConfig struct {
	SessionModel *MLModelConfig `yaml:"session_model"`
}

type MLModelConfig struct {
	Enabled   bool    `yaml:"enabled"`
	ModelPath string  `yaml:"model_path"`
	Version   string  `yaml:"version"`
	Threshold float64 `yaml:"threshold"`
}

func loadMLConfig() *MLConfig {
	return &MLConfig{
		SessionModel: &MLModelConfig{
			Enabled:   getEnvAsBool("ML_SESSION_ENABLED", false),
			ModelPath: getEnv("ML_SESSION_MODEL_PATH", ""),
			Version:   getEnv("ML_SESSION_VERSION", "heuristic-1"),
			Threshold: getEnvAsFloat64("ML_SESSION_THRESHOLD", 0.6),
		},
	}
}
