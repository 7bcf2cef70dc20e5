package config

import (
	"os"
	"strconv"
)

// Settings is the process configuration, loaded once at startup from
// environment variables and treated as read-only afterwards.
type Settings struct {
	Port string

	MaxBacklinks        int
	HighRiskThreshold   float64
	MediumRiskThreshold float64
	MinhashThreshold    float64

	ClassifierModelPath     string
	ClassifierModelRequired bool

	UseEnsemble           bool
	UseEnhancedFeatures   bool
	UseParallelProcessing bool
	ParallelWorkers       int
	ParallelThreshold     int

	RedisURL    string // optional, advisory cache
	DatabaseURL string // optional, domain-context store
}

// Load reads the full settings set from the environment.
func Load() Settings {
	return Settings{
		Port: getEnvOrDefault("PORT", "5340"),

		MaxBacklinks:        getEnvInt("PBN_MAX_BACKLINKS", 1000),
		HighRiskThreshold:   getEnvFloat("HIGH_RISK_THRESHOLD", 0.75),
		MediumRiskThreshold: getEnvFloat("MEDIUM_RISK_THRESHOLD", 0.5),
		MinhashThreshold:    getEnvFloat("MINHASH_THRESHOLD", 0.8),

		ClassifierModelPath:     os.Getenv("CLASSIFIER_MODEL_PATH"),
		ClassifierModelRequired: getEnvBool("CLASSIFIER_MODEL_REQUIRED", false),

		UseEnsemble:           getEnvBool("USE_ENSEMBLE", true),
		UseEnhancedFeatures:   getEnvBool("USE_ENHANCED_FEATURES", true),
		UseParallelProcessing: getEnvBool("USE_PARALLEL_PROCESSING", true),
		ParallelWorkers:       getEnvInt("PARALLEL_WORKERS", 4),
		ParallelThreshold:     getEnvInt("PARALLEL_THRESHOLD", 50),

		RedisURL:    os.Getenv("REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}

// getEnvOrDefault returns the env var value or a safe default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
