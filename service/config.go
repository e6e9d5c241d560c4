package service

import (
	"os"
	"strconv"
	"time"
)

// Config carries the tunables of the analysis engine
type Config struct {
	EmbeddingCacheSize  int
	VectorTopK          int
	DiversityEnabled    bool
	SimilarityThreshold float64
	LLMTemperature      float32
	LLMTimeout          time.Duration
	VectorTimeout       time.Duration
	MaxIssues           int
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		EmbeddingCacheSize:  100,
		VectorTopK:          8,
		DiversityEnabled:    true,
		SimilarityThreshold: 0.4,
		LLMTemperature:      0.5,
		LLMTimeout:          30 * time.Second,
		VectorTimeout:       10 * time.Second,
		MaxIssues:           20,
	}
}

// ConfigFromEnv reads overrides from environment variables on top of the
// defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v, err := strconv.Atoi(os.Getenv("EMBEDDING_CACHE_SIZE")); err == nil && v > 0 {
		cfg.EmbeddingCacheSize = v
	}
	if v, err := strconv.Atoi(os.Getenv("VECTOR_TOP_K")); err == nil && v > 0 {
		cfg.VectorTopK = v
	}
	if v := os.Getenv("DIVERSITY_ENABLED"); v != "" {
		cfg.DiversityEnabled = v != "false" && v != "0"
	}
	if v, err := strconv.ParseFloat(os.Getenv("SIMILARITY_THRESHOLD"), 64); err == nil && v > 0 {
		cfg.SimilarityThreshold = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("LLM_TEMPERATURE"), 32); err == nil {
		cfg.LLMTemperature = float32(v)
	}
	if v, err := strconv.Atoi(os.Getenv("LLM_TIMEOUT_MS")); err == nil && v > 0 {
		cfg.LLMTimeout = time.Duration(v) * time.Millisecond
	}
	if v, err := strconv.Atoi(os.Getenv("VECTOR_TIMEOUT_MS")); err == nil && v > 0 {
		cfg.VectorTimeout = time.Duration(v) * time.Millisecond
	}
	if v, err := strconv.Atoi(os.Getenv("MAX_ISSUES")); err == nil && v > 0 {
		cfg.MaxIssues = v
	}

	return cfg
}
