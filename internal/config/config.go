/**
 * Configuration for the OCR worker
 *
 * Loads configuration from environment variables (a .env file is loaded by main)
 * and the preprocessing parameter tables from YAML.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL string

	// PostgreSQL configuration
	DatabaseURL string

	// Queue configuration
	QueueName    string
	QueueBackend string // "redis" (list consumer) or "asynq"

	// Worker configuration
	WorkerConcurrency int
	PageWorkers       int
	ProcessingTimeout int // milliseconds
	MaxRetries        int

	// Ensemble configuration
	Engines             []string
	EngineWeights       map[string]float64
	ConfidenceThreshold float64
	DefaultLanguage     string
	EngineTimeout       time.Duration

	// Cache configuration
	CacheBackend string // "memory", "redis" or "none"
	CacheTTL     time.Duration
	CacheTimeout time.Duration

	// Preprocessing parameter tables
	ParamsFile string
	Params     *ParamTable

	// Tesseract configuration
	TesseractPath string

	// Google Document AI
	GoogleProjectID       string
	GoogleLocation        string
	GoogleProcessorID     string
	GoogleCredentialsFile string

	// Azure AI Vision Read
	AzureEndpoint string
	AzureAPIKey   string

	// OpenAI-compatible vision model
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Object storage for page sources
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	// Output of the "static" engine
	StaticText       string
	StaticConfidence float64

	LogLevel string
}

// DefaultEngineWeights mirrors the weighting used in production deployments
var DefaultEngineWeights = map[string]float64{
	"vision_llm": 0.5,
	"tesseract":  0.2,
	"documentai": 0.2,
	"azure_read": 0.1,
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	weights, err := parseWeights(getEnvOrDefault("ENGINE_WEIGHTS", ""))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		RedisURL:              getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:           getEnvOrThrow("DATABASE_URL"),
		QueueName:             getEnvOrDefault("QUEUE_NAME", "ocr:jobs"),
		QueueBackend:          getEnvOrDefault("QUEUE_BACKEND", "redis"),
		WorkerConcurrency:     getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		PageWorkers:           getEnvAsIntOrDefault("PAGE_WORKERS", 4),
		ProcessingTimeout:     getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		MaxRetries:            getEnvAsIntOrDefault("MAX_RETRIES", 3),
		Engines:               getEnvAsListOrDefault("ENGINES", []string{"tesseract"}),
		EngineWeights:         weights,
		ConfidenceThreshold:   getEnvAsFloatOrDefault("CONFIDENCE_THRESHOLD", 0.85),
		DefaultLanguage:       getEnvOrDefault("DEFAULT_LANGUAGE", "jpn"),
		EngineTimeout:         getEnvAsMillisOrDefault("ENGINE_TIMEOUT", 60*time.Second),
		CacheBackend:          getEnvOrDefault("CACHE_BACKEND", "redis"),
		CacheTTL:              time.Duration(getEnvAsIntOrDefault("CACHE_TTL", 3600)) * time.Second,
		CacheTimeout:          getEnvAsMillisOrDefault("CACHE_TIMEOUT", 2*time.Second),
		ParamsFile:            getEnvOrDefault("PARAMS_FILE", ""),
		TesseractPath:         getEnvOrDefault("TESSERACT_PATH", "/usr/bin/tesseract"),
		GoogleProjectID:       getEnvOrDefault("GOOGLE_PROJECT_ID", ""),
		GoogleLocation:        getEnvOrDefault("GOOGLE_LOCATION", "us"),
		GoogleProcessorID:     getEnvOrDefault("GOOGLE_PROCESSOR_ID", ""),
		GoogleCredentialsFile: getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
		AzureEndpoint:         getEnvOrDefault("AZURE_ENDPOINT", ""),
		AzureAPIKey:           getEnvOrDefault("AZURE_API_KEY", ""),
		OpenAIAPIKey:          getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnvOrDefault("OPENAI_BASE_URL", ""),
		OpenAIModel:           getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		S3Region:              getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:            getEnvOrDefault("S3_ENDPOINT", ""),
		S3AccessKey:           getEnvOrDefault("S3_ACCESS_KEY", ""),
		S3SecretKey:           getEnvOrDefault("S3_SECRET_KEY", ""),
		StaticText:            getEnvOrDefault("STATIC_TEXT", ""),
		StaticConfidence:      getEnvAsFloatOrDefault("STATIC_CONFIDENCE", 0.9),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
	}

	params, err := LoadParamTable(cfg.ParamsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load preprocessing params: %w", err)
	}
	cfg.Params = params

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration suitable for local runs and tests: no
// external services, memory cache, embedded parameter tables.
func Default() *Config {
	params, err := LoadParamTable("")
	if err != nil {
		// The embedded table is part of the binary; failing to parse it is a build defect.
		panic(err)
	}
	weights := make(map[string]float64, len(DefaultEngineWeights))
	for k, v := range DefaultEngineWeights {
		weights[k] = v
	}
	return &Config{
		QueueName:           "ocr:jobs",
		QueueBackend:        "redis",
		WorkerConcurrency:   1,
		PageWorkers:         2,
		ProcessingTimeout:   300000,
		MaxRetries:          3,
		Engines:             []string{"static"},
		EngineWeights:       weights,
		ConfidenceThreshold: 0.85,
		DefaultLanguage:     "jpn",
		EngineTimeout:       30 * time.Second,
		CacheBackend:        "memory",
		CacheTTL:            time.Hour,
		CacheTimeout:        2 * time.Second,
		Params:              params,
		StaticConfidence:    0.9,
		LogLevel:            "info",
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.QueueBackend != "redis" && c.QueueBackend != "asynq" {
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.PageWorkers < 1 || c.PageWorkers > 64 {
		return fmt.Errorf("PAGE_WORKERS must be between 1 and 64, got %d", c.PageWorkers)
	}

	if len(c.Engines) == 0 {
		return fmt.Errorf("ENGINES must name at least one engine")
	}

	for name, w := range c.EngineWeights {
		if w < 0 {
			return fmt.Errorf("ENGINE_WEIGHTS: weight for %s must not be negative, got %v", name, w)
		}
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be between 0 and 1, got %v", c.ConfidenceThreshold)
	}

	if c.EngineTimeout <= 0 {
		return fmt.Errorf("ENGINE_TIMEOUT must be positive")
	}

	switch c.CacheBackend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory, redis or none, got %q", c.CacheBackend)
	}

	if c.Params == nil {
		return fmt.Errorf("preprocessing params are not loaded")
	}

	return nil
}

// WeightFor returns the ensemble weight of an engine, 0 when unset
func (c *Config) WeightFor(engine string) float64 {
	return c.EngineWeights[engine]
}

// parseWeights reads "name=0.5,other=0.2". An empty string yields the defaults.
func parseWeights(raw string) (map[string]float64, error) {
	weights := make(map[string]float64, len(DefaultEngineWeights))
	for k, v := range DefaultEngineWeights {
		weights[k] = v
	}
	if strings.TrimSpace(raw) == "" {
		return weights, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("ENGINE_WEIGHTS entry %q is not name=weight", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("ENGINE_WEIGHTS entry %q: %w", pair, err)
		}
		weights[strings.TrimSpace(name)] = w
	}
	return weights, nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or panics
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsMillisOrDefault reads a millisecond count as a duration
func getEnvAsMillisOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	ms, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return time.Duration(ms) * time.Millisecond
}

// getEnvAsListOrDefault splits a comma separated variable
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
