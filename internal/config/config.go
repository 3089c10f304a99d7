package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the daemon.
type Config struct {
	DataDir  string
	DBPath   string
	NotesDir string
	CacheDir string

	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string
	LLMTimeout         time.Duration
	EmbeddingBaseURL   string
	EmbeddingModelName string

	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	CaptureInterval   time.Duration
	DedupThreshold    int
	AnchorInterval    time.Duration
	NowPlayingPoll    time.Duration
	LocationPoll      time.Duration
	ScreenshotCmd     []string
	ForegroundCmd     []string
	NowPlayingCmd     []string
	LocationCmd       []string
	Monitors          []int
	MaxTokensPerBuf   int
	MaxTokensPerHour  int
	OCRBinary         string
	OCRMinInterval    time.Duration
	ExtractionWorkers int

	APIPort  string
	Timezone *time.Location

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config.
// If a .env file exists in the current directory or an ancestor, it is loaded
// first; environment variables already set take precedence over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Walk up a few levels looking for a .env next to the project root.
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	dataDir := getEnv("TRACE_DATA_DIR", "./data")

	cfg := &Config{
		DataDir:  dataDir,
		DBPath:   getEnv("TRACE_DB_PATH", filepath.Join(dataDir, "db", "trace.sqlite")),
		NotesDir: getEnv("TRACE_NOTES_DIR", filepath.Join(dataDir, "notes")),
		CacheDir: getEnv("TRACE_CACHE_DIR", filepath.Join(dataDir, "cache")),

		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),

		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "trace-notes"),

		OCRBinary: getEnv("OCR_BINARY", "tesseract"),
		APIPort:   getEnv("API_PORT", "9000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.LLMTimeout, err = secondsEnv("LLM_TIMEOUT_SECONDS", 120); err != nil {
		return nil, err
	}
	if cfg.CaptureInterval, err = millisEnv("CAPTURE_INTERVAL_MS", 1000); err != nil {
		return nil, err
	}
	if cfg.DedupThreshold, err = intEnv("CAPTURE_DEDUP_THRESHOLD", 8); err != nil {
		return nil, err
	}
	if cfg.AnchorInterval, err = secondsEnv("CAPTURE_ANCHOR_SECONDS", 300); err != nil {
		return nil, err
	}
	if cfg.NowPlayingPoll, err = secondsEnv("NOW_PLAYING_POLL_SECONDS", 15); err != nil {
		return nil, err
	}
	if cfg.LocationPoll, err = secondsEnv("LOCATION_POLL_SECONDS", 300); err != nil {
		return nil, err
	}
	if cfg.MaxTokensPerBuf, err = intEnv("EVIDENCE_MAX_TOKENS_PER_BUFFER", 2000); err != nil {
		return nil, err
	}
	if cfg.MaxTokensPerHour, err = intEnv("EVIDENCE_MAX_TOKENS_PER_HOUR", 8000); err != nil {
		return nil, err
	}
	if cfg.OCRMinInterval, err = secondsEnv("OCR_MIN_INTERVAL_SECONDS", 20); err != nil {
		return nil, err
	}
	if cfg.ExtractionWorkers, err = intEnv("EXTRACTION_WORKERS", 2); err != nil {
		return nil, err
	}

	// Platform helpers: each is one command line; capture is disabled when
	// the screenshot or foreground helper is unset, leaving the daemon in
	// jobs-and-API mode.
	cfg.ScreenshotCmd = fieldsEnv("CAPTURE_SCREENSHOT_CMD")
	cfg.ForegroundCmd = fieldsEnv("CAPTURE_FOREGROUND_CMD")
	cfg.NowPlayingCmd = fieldsEnv("NOW_PLAYING_CMD")
	cfg.LocationCmd = fieldsEnv("LOCATION_CMD")
	if cfg.Monitors, err = intsEnv("CAPTURE_MONITORS", []int{1}); err != nil {
		return nil, err
	}

	// QDRANT_VECTOR_SIZE must match the embedding model's output size; there
	// is no safe default because a mismatch corrupts the collection.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	tz := getEnv("TRACE_TIMEZONE", "")
	if tz == "" {
		cfg.Timezone = time.Local
	} else {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("TRACE_TIMEZONE is not a valid location: %w", err)
		}
		cfg.Timezone = loc
	}

	if cfg.DedupThreshold < 0 || cfg.DedupThreshold > 64 {
		return nil, fmt.Errorf("CAPTURE_DEDUP_THRESHOLD must be in [0,64], got %d", cfg.DedupThreshold)
	}

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.NotesDir, cfg.CacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func secondsEnv(key string, defaultValue int) (time.Duration, error) {
	v, err := intEnv(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}

func millisEnv(key string, defaultValue int) (time.Duration, error) {
	v, err := intEnv(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Millisecond, nil
}

// fieldsEnv splits a command-line env var on whitespace; empty means unset.
func fieldsEnv(key string) []string {
	return strings.Fields(os.Getenv(key))
}

// intsEnv parses a comma-separated list of integers.
func intsEnv(key string, defaultValue []int) ([]int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%s must be a comma-separated list of integers: %w", key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
