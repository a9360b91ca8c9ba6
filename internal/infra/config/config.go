package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int
	DBMinConns int

	// Funnel defaults; request-level overrides are merged in the usecase.
	Stage0TopK              int
	Stage1Enabled           bool
	Stage1TopK              int
	Stage1NeighborsPerChunk int
	Stage1Workers           int
	Stage1TimeoutSec        int
	Stage2ParallelWorkers   int
	Stage2FallbackThreshold float64
	Stage2CandidateTimeout  int
	ReusableThreshold       float64
	MinSectionChunks        int
	MinSectionTokens        int
	OverlapFormula          string
	SectionPageGap          int
	MaxResults              int

	// Shared resource policy
	GlobalConcurrency  int64
	IndexQueriesPerSec float64
	IndexQueryBurst    int

	OTelEnabled  bool
	OTelEndpoint string
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		DBHost:     getEnv("DB_HOST", "reuse-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "reuse_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "reuse_password"),
		DBName:     getEnv("DB_NAME", "reuse_db"),
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns: getEnvInt("DB_MIN_CONNS", 2),

		Stage0TopK:              getEnvInt("STAGE0_TOPK", 600),
		Stage1Enabled:           getEnvBool("STAGE1_ENABLED", true),
		Stage1TopK:              getEnvInt("STAGE1_TOPK", 250),
		Stage1NeighborsPerChunk: getEnvInt("STAGE1_NEIGHBORS_PER_CHUNK", 8),
		Stage1Workers:           getEnvInt("STAGE1_WORKERS", 16),
		Stage1TimeoutSec:        getEnvInt("STAGE1_TIMEOUT_SEC", 20),
		Stage2ParallelWorkers:   getEnvInt("STAGE2_PARALLEL_WORKERS", 1),
		Stage2FallbackThreshold: getEnvFloat("STAGE2_FALLBACK_THRESHOLD", 0.8),
		Stage2CandidateTimeout:  getEnvInt("STAGE2_CANDIDATE_TIMEOUT_SEC", 15),
		ReusableThreshold:       getEnvFloat("REUSABLE_THRESHOLD", 0.85),
		MinSectionChunks:        getEnvInt("MIN_SECTION_CHUNKS", 2),
		MinSectionTokens:        getEnvInt("MIN_SECTION_TOKENS", 200),
		OverlapFormula:          getEnv("OVERLAP_FORMULA", "harmonic"),
		SectionPageGap:          getEnvInt("SECTION_PAGE_GAP", 1),
		MaxResults:              getEnvInt("MAX_RESULTS", 50),

		GlobalConcurrency:  int64(getEnvInt("GLOBAL_CONCURRENCY", 8)),
		IndexQueriesPerSec: getEnvFloat("INDEX_QUERIES_PER_SEC", 0), // 0 disables the cap
		IndexQueryBurst:    getEnvInt("INDEX_QUERY_BURST", 32),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
	}
}

// Stage1Timeout returns the Stage1 timeout as a duration.
func (c *Config) Stage1Timeout() time.Duration {
	return time.Duration(c.Stage1TimeoutSec) * time.Second
}

// Stage2Timeout returns the per-candidate Stage2 timeout as a duration.
func (c *Config) Stage2Timeout() time.Duration {
	return time.Duration(c.Stage2CandidateTimeout) * time.Second
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
