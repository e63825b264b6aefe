package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvConfig is the host-level configuration read once at startup.
type EnvConfig struct {
	WorkspaceRoot  string
	MaxConcurrent  int64
	MaxOutputBytes int64

	LanguageTablePath string

	SandboxImage string

	MetricsSink     string // "term", "nats", "sqs" or empty
	NatsURL         string
	NatsSubject     string
	SqsQueueUrl     string
	AwsRegion       string
}

// Read loads .env (when present) and the environment. Missing values
// fall back to defaults; the language table path may stay empty, which
// selects the built-in table.
func Read(logger *slog.Logger) *EnvConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	return &EnvConfig{
		WorkspaceRoot:     os.Getenv("EXECUTOR_WORKSPACE_ROOT"),
		MaxConcurrent:     envInt("EXECUTOR_MAX_CONCURRENT", 4),
		MaxOutputBytes:    envInt("EXECUTOR_MAX_OUTPUT_BYTES", 1<<20),
		LanguageTablePath: os.Getenv("EXECUTOR_LANGUAGES_TOML"),
		SandboxImage:      os.Getenv("EXECUTOR_SANDBOX_IMAGE"),
		MetricsSink:       os.Getenv("EXECUTOR_METRICS_SINK"),
		NatsURL:           os.Getenv("NATS_URL"),
		NatsSubject:       envOr("EXECUTOR_METRICS_SUBJECT", "executor.metrics"),
		SqsQueueUrl:       os.Getenv("EXECUTOR_METRICS_SQS_URL"),
		AwsRegion:         envOr("AWS_REGION", "eu-central-1"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
