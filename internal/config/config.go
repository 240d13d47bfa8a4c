// Package config loads the sync orchestrator's tunables from the
// environment, following the same EnvConfig idiom the rest of the
// ecosystem uses for service configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig retrieves typed values from environment variables under an
// optional prefix.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a loader that reads "{prefix}_{key}" variables.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// GetString returns the variable's value, or defaultValue if unset/empty.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		return v
	}
	return defaultValue
}

// MustGetString returns the variable's value or panics if unset.
func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	v := os.Getenv(fullKey)
	if v == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return v
}

// GetInt returns the variable parsed as an int, or defaultValue.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetBool returns the variable parsed as a bool, or defaultValue.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetDuration returns the variable parsed as a time.Duration, or defaultValue.
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetStringSlice returns a comma-separated variable split into a slice.
func (ec *EnvConfig) GetStringSlice(key string, defaultValue []string) []string {
	v := os.Getenv(ec.buildKey(key))
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Config holds every tunable named across spec §4-§6.
type Config struct {
	// Runtime / workflow engine (spec §6 Environment).
	RuntimeAddress  string
	RuntimeQueue    string
	UseTemporalSync bool

	// Store.
	StoreDSN  string
	StoreKind string // "postgres" or "bolt"

	// Engine (spec §4.3).
	ConflictWindow time.Duration

	// RepoLog adapter backend (spec §4.1, C3 adapters/repolog).
	RepoLogBackend string // "local", "gitea", "gitlab"
	RepoLogURL     string
	RepoLogToken   string
	RepoLogOwner   string // Gitea org or GitLab group/namespace
	RepoLogWorkDir string

	// Daemon operational surface (spec §6).
	HTTPAddr         string // webhook + control-plane listen address
	ControlPlanePath string
	WebhookSecret    string
	RedisAddr        string // dedup cache backend, spec §4.4

	// Docs-like SSE ingester (spec §4.4); empty disables it.
	DocsSSECouchDSN string

	// Ingesters (spec §4.4 / §5).
	FileWatchItemDelay  time.Duration
	DocsSSEItemDelay    time.Duration
	WebhookItemDelay    time.Duration
	WebhookFastPathSize int

	// Pipeline (spec §4.5 / §5).
	PipelineBatchSize      int
	ContinueAsNewThreshold int
	Phase3bCreateDelay     time.Duration

	// Orchestrator (spec §4.6 / §5).
	MaxProjectsPerContinuation int
	CircuitBreakerThreshold   int
	BulkPrefetchLimit         int
	InterProjectDelay         time.Duration
	ScheduleInterval          time.Duration

	// Activity retry policy (spec §5).
	ActivityTimeout      time.Duration
	RetryInitialInterval time.Duration
	RetryBackoffFactor   float64
	RetryMaxInterval     time.Duration
	RetryMaxAttempts     int

	// Docs mirror (spec §4.8, Open Question #1).
	EchoLoopWindow time.Duration

	// Pipeline rank-guard strictness (Open Question #4).
	RejectUnknownRankTarget bool

	// Logging.
	LogLevel  string
	LogFormat string

	// Tracing (ambient; spec §1 excludes a metrics *sink* but not
	// instrumentation of the core itself).
	OTelEnabled      bool
	OTelEndpoint     string
	OTelSamplingRate float64
	OTelEnvironment  string
}

// Load reads Config from the environment, applying the defaults named in
// the specification.
func Load() Config {
	env := NewEnvConfig("")
	return Config{
		RuntimeAddress:  env.GetString("RUNTIME_ADDRESS", "localhost:7233"),
		RuntimeQueue:    env.GetString("RUNTIME_TASK_QUEUE", "vibesync-queue"),
		UseTemporalSync: env.GetBool("USE_TEMPORAL_SYNC", false),

		StoreDSN:  env.GetString("SYNCORCH_STORE_DSN", "postgres://localhost:5432/syncorch"),
		StoreKind: env.GetString("SYNCORCH_STORE_KIND", "postgres"),

		ConflictWindow: env.GetDuration("SYNCORCH_CONFLICT_WINDOW", 1000*time.Millisecond),

		RepoLogBackend: env.GetString("SYNCORCH_REPOLOG_BACKEND", "local"),
		RepoLogURL:     env.GetString("SYNCORCH_REPOLOG_URL", ""),
		RepoLogToken:   env.GetString("SYNCORCH_REPOLOG_TOKEN", ""),
		RepoLogOwner:   env.GetString("SYNCORCH_REPOLOG_OWNER", ""),
		RepoLogWorkDir: env.GetString("SYNCORCH_REPOLOG_WORKDIR", "./data/repolog"),

		HTTPAddr:         env.GetString("SYNCORCH_HTTP_ADDR", ":8088"),
		ControlPlanePath: env.GetString("SYNCORCH_CONTROL_PLANE_PATH", "/v1/control"),
		WebhookSecret:    env.GetString("SYNCORCH_WEBHOOK_SECRET", ""),
		RedisAddr:        env.GetString("SYNCORCH_REDIS_ADDR", "localhost:6379"),

		DocsSSECouchDSN: env.GetString("SYNCORCH_DOCSSSE_COUCH_DSN", ""),

		FileWatchItemDelay:  env.GetDuration("SYNCORCH_FILEWATCH_ITEM_DELAY", 200*time.Millisecond),
		DocsSSEItemDelay:    env.GetDuration("SYNCORCH_DOCSSSE_ITEM_DELAY", 200*time.Millisecond),
		WebhookItemDelay:    env.GetDuration("SYNCORCH_WEBHOOK_ITEM_DELAY", 500*time.Millisecond),
		WebhookFastPathSize: env.GetInt("SYNCORCH_WEBHOOK_FASTPATH_SIZE", 20),

		PipelineBatchSize:      env.GetInt("SYNCORCH_PIPELINE_BATCH_SIZE", 5),
		ContinueAsNewThreshold: env.GetInt("SYNCORCH_CONTINUE_AS_NEW_THRESHOLD", 100),
		Phase3bCreateDelay:     env.GetDuration("SYNCORCH_PHASE3B_CREATE_DELAY", 100*time.Millisecond),

		MaxProjectsPerContinuation: env.GetInt("SYNCORCH_MAX_PROJECTS_PER_CONTINUATION", 3),
		CircuitBreakerThreshold:    env.GetInt("SYNCORCH_CIRCUIT_BREAKER_THRESHOLD", 3),
		BulkPrefetchLimit:          env.GetInt("SYNCORCH_BULK_PREFETCH_LIMIT", 1000),
		InterProjectDelay:          env.GetDuration("SYNCORCH_INTER_PROJECT_DELAY", 500*time.Millisecond),
		ScheduleInterval:           env.GetDuration("SYNCORCH_SCHEDULE_INTERVAL", 10*time.Minute),

		ActivityTimeout:      env.GetDuration("SYNCORCH_ACTIVITY_TIMEOUT", 120*time.Second),
		RetryInitialInterval: env.GetDuration("SYNCORCH_RETRY_INITIAL_INTERVAL", 2*time.Second),
		RetryBackoffFactor:   2.0,
		RetryMaxInterval:     env.GetDuration("SYNCORCH_RETRY_MAX_INTERVAL", 60*time.Second),
		RetryMaxAttempts:     env.GetInt("SYNCORCH_RETRY_MAX_ATTEMPTS", 5),

		EchoLoopWindow: env.GetDuration("SYNCORCH_ECHO_LOOP_WINDOW", 60*time.Second),

		RejectUnknownRankTarget: env.GetBool("SYNCORCH_REJECT_UNKNOWN_RANK_TARGET", false),

		LogLevel:  env.GetString("SYNCORCH_LOG_LEVEL", "info"),
		LogFormat: env.GetString("SYNCORCH_LOG_FORMAT", "text"),

		OTelEnabled:      env.GetBool("OTEL_ENABLED", true),
		OTelEndpoint:     env.GetString("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		OTelSamplingRate: otelSamplingRate(env),
		OTelEnvironment:  env.GetString("OTEL_ENVIRONMENT", "development"),
	}
}

func otelSamplingRate(env *EnvConfig) float64 {
	v := env.GetString("OTEL_SAMPLING_RATIO", "1.0")
	rate, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 1.0
	}
	return rate
}
