// Package config defines the configuration for the Valdrix scheduling core.
// Configuration is loaded once at process start and is immutable thereafter.
// Values come from the OS environment, with a local .env file as fallback.
// Any missing required value or invalid format fails the process immediately.
package config

import "time"

// Config is the top-level configuration for both the scheduler and the sweep
// worker. Sub-components receive only the subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	// IsTestMode puts infrastructure adapters into deterministic test
	// behavior: the dispatch lock always acquires, schedules never block on
	// external stores.
	IsTestMode bool `envconfig:"IS_TEST_MODE" default:"false"`

	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AWS       AWSConfig
	Carbon    CarbonConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds the health/metrics HTTP listener settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds Postgres connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// RedisConfig holds the shared lock-cache connection. An empty URL means the
// lock store is unconfigured; the dispatch lock then fails open and the
// dedup-key constraint remains the only dispatch dedup.
type RedisConfig struct {
	URL string `envconfig:"REDIS_URL"`

	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"2s"`
}

// AWSConfig holds the task-queue broker settings.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	DispatchQueueURL string `envconfig:"SQS_DISPATCH_QUEUE" validate:"required,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// CarbonConfig holds the live carbon-intensity provider settings. An empty
// APIToken disables live lookups entirely; the evaluator then runs on the
// time-of-day heuristic alone.
type CarbonConfig struct {
	APIToken string        `envconfig:"CARBON_API_TOKEN"`
	BaseURL  string        `envconfig:"CARBON_API_BASE_URL" default:"https://api.electricitymap.org/v3"`
	Timeout  time.Duration `envconfig:"CARBON_API_TIMEOUT" default:"5s"`
	// GreenThreshold is the absolute intensity (gCO2eq/kWh) at or below
	// which a region counts as a green window.
	GreenThreshold float64       `envconfig:"CARBON_GREEN_THRESHOLD" default:"150"`
	CacheTTL       time.Duration `envconfig:"CARBON_CACHE_TTL" default:"10m"`
}

// SchedulerConfig holds the dispatch and enqueue tuning knobs.
type SchedulerConfig struct {
	LockTTL        time.Duration `envconfig:"SCHED_LOCK_TTL" default:"180s"`
	ChunkSize      int           `envconfig:"SCHED_INSERT_CHUNK_SIZE" default:"500" validate:"gt=0"`
	MaxAttempts    int           `envconfig:"SCHED_MAX_ATTEMPTS" default:"3" validate:"gt=0"`
	BackoffBase    time.Duration `envconfig:"SCHED_BACKOFF_BASE" default:"1s"`
	ClaimBatchSize int           `envconfig:"SCHED_CLAIM_BATCH" default:"1000" validate:"gt=0"`

	StuckThreshold time.Duration `envconfig:"SCHED_STUCK_THRESHOLD" default:"1h"`
	// CarbonDeferral is how far remediation work is pushed out when the
	// connection's region is not currently green.
	CarbonDeferral time.Duration `envconfig:"SCHED_CARBON_DEFERRAL" default:"4h"`
	// JobRetention bounds the maintenance sweep: terminal job rows older
	// than this are purged so the dedup-key index does not grow unbounded.
	JobRetention time.Duration `envconfig:"SCHED_JOB_RETENTION" default:"720h"`
}
