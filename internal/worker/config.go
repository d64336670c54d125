// Package worker provides background trip planning for DayTrip. Jobs arrive
// over Pub/Sub and results are published to a result topic.
package worker

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the batch planner.
type Config struct {
	// Concurrency is the number of jobs planned at the same time.
	// Default: 4
	Concurrency int

	// JobTimeout bounds a single planning job.
	// Default: 30 seconds
	JobTimeout time.Duration

	// MaxBatchSize is the largest plan_batch message accepted.
	// Default: 50
	MaxBatchSize int
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		JobTimeout:   30 * time.Second,
		MaxBatchSize: 50,
	}
}

// ConfigFromEnv reads WORKER_CONCURRENCY, WORKER_JOB_TIMEOUT and
// WORKER_MAX_BATCH_SIZE, falling back to defaults for missing or invalid
// values.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if n, err := strconv.Atoi(os.Getenv("WORKER_CONCURRENCY")); err == nil && n > 0 {
		cfg.Concurrency = n
	}
	if d, err := time.ParseDuration(os.Getenv("WORKER_JOB_TIMEOUT")); err == nil && d > 0 {
		cfg.JobTimeout = d
	}
	if n, err := strconv.Atoi(os.Getenv("WORKER_MAX_BATCH_SIZE")); err == nil && n > 0 {
		cfg.MaxBatchSize = n
	}
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	return c
}
