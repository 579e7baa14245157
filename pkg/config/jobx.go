package config

import "time"

// JobxConfig configures the background job queue used for email dispatch.
type JobxConfig struct {
	Concurrency     int
	Queues          []string
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	DequeueTimeout  time.Duration
	// Retry delays grow exponentially from RetryInitialInterval up to RetryMaxInterval.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	JobTimeout           time.Duration
}

func loadJobxConfig() JobxConfig {
	return JobxConfig{
		Concurrency:          getEnvInt("JOBX_CONCURRENCY", 4),
		Queues:               getEnvStringSlice("JOBX_QUEUES", []string{"default"}),
		PollInterval:         getEnvDuration("JOBX_POLL_INTERVAL", time.Second),
		ShutdownTimeout:      getEnvDuration("JOBX_SHUTDOWN_TIMEOUT", 30*time.Second),
		DequeueTimeout:       getEnvDuration("JOBX_DEQUEUE_TIMEOUT", 5*time.Second),
		RetryInitialInterval: getEnvDuration("JOBX_RETRY_INITIAL_INTERVAL", 5*time.Second),
		RetryMaxInterval:     getEnvDuration("JOBX_RETRY_MAX_INTERVAL", 10*time.Minute),
		JobTimeout:           getEnvDuration("JOBX_JOB_TIMEOUT", 30*time.Second),
	}
}
