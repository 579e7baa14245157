package jobx

import "time"

// WorkerOptions configures the job processing client.
type WorkerOptions struct {
	Queues          []string
	Concurrency     int
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	DequeueTimeout  time.Duration
	// Failed jobs are retried after an exponential delay bounded by these values.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// JobTimeout bounds one handler call; zero means no limit.
	JobTimeout time.Duration
	// Observer is told the outcome of every processed job.
	Observer func(jobType, outcome string)
}

func defaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		Queues:               []string{DefaultQueue},
		Concurrency:          4,
		PollInterval:         time.Second,
		ShutdownTimeout:      30 * time.Second,
		DequeueTimeout:       5 * time.Second,
		RetryInitialInterval: 5 * time.Second,
		RetryMaxInterval:     10 * time.Minute,
	}
}

// WorkerOption is a functional option for configuring the client.
type WorkerOption func(*WorkerOptions)

func WithQueues(queues ...string) WorkerOption {
	return func(o *WorkerOptions) {
		if len(queues) > 0 {
			o.Queues = queues
		}
	}
}

func WithConcurrency(n int) WorkerOption {
	return func(o *WorkerOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithPollInterval sets the interval between dequeue attempts when idle.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// WithDequeueTimeout sets the timeout passed to the blocking dequeue call.
func WithDequeueTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		if d > 0 {
			o.DequeueTimeout = d
		}
	}
}

// WithRetryBackoff bounds the exponential delay applied before a failed job runs again.
func WithRetryBackoff(initial, max time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		if initial > 0 {
			o.RetryInitialInterval = initial
		}
		if max >= o.RetryInitialInterval {
			o.RetryMaxInterval = max
		}
	}
}

func WithJobTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		if d > 0 {
			o.JobTimeout = d
		}
	}
}

// WithObserver reports every job outcome, typically to metrics.
func WithObserver(fn func(jobType, outcome string)) WorkerOption {
	return func(o *WorkerOptions) { o.Observer = fn }
}
