// Package jobx runs background jobs from a queue backend. Gatekeeper uses it
// to deliver verification emails outside the request path.
package jobx

import (
	"context"
	"sync"
	"time"
)

// HandlerFunc processes one job. A non-nil error fails the attempt; the job is
// retried while attempts remain.
type HandlerFunc func(ctx context.Context, job *JobInfo) error

type JobEnqueuer interface {
	Enqueue(ctx context.Context, job Job) (string, error)
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) (string, error)
}

type JobStatusReader interface {
	GetJob(ctx context.Context, jobID string) (*JobInfo, error)
}

// JobProcessor is the worker side of a backend.
type JobProcessor interface {
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*JobInfo, error)
	Complete(ctx context.Context, jobID string, result []byte) error
	Fail(ctx context.Context, jobID string, errMsg string) (retry bool, err error)
	Retry(ctx context.Context, jobID string, delay time.Duration) error
	PromoteScheduled(ctx context.Context, queues []string) error
}

type Queue interface {
	JobEnqueuer
	JobStatusReader
	JobProcessor
}

// Client enqueues jobs and, once started, runs the registered handlers.
type Client struct {
	queue Queue
	opts  WorkerOptions

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	running  bool
}

func NewClient(queue Queue, options ...WorkerOption) *Client {
	opts := defaultWorkerOptions()
	for _, apply := range options {
		apply(&opts)
	}
	return &Client{queue: queue, opts: opts, handlers: make(map[string]HandlerFunc)}
}

// Register sets the handler of jobType, replacing any previous one.
func (c *Client) Register(jobType string, handler HandlerFunc) {
	c.mu.Lock()
	c.handlers[jobType] = handler
	c.mu.Unlock()
}

func (c *Client) handler(jobType string) (HandlerFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[jobType]
	return h, ok
}

func (c *Client) Enqueue(ctx context.Context, job Job) (string, error) {
	return c.queue.Enqueue(ctx, withJobDefaults(job))
}

// EnqueueDelayed makes the job visible to workers after delay.
func (c *Client) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) (string, error) {
	return c.queue.EnqueueDelayed(ctx, withJobDefaults(job), delay)
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*JobInfo, error) {
	return c.queue.GetJob(ctx, jobID)
}

func withJobDefaults(job Job) Job {
	if job.Queue == "" {
		job.Queue = DefaultQueue
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = DefaultMaxRetries
	}
	return job
}
