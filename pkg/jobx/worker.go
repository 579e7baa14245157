package jobx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/cenkalti/backoff/v5"
)

// Outcomes reported to the Observer.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeUnhandled = "unhandled"
)

// Start runs the scheduler and the workers until ctx is cancelled, then
// waits up to ShutdownTimeout for in-flight jobs.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return jobxErrors.New(ErrAlreadyRunning)
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	logx.WithFields(logx.Fields{
		"workers": c.opts.Concurrency,
		"queues":  c.opts.Queues,
	}).Info("jobx: worker pool started")

	var wg sync.WaitGroup
	wg.Add(1 + c.opts.Concurrency)
	go func() {
		defer wg.Done()
		c.promoteLoop(ctx)
	}()
	for i := range c.opts.Concurrency {
		go func() {
			defer wg.Done()
			c.workLoop(ctx, i)
		}()
	}

	<-ctx.Done()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logx.Info("jobx: worker pool stopped")
	case <-time.After(c.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out with jobs still running")
	}
	return nil
}

// promoteLoop moves due delayed jobs onto their ready queues.
func (c *Client) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := c.queue.PromoteScheduled(ctx, c.opts.Queues); err != nil && ctx.Err() == nil {
			logx.WithError(err).Warn("jobx: promote scheduled jobs")
		}
	}
}

func (c *Client) workLoop(ctx context.Context, worker int) {
	for ctx.Err() == nil {
		job, err := c.queue.Dequeue(ctx, c.opts.Queues, c.opts.DequeueTimeout)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			logx.WithError(err).WithField("worker", worker).Warn("jobx: dequeue")
			sleep(ctx, c.opts.PollInterval)
		case job != nil:
			c.process(ctx, job)
		}
	}
}

// RunOnce dequeues and processes at most one job and reports whether it did.
func (c *Client) RunOnce(ctx context.Context) (bool, error) {
	job, err := c.queue.Dequeue(ctx, c.opts.Queues, c.opts.DequeueTimeout)
	if err != nil || job == nil {
		return false, err
	}
	c.process(ctx, job)
	return true, nil
}

func (c *Client) process(ctx context.Context, job *JobInfo) {
	log := logx.WithFields(logx.Fields{"job_id": job.ID, "job_type": job.Type, "attempt": job.Attempts})

	handler, ok := c.handler(job.Type)
	if !ok {
		log.Warn("jobx: no handler registered")
		if _, err := c.queue.Fail(ctx, job.ID, "no handler registered for "+job.Type); err != nil {
			log.WithError(err).Error("jobx: mark failed")
		}
		c.observe(job.Type, OutcomeUnhandled)
		return
	}

	if err := c.run(ctx, handler, job); err != nil {
		log.WithError(err).Warn("jobx: attempt failed")
		retry, ferr := c.queue.Fail(ctx, job.ID, err.Error())
		if ferr != nil {
			log.WithError(ferr).Error("jobx: mark failed")
			return
		}
		if !retry {
			c.observe(job.Type, OutcomeFailed)
			return
		}
		if rerr := c.queue.Retry(ctx, job.ID, c.retryDelay(job.Attempts)); rerr != nil {
			log.WithError(rerr).Error("jobx: schedule retry")
		}
		c.observe(job.Type, OutcomeRetried)
		return
	}

	if err := c.queue.Complete(ctx, job.ID, nil); err != nil {
		log.WithError(err).Error("jobx: mark completed")
		return
	}
	c.observe(job.Type, OutcomeCompleted)
}

// run calls the handler under the job timeout. A panic fails the attempt
// instead of killing the worker.
func (c *Client) run(ctx context.Context, handler HandlerFunc, job *JobInfo) (err error) {
	if c.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jobx: handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (c *Client) observe(jobType, outcome string) {
	if c.opts.Observer != nil {
		c.opts.Observer(jobType, outcome)
	}
}

// retryDelay is the delay before the attempt after `attempt`, without jitter.
func (c *Client) retryDelay(attempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.RetryInitialInterval
	eb.MaxInterval = c.opts.RetryMaxInterval
	eb.RandomizationFactor = 0
	eb.Reset()

	delay := eb.InitialInterval
	for range attempt {
		delay = eb.NextBackOff()
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
