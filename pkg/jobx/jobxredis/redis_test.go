package jobxredis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type welcomePayload struct {
	Email string `json:"email"`
}

func newQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisQueue(rdb), mr
}

func TestClientProcessesEnqueuedJob(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	client := jobx.NewClient(q, jobx.WithDequeueTimeout(time.Second))

	var got welcomePayload
	client.Register("verification.send_email", func(ctx context.Context, job *jobx.JobInfo) error {
		return job.Decode(&got)
	})

	job, err := jobx.NewJob("verification.send_email", welcomePayload{Email: "ada@example.com"})
	require.NoError(t, err)
	id, err := client.Enqueue(ctx, job)
	require.NoError(t, err)

	handled, err := client.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "ada@example.com", got.Email)

	info, err := client.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobx.JobStatusCompleted, info.Status)
	assert.Equal(t, 1, info.Attempts)
	assert.Equal(t, jobx.DefaultQueue, info.Queue)
}

func TestFailedJobIsScheduledForRetry(t *testing.T) {
	q, mr := newQueue(t)
	ctx := context.Background()
	client := jobx.NewClient(q,
		jobx.WithDequeueTimeout(time.Second),
		jobx.WithRetryBackoff(time.Minute, time.Hour),
	)
	client.Register("flaky", func(context.Context, *jobx.JobInfo) error {
		return errors.New("smtp unavailable")
	})

	job, err := jobx.NewJob("flaky", map[string]string{})
	require.NoError(t, err)
	id, err := client.Enqueue(ctx, job)
	require.NoError(t, err)

	_, err = client.RunOnce(ctx)
	require.NoError(t, err)

	info, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobx.JobStatusRetrying, info.Status)
	assert.Equal(t, "smtp unavailable", info.Error)

	members, err := mr.ZMembers(q.scheduledKey(jobx.DefaultQueue))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, members)

	score, err := mr.ZScore(q.scheduledKey(jobx.DefaultQueue), id)
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Now().Add(time.Minute).Unix()), score, 5)
}

func TestPromoteScheduledMovesDueJobs(t *testing.T) {
	q, mr := newQueue(t)
	ctx := context.Background()

	job, err := jobx.NewJob("later", map[string]int{"n": 1})
	require.NoError(t, err)
	job.Queue = "emails"
	id, err := q.EnqueueDelayed(ctx, job, -time.Second)
	require.NoError(t, err)

	require.NoError(t, q.PromoteScheduled(ctx, []string{"emails"}))

	list, err := mr.List(q.queueKey("emails"))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, list)
	assert.False(t, mr.Exists(q.scheduledKey("emails")))
}

func TestGetJobNotFound(t *testing.T) {
	q, _ := newQueue(t)
	_, err := q.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBX_REDIS_NOT_FOUND")
}

func TestBackendFailureNamesOperation(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	q := NewRedisQueue(rdb)

	_, err := q.Enqueue(context.Background(), jobx.Job{Type: "email", Queue: "emails"})
	require.Error(t, err)
	var xerr *errx.Error
	require.True(t, errx.As(err, &xerr))
	assert.Equal(t, ErrBackend.Code, xerr.Code)
	assert.Equal(t, "enqueue", xerr.Details["op"])
}
