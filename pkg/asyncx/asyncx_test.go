package asyncx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllSettledKeepsOrderAndErrors(t *testing.T) {
	boom := errors.New("boom")
	results := AllSettled(context.Background(),
		func(context.Context) (string, error) { time.Sleep(10 * time.Millisecond); return "db", nil },
		func(context.Context) (string, error) { return "", boom },
		func(context.Context) (string, error) { return "redis", nil },
	)

	require.Len(t, results, 3)
	assert.Equal(t, "db", results[0].Value)
	assert.True(t, results[0].OK())
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, "redis", results[2].Value)
}

func TestTimedStopsWaiting(t *testing.T) {
	slow := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return 1, nil
	}
	results := AllSettled(context.Background(), Timed(10*time.Millisecond, slow))
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)

	v, err := WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
