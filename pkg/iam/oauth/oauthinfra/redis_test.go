package oauthinfra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func sampleOuter() *oauth.OuterInfo {
	return &oauth.OuterInfo{
		TenantID:            "proj-1",
		ProviderID:          "google",
		RedirectURI:         "https://app.example.com/handler",
		State:               "outer-state",
		GrantType:           oauth.GrantAuthorizationCode,
		ResponseType:        oauth.ResponseTypeCode,
		CodeChallenge:       "challenge",
		CodeChallengeMethod: oauth.ChallengeS256,
		InnerCodeVerifier:   "verifier",
		Type:                oauth.FlowAuthenticate,
		ExpiresAt:           time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second),
	}
}

func TestOuterInfoSaveAndTake(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	outer := store.OuterInfos()

	require.NoError(t, outer.Save(ctx, "inner-1", sampleOuter(), 10*time.Minute))
	assert.Equal(t, 10*time.Minute, mr.TTL("oauth:outer:inner-1"))

	got, err := outer.Take(ctx, "inner-1")
	require.NoError(t, err)
	assert.Equal(t, sampleOuter(), got)
	assert.False(t, mr.Exists("oauth:outer:inner-1"))

	_, err = outer.Take(ctx, "inner-1")
	assert.True(t, errx.HasCode(err, oauth.CodeStateNotFound))
}

func TestOuterInfoExpiresWithTTL(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	outer := store.OuterInfos()

	require.NoError(t, outer.Save(ctx, "inner-1", sampleOuter(), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := outer.Take(ctx, "inner-1")
	assert.True(t, errx.HasCode(err, oauth.CodeStateNotFound))
}

func TestOuterInfoConcurrentTake(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	outer := store.OuterInfos()
	require.NoError(t, outer.Save(ctx, "inner-1", sampleOuter(), time.Minute))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := outer.Take(ctx, "inner-1"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSaveWithoutTTLIsAssertion(t *testing.T) {
	store, _ := newStore(t)
	err := store.OuterInfos().Save(context.Background(), "inner-1", sampleOuter(), 0)
	assert.True(t, errx.IsAssertion(err))
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	codes := store.Codes()

	code := &oauth.AuthorizationCode{
		Code:        "svc-code",
		TenantID:    "proj-1",
		UserID:      "u-1",
		RedirectURI: "https://app.example.com/handler",
		NewUser:     true,
		ExpiresAt:   time.Now().Add(time.Minute).UTC().Truncate(time.Second),
	}
	require.NoError(t, codes.Save(ctx, code, time.Minute))

	got, err := codes.Take(ctx, "svc-code")
	require.NoError(t, err)
	assert.Equal(t, code, got)

	_, err = codes.Take(ctx, "svc-code")
	assert.True(t, errx.HasCode(err, oauth.CodeInvalidGrant))
}
