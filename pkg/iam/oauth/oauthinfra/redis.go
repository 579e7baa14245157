package oauthinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth"
	"github.com/redis/go-redis/v9"
)

const (
	keyTypeOuter = "outer"
	keyTypeCode  = "code"
)

func redisKey(prefix, keyType, id string) string {
	return prefix + keyType + ":" + id
}

// RedisStore keeps relay records as JSON strings under "<prefix><type>:<id>".
// Reads go through GETDEL so every record is consumed at most once.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, keyPrefix: "oauth:"}
}

// OuterInfos is the OuterInfoStore view of the store.
func (s *RedisStore) OuterInfos() *OuterInfoStore { return &OuterInfoStore{s} }

// Codes is the AuthorizationCodeStore view of the store.
func (s *RedisStore) Codes() *CodeStore { return &CodeStore{s} }

func (s *RedisStore) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		return errx.Assertion("relay record stored without a ttl").WithDetail("key", key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errx.Wrap(err, "encode relay record", errx.TypeInternal)
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return errx.Wrap(err, "store relay record", errx.TypeInternal)
	}
	return nil
}

// take returns false when the key does not exist.
func (s *RedisStore) take(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.rdb.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errx.Wrap(err, "load relay record", errx.TypeInternal)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errx.Assertionf(err, "relay record is not valid JSON").WithDetail("key", key)
	}
	return true, nil
}

type OuterInfoStore struct{ s *RedisStore }

func (o *OuterInfoStore) Save(ctx context.Context, innerState string, info *oauth.OuterInfo, ttl time.Duration) error {
	return o.s.put(ctx, redisKey(o.s.keyPrefix, keyTypeOuter, innerState), info, ttl)
}

func (o *OuterInfoStore) Take(ctx context.Context, innerState string) (*oauth.OuterInfo, error) {
	var info oauth.OuterInfo
	ok, err := o.s.take(ctx, redisKey(o.s.keyPrefix, keyTypeOuter, innerState), &info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, oauth.ErrStateNotFound()
	}
	return &info, nil
}

type CodeStore struct{ s *RedisStore }

func (c *CodeStore) Save(ctx context.Context, code *oauth.AuthorizationCode, ttl time.Duration) error {
	return c.s.put(ctx, redisKey(c.s.keyPrefix, keyTypeCode, code.Code), code, ttl)
}

func (c *CodeStore) Take(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	var ac oauth.AuthorizationCode
	ok, err := c.s.take(ctx, redisKey(c.s.keyPrefix, keyTypeCode, code), &ac)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, oauth.ErrInvalidGrant()
	}
	return &ac, nil
}

var (
	_ oauth.OuterInfoStore         = (*OuterInfoStore)(nil)
	_ oauth.AuthorizationCodeStore = (*CodeStore)(nil)
)
