package verificationinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/ptrx"
	"github.com/redis/go-redis/v9"
)

// expiredRetention keeps expired codes around long enough to report them as
// expired instead of not found.
const expiredRetention = 24 * time.Hour

// claimScript sets used_at only on an existing, unused and unexpired code.
// ARGV[2] is the claim time in unix microseconds.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local expires = redis.call('HGET', KEYS[1], 'expires_us')
if not expires or tonumber(ARGV[2]) >= tonumber(expires) then
	return 0
end
return redis.call('HSETNX', KEYS[1], 'used_at', ARGV[1])
`)

// RedisCodeRepository keeps each code in a hash at <prefix>:<tenant>:<id>.
type RedisCodeRepository struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisCodeRepository(rdb redis.UniversalClient) *RedisCodeRepository {
	return &RedisCodeRepository{rdb: rdb, prefix: "verification", now: time.Now}
}

func (r *RedisCodeRepository) key(tenantID kernel.TenantID, id string) string {
	return r.prefix + ":" + tenantID.String() + ":" + id
}

func (r *RedisCodeRepository) Create(ctx context.Context, code *verification.Code) error {
	key := r.key(code.TenantID, code.ID)
	fields := map[string]any{
		"type":       string(code.Type),
		"data":       string(code.Data),
		"method":     string(code.Method),
		"created_at": code.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at": code.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"expires_us": code.ExpiresAt.UnixMicro(),
	}
	if code.UsedAt != nil {
		fields["used_at"] = code.UsedAt.UTC().Format(time.RFC3339Nano)
	}

	ttl := code.ExpiresAt.Sub(r.now()) + expiredRetention
	if ttl <= 0 {
		ttl = time.Second
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return errx.Wrap(err, "store verification code", errx.TypeInternal)
	}
	return nil
}

func (r *RedisCodeRepository) FindByID(ctx context.Context, tenantID kernel.TenantID, id string) (*verification.Code, error) {
	vals, err := r.rdb.HGetAll(ctx, r.key(tenantID, id)).Result()
	if err != nil {
		return nil, errx.Wrap(err, "load verification code", errx.TypeInternal)
	}
	if len(vals) == 0 {
		return nil, verification.ErrCodeNotFound()
	}

	code := &verification.Code{
		ID:       id,
		TenantID: tenantID,
		Type:     verification.Type(vals["type"]),
		Data:     json.RawMessage(vals["data"]),
		Method:   json.RawMessage(vals["method"]),
	}
	if code.CreatedAt, err = time.Parse(time.RFC3339Nano, vals["created_at"]); err != nil {
		return nil, errx.Assertionf(err, "verification code without created_at")
	}
	if code.ExpiresAt, err = time.Parse(time.RFC3339Nano, vals["expires_at"]); err != nil {
		return nil, errx.Assertionf(err, "verification code without expires_at")
	}
	if used, ok := vals["used_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, used)
		if err != nil {
			return nil, errx.Assertionf(err, "verification code with malformed used_at")
		}
		code.UsedAt = ptrx.Time(t)
	}
	return code, nil
}

func (r *RedisCodeRepository) Claim(ctx context.Context, tenantID kernel.TenantID, id string, at time.Time) (bool, error) {
	res, err := claimScript.Run(ctx, r.rdb, []string{r.key(tenantID, id)},
		at.UTC().Format(time.RFC3339Nano), at.UnixMicro()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, errx.Wrap(err, "claim verification code", errx.TypeInternal)
	}
	return res == 1, nil
}
