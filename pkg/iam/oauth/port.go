package oauth

import (
	"context"
	"time"
)

// OuterInfoStore parks outer requests under their inner state.
type OuterInfoStore interface {
	Save(ctx context.Context, innerState string, info *OuterInfo, ttl time.Duration) error
	// Take returns and deletes the record in one atomic step, so a replayed
	// callback finds nothing. It returns ErrStateNotFound when absent.
	Take(ctx context.Context, innerState string) (*OuterInfo, error)
}

// AuthorizationCodeStore keeps issued codes until they are exchanged.
type AuthorizationCodeStore interface {
	Save(ctx context.Context, code *AuthorizationCode, ttl time.Duration) error
	// Take is single-use like OuterInfoStore.Take and returns ErrInvalidGrant
	// when the code is absent.
	Take(ctx context.Context, code string) (*AuthorizationCode, error)
}
