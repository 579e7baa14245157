package ptrx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeKeepsZeroAsNil(t *testing.T) {
	assert.Nil(t, Time(time.Time{}))

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := Time(now)
	if assert.NotNil(t, p) {
		assert.True(t, now.Equal(*p))
	}
}

func TestValueOr(t *testing.T) {
	assert.Equal(t, "fallback", ValueOr[string](nil, "fallback"))
	assert.Equal(t, "set", ValueOr(String("set"), "fallback"))
	assert.False(t, Value[bool](nil))
	assert.True(t, Value(Bool(true)))
	assert.Equal(t, 3, *To(3))
}
