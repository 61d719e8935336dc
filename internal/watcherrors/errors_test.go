package watcherrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"transient", NewTransient("magiceden", "502", nil), CategoryTransient},
		{"rate limited", NewRateLimited("magiceden", time.Second), CategoryTransient},
		{"permanent", NewPermanent("opensea", "401", nil), CategoryPermanent},
		{"persistence", NewPersistence("flush", errors.New("conn refused")), CategoryPersistence},
		{"partial data", NewPartialData("opensea", "missing tokenId", nil), CategoryPartialData},
		{"plain error defaults to transient", errors.New("boom"), CategoryTransient},
		{"wrapped watch error", fmt.Errorf("cycle failed: %w", NewPermanent("opensea", "401", nil)), CategoryPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.err))
		})
	}
}

func TestIsTransientAndIsPermanent(t *testing.T) {
	assert.True(t, IsTransient(NewTransient("magiceden", "503", nil)))
	assert.False(t, IsTransient(NewPermanent("magiceden", "401", nil)))
	assert.False(t, IsTransient(nil))

	assert.True(t, IsPermanent(NewPermanent("magiceden", "401", nil)))
	assert.False(t, IsPermanent(NewTransient("magiceden", "503", nil)))
	assert.False(t, IsPermanent(nil))
}

func TestErrorMessage(t *testing.T) {
	err := NewTransient("magiceden", "upstream 502", nil)
	assert.Equal(t, "transient: upstream 502", err.Error())

	withCause := NewPermanent("opensea", "request rejected", errors.New("401 unauthorized"))
	assert.Equal(t, "permanent: request rejected: 401 unauthorized", withCause.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewPersistence("flush", cause)
	assert.ErrorIs(t, err, cause)
}

func TestRetryAfterHint(t *testing.T) {
	hint, ok := RetryAfterHint(NewRateLimited("magiceden", 30*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, hint)

	_, ok = RetryAfterHint(NewRateLimited("magiceden", 0))
	assert.False(t, ok)

	_, ok = RetryAfterHint(NewTransient("magiceden", "503", nil))
	assert.False(t, ok)

	hint, ok = RetryAfterHint(fmt.Errorf("attempt 1: %w", NewRateLimited("magiceden", time.Minute)))
	assert.True(t, ok)
	assert.Equal(t, time.Minute, hint)
}
