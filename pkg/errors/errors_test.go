package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScrapeError_Error(t *testing.T) {
	err := NewNavigation("example.cl", "page load failed", stderrors.New("timeout"))
	assert.Equal(t, "[navigation] example.cl: page load failed - timeout", err.Error())

	err = NewNotFound("example.cl", "price not found")
	assert.Equal(t, "[not_found] example.cl: price not found", err.Error())
}

func TestScrapeError_IsRetryable(t *testing.T) {
	assert.True(t, NewNavigation("h", "m", nil).IsRetryable())
	assert.True(t, NewStorage("h", "m", nil).IsRetryable())
	assert.False(t, NewValidation("h", "m").IsRetryable())
	assert.False(t, NewConfiguration("h", "m", nil).IsRetryable())
	assert.False(t, NewNotFound("h", "m").IsRetryable())
}

func TestIsType(t *testing.T) {
	inner := NewNotFound("example.cl", "price not found")
	wrapped := fmt.Errorf("refresh: %w", inner)

	assert.True(t, IsType(wrapped, ErrorTypeNotFound))
	assert.False(t, IsType(wrapped, ErrorTypeStorage))
	assert.Equal(t, ErrorTypeNotFound, TypeOf(wrapped))

	// A storage failure wrapping a not-found outcome carries both types
	both := NewStorage("example.cl", "failed to record sentinel", inner)
	assert.True(t, IsType(both, ErrorTypeStorage))
	assert.True(t, IsType(both, ErrorTypeNotFound))

	joined := stderrors.Join(inner, NewStorage("example.cl", "insert failed", stderrors.New("conn reset")))
	assert.True(t, IsType(joined, ErrorTypeNotFound))
	assert.True(t, IsType(joined, ErrorTypeStorage))
	assert.False(t, IsType(joined, ErrorTypeNavigation))

	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeValidation))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("refresh: %w", NewNavigation("h", "m", nil))))
	assert.False(t, IsRetryable(fmt.Errorf("refresh: %w", NewNotFound("h", "m"))))
	assert.False(t, IsRetryable(stderrors.New("plain")))

	// A not-found outcome whose sentinel write failed can still be retried
	joined := stderrors.Join(NewNotFound("h", "m"), NewStorage("h", "insert failed", nil))
	assert.True(t, IsRetryable(joined))
	assert.False(t, IsRetryable(nil))
}

func TestNewRateLimit(t *testing.T) {
	cause := stderrors.New("429")
	err := NewRateLimit("example.cl", 30*time.Second, cause)
	assert.Equal(t, ErrorTypeRateLimit, err.Type)
	assert.Equal(t, "[rate_limit] example.cl: rate limited for 30s - 429", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "[rate_limit] example.cl: rate limited", NewRateLimit("example.cl", 0, nil).Error())
}

func TestNewCache(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewCache("example.cl", "throttle marker lookup failed", cause)
	assert.True(t, IsType(err, ErrorTypeCache))
	assert.False(t, err.IsRetryable())
	assert.ErrorIs(t, err, cause)
}
