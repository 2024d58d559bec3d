package render

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jssprz/pricewatcher/pkg/errors"
	"jssprz/pricewatcher/services/cache"
)

func TestHostThrottle_SameHostWaits(t *testing.T) {
	throttle := NewHostThrottle(80*time.Millisecond, nil)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, throttle.Wait(ctx, "example.cl"))
	require.NoError(t, throttle.Wait(ctx, "EXAMPLE.cl"))
	require.NoError(t, throttle.Wait(ctx, "example.cl"))

	assert.GreaterOrEqual(t, time.Since(start), 160*time.Millisecond)
}

func TestHostThrottle_OtherHostsDoNotWait(t *testing.T) {
	throttle := NewHostThrottle(time.Second, nil)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, throttle.Wait(ctx, "a.example.cl"))
	require.NoError(t, throttle.Wait(ctx, "b.example.cl"))
	require.NoError(t, throttle.Wait(ctx, "c.example.cl"))

	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestHostThrottle_ContextCancelled(t *testing.T) {
	throttle := NewHostThrottle(time.Minute, nil)
	require.NoError(t, throttle.Wait(context.Background(), "example.cl"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := throttle.Wait(ctx, "example.cl")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHostThrottle_Disabled(t *testing.T) {
	throttle := NewHostThrottle(0, nil)
	for i := 0; i < 5; i++ {
		assert.NoError(t, throttle.Wait(context.Background(), "example.cl"))
	}
}

func TestHostThrottle_SharedMarker(t *testing.T) {
	shared := cache.NewMemoryCache()
	ctx := context.Background()

	// Another process rendered example.cl a moment ago
	require.NoError(t, shared.Set(throttleKeyPrefix+"example.cl", []byte("1"), 100*time.Millisecond))

	throttle := NewHostThrottle(50*time.Millisecond, shared)
	start := time.Now()
	require.NoError(t, throttle.Wait(ctx, "example.cl"))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// Our own marker is now set for the next process
	_, err := shared.Get(throttleKeyPrefix + "example.cl")
	assert.NoError(t, err)
}

type failingCache struct{}

var errCacheDown = stderrors.New("connection refused")

func (failingCache) Get(string) ([]byte, error) { return nil, errCacheDown }

func (failingCache) Set(string, []byte, time.Duration) error { return errCacheDown }

func (failingCache) Delete(string) error { return errCacheDown }

func TestHostThrottle_UnreachableCache(t *testing.T) {
	throttle := NewHostThrottle(10*time.Millisecond, failingCache{})

	err := throttle.waitShared(context.Background(), "example.cl")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCache))

	// Wait still lets the request through
	assert.NoError(t, throttle.Wait(context.Background(), "example.cl"))
}

func TestHostThrottle_Penalize(t *testing.T) {
	throttle := NewHostThrottle(time.Millisecond, nil)
	throttle.Penalize("example.cl", 100*time.Millisecond)

	start := time.Now()
	require.NoError(t, throttle.Wait(context.Background(), "example.cl"))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestThrottled(t *testing.T) {
	var calls int32
	inner := RendererFunc(func(ctx context.Context, url string) (*Page, error) {
		atomic.AddInt32(&calls, 1)
		return NewPage(url, "<html></html>")
	})

	renderer := Throttled(inner, NewHostThrottle(50*time.Millisecond, nil))

	start := time.Now()
	_, err := renderer.Render(context.Background(), "https://example.cl/a")
	require.NoError(t, err)
	_, err = renderer.Render(context.Background(), "https://example.cl/b")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = renderer.Render(context.Background(), "not a url")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestThrottled_BacksOffWhenRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	throttle := NewHostThrottle(time.Millisecond, nil)
	renderer := Throttled(NewHTTPRenderer(HTTPOptions{}), throttle)

	_, err := renderer.Render(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	assert.Contains(t, err.Error(), "rate limited for 2m0s")

	// The next slot for the host is pushed out by Retry-After
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = renderer.Render(ctx, server.URL)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNavigation))
}
