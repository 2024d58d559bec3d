package render

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"
	"time"

	"jssprz/pricewatcher/helpers"
	"jssprz/pricewatcher/internal/catalog"
	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/pkg/errors"
	"jssprz/pricewatcher/services/cache"
)

const throttleKeyPrefix = "render_throttle:"

// HostThrottle enforces a minimum delay between requests to the same hostname.
// Slots are reserved in process; when a shared cache is set, a marker per host
// keeps other worker processes from hitting the host inside the same window.
type HostThrottle struct {
	delay time.Duration
	cache cache.CacheService

	mu   sync.Mutex
	next map[string]time.Time
	now  func() time.Time
}

// NewHostThrottle creates a throttle. shared may be nil.
func NewHostThrottle(delay time.Duration, shared cache.CacheService) *HostThrottle {
	return &HostThrottle{
		delay: delay,
		cache: shared,
		next:  make(map[string]time.Time),
		now:   time.Now,
	}
}

// Wait blocks until a request to hostname is allowed or ctx is done
func (t *HostThrottle) Wait(ctx context.Context, hostname string) error {
	if t.delay <= 0 {
		return ctx.Err()
	}
	hostname = catalog.NormalizeHostname(hostname)

	if err := helpers.Sleep(ctx, t.reserve(hostname)); err != nil {
		return err
	}
	if t.cache == nil {
		return nil
	}

	err := t.waitShared(ctx, hostname)
	if errors.IsType(err, errors.ErrorTypeCache) {
		// An unreachable cache must not stop scraping
		logger.ForCache().Warn().Err(err).Str("hostname", hostname).Msg("Shared throttle unavailable")
		return nil
	}
	return err
}

// Penalize pushes the next allowed request to hostname at least d into the future
func (t *HostThrottle) Penalize(hostname string, d time.Duration) {
	if d <= 0 {
		return
	}
	hostname = catalog.NormalizeHostname(hostname)

	t.mu.Lock()
	defer t.mu.Unlock()
	if until := t.now().Add(d); until.After(t.next[hostname]) {
		t.next[hostname] = until
	}
}

// reserve claims the next slot for hostname and returns how long to wait for it
func (t *HostThrottle) reserve(hostname string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	slot := t.next[hostname]
	if slot.Before(now) {
		slot = now
	}
	t.next[hostname] = slot.Add(t.delay)
	return slot.Sub(now)
}

func (t *HostThrottle) waitShared(ctx context.Context, hostname string) error {
	key := throttleKeyPrefix + hostname
	poll := min(t.delay, time.Second)

	for {
		_, err := t.cache.Get(key)
		if stderrors.Is(err, cache.ErrMiss) {
			break
		}
		if err != nil {
			return errors.NewCache(hostname, "throttle marker lookup failed", err)
		}
		if err := helpers.Sleep(ctx, poll); err != nil {
			return err
		}
	}

	stamp := []byte(strconv.FormatInt(t.now().UnixMilli(), 10))
	if err := t.cache.Set(key, stamp, t.delay); err != nil {
		return errors.NewCache(hostname, "throttle marker store failed", err)
	}
	return nil
}

// Throttled wraps next so that every Render waits for its host's slot
func Throttled(next Renderer, throttle *HostThrottle) Renderer {
	return RendererFunc(func(ctx context.Context, url string) (*Page, error) {
		hostname, err := catalog.HostnameOf(url)
		if err != nil {
			return nil, errors.NewValidation(url, "invalid url: "+err.Error())
		}
		if err := throttle.Wait(ctx, hostname); err != nil {
			return nil, errors.NewNavigation(hostname, "cancelled waiting for host slot", err)
		}

		page, err := next.Render(ctx, url)
		if errors.IsType(err, errors.ErrorTypeRateLimit) {
			backoff := max(RetryAfter(err), 10*throttle.delay)
			throttle.Penalize(hostname, backoff)
			logger.ForScraper(hostname).Warn().Dur("backoff", backoff).Msg("Storefront rate limited us, backing off")
		}
		return page, err
	})
}
