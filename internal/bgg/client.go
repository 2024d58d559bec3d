// Package bgg is a client for the BoardGameGeek XML API2. Every Client owns
// its response cache, request pacing and queued-response retry state.
package bgg

import (
	"bytes"
	"context"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/html/charset"

	"jssprz/pricewatcher/helpers"
	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/services/cache"
)

const (
	// DefaultBaseURL is the public XML API v2 endpoint
	DefaultBaseURL = "https://boardgamegeek.com/xmlapi2"
	// DefaultCacheTTL is how long decoded responses are reused
	DefaultCacheTTL = 60 * time.Second
	// DefaultRateLimit is the minimum gap between two upstream requests
	DefaultRateLimit = 1100 * time.Millisecond
	// DefaultMaxRetries202 bounds how often a queued (202 Accepted) request is retried
	DefaultMaxRetries202 = 10
	// DefaultRetryDelay is the minimum pause before retrying a queued request
	DefaultRetryDelay = 2 * time.Second
)

// ErrQueued is returned when BGG keeps answering 202 Accepted past the retry budget
var ErrQueued = stderrors.New("bgg request still queued")

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	BaseURL       string
	HTTPClient    *http.Client
	Cache         cache.CacheService
	CacheTTL      time.Duration
	RateLimit     time.Duration
	MaxRetries202 int
	// RetryDelay is the minimum wait between 202 retries
	RetryDelay time.Duration
	UserAgent  string
}

// Client talks to the XML API2
type Client struct {
	opts Options
	log  *logger.Logger

	mu   sync.Mutex
	next time.Time
}

// NewClient creates a client with its own cache and pacing state
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.MaxRetries202 <= 0 {
		opts.MaxRetries202 = DefaultMaxRetries202
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Client{opts: opts, log: logger.ForBGG()}
}

// Thing fetches board games by id, optionally with rating statistics
func (c *Client) Thing(ctx context.Context, ids []string, stats bool) ([]Thing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("id", strings.Join(ids, ","))
	if stats {
		params.Set("stats", "1")
	}

	var doc xmlThings
	if err := c.getXML(ctx, "thing", params, &doc); err != nil {
		return nil, err
	}

	things := make([]Thing, 0, len(doc.Items))
	for _, item := range doc.Items {
		things = append(things, item.toThing())
	}
	return things, nil
}

// Search looks up board games and expansions by name
func (c *Client) Search(ctx context.Context, query string, exact bool) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("type", "boardgame,boardgameexpansion")
	if exact {
		params.Set("exact", "1")
	}

	var doc xmlThings
	if err := c.getXML(ctx, "search", params, &doc); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(doc.Items))
	for _, item := range doc.Items {
		results = append(results, SearchResult{
			ID:            item.ID,
			Type:          item.Type,
			Name:          item.primaryName(),
			YearPublished: atoi(item.YearPublished.Value),
		})
	}
	return results, nil
}

// Hot returns the hotness list for a type, "boardgame" when empty
func (c *Client) Hot(ctx context.Context, kind string) ([]HotItem, error) {
	if kind == "" {
		kind = "boardgame"
	}
	params := url.Values{}
	params.Set("type", kind)

	var doc xmlHot
	if err := c.getXML(ctx, "hot", params, &doc); err != nil {
		return nil, err
	}

	items := make([]HotItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, HotItem{
			ID:            item.ID,
			Rank:          atoi(item.Rank),
			Name:          item.Name.Value,
			YearPublished: atoi(item.YearPublished.Value),
			Thumbnail:     item.Thumbnail.Value,
		})
	}
	return items, nil
}

// Collection returns a user's public collection, filtered to owned or wishlisted items when asked
func (c *Client) Collection(ctx context.Context, username string, own, wishlist bool) ([]CollectionItem, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("bgg collection: username is required")
	}
	params := url.Values{}
	params.Set("username", username)
	params.Set("stats", "0")
	if own {
		params.Set("own", "1")
	}
	if wishlist {
		params.Set("wishlist", "1")
	}

	var doc xmlCollection
	if err := c.getXML(ctx, "collection", params, &doc); err != nil {
		return nil, err
	}

	items := make([]CollectionItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, CollectionItem{
			ID:            item.ObjectID,
			Name:          strings.TrimSpace(item.Name),
			YearPublished: atoi(item.YearPublished),
			Image:         strings.TrimSpace(item.Image),
			Thumbnail:     strings.TrimSpace(item.Thumbnail),
			Status: CollectionStatus{
				Own:        flag(item.Status.Own),
				PrevOwned:  flag(item.Status.PrevOwned),
				ForTrade:   flag(item.Status.ForTrade),
				Want:       flag(item.Status.Want),
				WantToPlay: flag(item.Status.WantToPlay),
				WantToBuy:  flag(item.Status.WantToBuy),
				Wishlist:   flag(item.Status.Wishlist),
				Preordered: flag(item.Status.Preordered),
			},
		})
	}
	return items, nil
}

func (c *Client) getXML(ctx context.Context, path string, params url.Values, v any) error {
	body, err := c.get(ctx, c.opts.BaseURL+"/"+path+"?"+params.Encode())
	if err != nil {
		return err
	}
	return decodeXML(body, v)
}

// decodeXML honours the encoding declared in the XML prolog
func decodeXML(body []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode bgg response: %w", err)
	}
	return nil
}

func cacheKey(rawURL string) string {
	return fmt.Sprintf("bgg:%016x", xxhash.Sum64String(rawURL))
}

// get returns the body for rawURL from cache, or fetches it respecting the
// request pacing and retrying while BGG answers 202 Accepted.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	key := cacheKey(rawURL)
	if body, err := c.opts.Cache.Get(key); err == nil {
		c.log.Debug().Str("url", rawURL).Msg("BGG cache hit")
		return body, nil
	}

	for attempt := 0; ; attempt++ {
		if err := c.pace(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.do(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if status == http.StatusAccepted {
			if attempt >= c.opts.MaxRetries202 {
				return nil, fmt.Errorf("%w after %d retries: %s", ErrQueued, attempt, rawURL)
			}
			c.log.Debug().Str("url", rawURL).Int("attempt", attempt+1).Msg("BGG request queued, retrying")
			if err := helpers.Sleep(ctx, max(c.opts.RateLimit, c.opts.RetryDelay)); err != nil {
				return nil, err
			}
			continue
		}

		if err := c.opts.Cache.Set(key, body, c.opts.CacheTTL); err != nil {
			c.log.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache BGG response")
		}
		return body, nil
	}
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted:
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	default:
		return nil, resp.StatusCode, &helpers.StatusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// pace reserves the next request slot and waits for it
func (c *Client) pace(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	slot := now
	if c.next.After(now) {
		slot = c.next
	}
	c.next = slot.Add(c.opts.RateLimit)
	c.mu.Unlock()

	return helpers.Sleep(ctx, time.Until(slot))
}

func (t xmlThing) primaryName() string {
	for _, n := range t.Names {
		if n.Type == "primary" {
			return n.Value
		}
	}
	if len(t.Names) > 0 {
		return t.Names[0].Value
	}
	return ""
}

func (t xmlThing) toThing() Thing {
	thing := Thing{
		ID:            t.ID,
		Type:          t.Type,
		Name:          t.primaryName(),
		YearPublished: atoi(t.YearPublished.Value),
		MinPlayers:    atoi(t.MinPlayers.Value),
		MaxPlayers:    atoi(t.MaxPlayers.Value),
		MinPlayTime:   atoi(t.MinPlayTime.Value),
		MaxPlayTime:   atoi(t.MaxPlayTime.Value),
		PlayingTime:   atoi(t.PlayingTime.Value),
		Image:         strings.TrimSpace(t.Image),
		Thumbnail:     strings.TrimSpace(t.Thumbnail),
		Description:   strings.TrimSpace(t.Description),
	}

	for _, link := range t.Links {
		switch link.Type {
		case "boardgamecategory":
			thing.Categories = append(thing.Categories, link.Value)
		case "boardgamemechanic":
			thing.Mechanics = append(thing.Mechanics, link.Value)
		case "boardgamedesigner":
			thing.Designers = append(thing.Designers, link.Value)
		case "boardgamepublisher":
			thing.Publishers = append(thing.Publishers, link.Value)
		}
	}

	if r := t.Ratings; r != nil {
		stats := &Stats{
			UsersRated:   atoi(r.UsersRated.Value),
			Average:      atof(r.Average.Value),
			BayesAverage: atof(r.BayesAverage.Value),
		}
		for _, rank := range r.Ranks {
			value, err := strconv.Atoi(rank.Value)
			stats.Ranks = append(stats.Ranks, Rank{
				ID:     rank.ID,
				Name:   rank.Name,
				Value:  value,
				Ranked: err == nil,
			})
		}
		thing.Stats = stats
	}
	return thing
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func flag(s string) bool {
	return strings.TrimSpace(s) == "1"
}
