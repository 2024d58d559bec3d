package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"jssprz/pricewatcher/internal/catalog"
	"jssprz/pricewatcher/internal/scraper"
	"jssprz/pricewatcher/internal/storage"
	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/pkg/errors"
	"jssprz/pricewatcher/services/publisher"
)

// DefaultSchedule runs the refresh at 00:00 and 12:00
const DefaultSchedule = "0 0 */12 * * *"

// PriceUpdater observes one variant at one URL
type PriceUpdater interface {
	ScrapeAndInsertExternalPrice(ctx context.Context, variantID, url string) (*scraper.Result, error)
}

// Options configures a Refresher
type Options struct {
	// Schedule is a cron spec with a seconds field
	Schedule string
	// Concurrency is the number of targets scraped at once; 1 is sequential
	Concurrency int
}

// Summary counts the outcomes of one refresh run. Retryable is the subset of
// Failed that a later run may clear.
type Summary struct {
	Targets   int           `json:"targets"`
	Updated   int           `json:"updated"`
	NotFound  int           `json:"not_found"`
	Failed    int           `json:"failed"`
	Retryable int           `json:"retryable"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

type target struct {
	variantID string
	store     catalog.Store
	url       string
}

// Refresher re-scrapes every tracked (variant, store) pair
type Refresher struct {
	repo        storage.Repository
	updater     PriceUpdater
	publisher   publisher.Publisher
	schedule    string
	concurrency int
	log         *logger.Logger

	cron    *cron.Cron
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewRefresher creates a refresher. pub may be nil.
func NewRefresher(repo storage.Repository, updater PriceUpdater, pub publisher.Publisher, opts Options) *Refresher {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Refresher{
		repo:        repo,
		updater:     updater,
		publisher:   pub,
		schedule:    opts.Schedule,
		concurrency: opts.Concurrency,
		log:         logger.ForWorker(),
		cron:        cron.New(cron.WithSeconds()),
	}
}

// Start schedules the refresh and also runs it once immediately
func (r *Refresher) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.schedule, func() { r.trigger(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule refresh %q: %w", r.schedule, err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.trigger(ctx)
	}()

	r.cron.Start()
	r.log.Info().Str("schedule", r.schedule).Int("concurrency", r.concurrency).Msg("Price refresher scheduled")
	return nil
}

// Stop stops scheduling and waits for a running refresh to finish
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.wg.Wait()
}

// trigger runs a refresh unless one is already in progress
func (r *Refresher) trigger(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		r.log.Warn().Msg("Previous refresh still running, skipping this run")
		return
	}
	defer r.running.Store(false)
	r.RunOnce(ctx)
}

// RunOnce scrapes the latest tracked URL of every (variant, store) pair.
// Failures are counted and logged; the batch always continues.
func (r *Refresher) RunOnce(ctx context.Context) Summary {
	start := time.Now()
	var summary Summary

	targets, skipped, err := r.targets(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to load refresh targets")
		return summary
	}
	summary.Targets = len(targets)
	summary.Skipped = skipped

	if len(targets) == 0 {
		r.log.Info().Msg("No tracked prices to refresh")
		return summary
	}
	r.log.Info().Int("targets", len(targets)).Msg("Starting price refresh")

	var mu sync.Mutex
	jobs := make(chan target)
	var wg sync.WaitGroup
	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				outcome := r.refresh(ctx, t)
				mu.Lock()
				switch outcome {
				case outcomeUpdated:
					summary.Updated++
				case outcomeNotFound:
					summary.NotFound++
				case outcomeRetryable:
					summary.Failed++
					summary.Retryable++
				default:
					summary.Failed++
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for i, t := range targets {
		select {
		case <-ctx.Done():
			mu.Lock()
			summary.Skipped += len(targets) - i
			mu.Unlock()
			break dispatch
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()

	if r.publisher != nil {
		if err := r.publisher.TrimStreams(ctx); err != nil {
			r.log.Error().Err(err).Msg("Stream trimming failed")
		}
	}

	summary.Duration = time.Since(start)
	r.log.Info().
		Int("targets", summary.Targets).
		Int("updated", summary.Updated).
		Int("not_found", summary.NotFound).
		Int("failed", summary.Failed).
		Int("retryable", summary.Retryable).
		Int("skipped", summary.Skipped).
		Dur("elapsed", summary.Duration).
		Msg("Price refresh complete")
	return summary
}

type outcome int

const (
	outcomeUpdated outcome = iota
	outcomeNotFound
	outcomeFailed
	outcomeRetryable
)

func (r *Refresher) refresh(ctx context.Context, t target) outcome {
	log := logger.ForScraper(t.store.Hostname)

	result, err := r.updater.ScrapeAndInsertExternalPrice(ctx, t.variantID, t.url)
	switch {
	case err == nil:
		event := log.Info().Str("store", t.store.Name).Str("variant_id", t.variantID)
		if result.Found() {
			event = event.Str("price", result.Price.String()).Str("method", result.Method)
		}
		event.Msg("Price refreshed")
		return outcomeUpdated
	case errors.IsType(err, errors.ErrorTypeNotFound) && !errors.IsType(err, errors.ErrorTypeStorage):
		log.Warn().Str("url", t.url).Msg("Price not found")
		return outcomeNotFound
	default:
		retryable := errors.IsRetryable(err)
		log.Error().Err(err).Str("url", t.url).Bool("retryable", retryable).Msg("Error scraping")
		if retryable {
			return outcomeRetryable
		}
		return outcomeFailed
	}
}

// targets rebuilds full URLs from each pair's latest observation
func (r *Refresher) targets(ctx context.Context) ([]target, int, error) {
	latest, err := r.repo.LatestObservations(ctx)
	if err != nil {
		return nil, 0, err
	}
	stores, err := r.repo.ListStores(ctx)
	if err != nil {
		return nil, 0, err
	}

	byID := make(map[string]catalog.Store, len(stores))
	for _, s := range stores {
		byID[s.ID] = s
	}

	var out []target
	skipped := 0
	for _, obs := range latest {
		store, ok := byID[obs.StoreID]
		if !ok {
			r.log.Warn().Str("store_id", obs.StoreID).Str("variant_id", obs.VariantID).Msg("Observation references unknown store, skipping")
			skipped++
			continue
		}
		out = append(out, target{
			variantID: obs.VariantID,
			store:     store,
			url:       catalog.JoinStoreURL(store.BaseURL, obs.URLPathInStore),
		})
	}
	return out, skipped, nil
}
