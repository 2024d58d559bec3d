package scraper

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"jssprz/pricewatcher/internal/catalog"
	"jssprz/pricewatcher/internal/storage"
	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/pkg/errors"
	"jssprz/pricewatcher/services/publisher"
)

// Service scrapes a variant's storefront URL and appends the observation
type Service struct {
	scraper   *Scraper
	repo      storage.Repository
	publisher publisher.Publisher

	now   func() time.Time
	newID func() string
}

// NewService creates a Service. pub may be nil.
func NewService(s *Scraper, repo storage.Repository, pub publisher.Publisher) *Service {
	return &Service{
		scraper:   s,
		repo:      repo,
		publisher: pub,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// ScrapeAndInsertExternalPrice resolves the store owning rawURL, scrapes it
// and appends exactly one observation. When no price is found a sentinel row
// is written first and a not_found error is returned with the result.
// Validation and store resolution fail before any page is loaded.
func (s *Service) ScrapeAndInsertExternalPrice(ctx context.Context, variantID, rawURL string) (*Result, error) {
	variantID = strings.TrimSpace(variantID)
	rawURL = strings.TrimSpace(rawURL)
	if variantID == "" || rawURL == "" {
		return nil, errors.NewValidation("", "variantId and url are required")
	}

	u, err := catalog.ParseURL(rawURL)
	if err != nil {
		return nil, errors.NewValidation(rawURL, "invalid url: "+err.Error())
	}
	hostname := catalog.NormalizeHostname(u.Hostname())
	log := logger.ForScraper(hostname)

	exists, err := s.repo.VariantExists(ctx, variantID)
	if err != nil {
		return nil, errors.NewStorage(hostname, "failed to check variant", err)
	}
	if !exists {
		return nil, errors.NewValidation(hostname, "unknown variant "+variantID)
	}

	store, err := s.repo.FindStoreByHostname(ctx, hostname)
	if stderrors.Is(err, storage.ErrNotFound) {
		log.Error().Msg("Store not found for hostname. Create a Store entry first.")
		return nil, errors.NewConfiguration(hostname, "store not found for hostname "+hostname, nil)
	}
	if err != nil {
		return nil, errors.NewStorage(hostname, "failed to resolve store", err)
	}

	result, err := s.scraper.ScrapePrice(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	obs := catalog.Observation{
		ID:             s.newID(),
		VariantID:      variantID,
		StoreID:        store.ID,
		URLPathInStore: catalog.PathInStore(u),
		Currency:       firstNonEmpty(result.Currency, store.Currency, "CLP"),
		ObservedAt:     s.now(),
	}

	if !result.Found() {
		obs.ObservedPrice = catalog.FailedPrice
		notFound := errors.NewNotFound(hostname, "price not found")
		if err := s.repo.InsertObservation(ctx, obs); err != nil {
			return result, stderrors.Join(notFound, errors.NewStorage(hostname, "failed to record failed attempt", err))
		}
		log.Warn().Str("variant_id", variantID).Str("path", obs.URLPathInStore).
			Msg("Price not found, inserted price -1")
		s.publish(ctx, obs, store, result.Method)
		return result, notFound
	}

	obs.ObservedPrice = *result.Price
	if err := s.repo.InsertObservation(ctx, obs); err != nil {
		return result, errors.NewStorage(hostname, "failed to insert observation", err)
	}
	log.Info().Str("variant_id", variantID).Str("price", obs.ObservedPrice.String()).
		Str("currency", obs.Currency).Str("method", result.Method).Msg("Inserted observed price")

	s.publish(ctx, obs, store, result.Method)
	return result, nil
}

func (s *Service) publish(ctx context.Context, obs catalog.Observation, store catalog.Store, method string) {
	if s.publisher == nil {
		return
	}
	event := publisher.NewObservationEvent(obs, store, method)
	if err := publisher.PublishObservation(ctx, s.publisher, event); err != nil {
		logger.ForPublisher().Warn().Err(err).Str("observation_id", obs.ID).Msg("Failed to publish observation")
	}
}

// Repository exposes the repository for read paths that share the service
func (s *Service) Repository() storage.Repository {
	return s.repo
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
