package scraper

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jssprz/pricewatcher/internal/catalog"
	"jssprz/pricewatcher/internal/storage"
	"jssprz/pricewatcher/pkg/errors"
	"jssprz/pricewatcher/services/publisher"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, renderer *fakeRenderer, repo storage.Repository, pub publisher.Publisher) *Service {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.UpsertStore(ctx, catalog.Store{ID: "store-1", Name: "Example", BaseURL: "https://example.cl"}))
	require.NoError(t, repo.UpsertVariant(ctx, catalog.Variant{ID: "variant-1"}))

	svc := NewService(New(renderer, nil, "CLP"), repo, pub)
	svc.now = func() time.Time { return fixedNow }
	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("obs-%d", ids)
	}
	return svc
}

func TestScrapeAndInsertExternalPrice_EndToEnd(t *testing.T) {
	repo := storage.NewMemory()
	pub := &publisher.MemoryPublisher{}
	svc := newTestService(t, &fakeRenderer{html: templatePage}, repo, pub)

	result, err := svc.ScrapeAndInsertExternalPrice(context.Background(), "variant-1", "https://example.cl/product/42")
	require.NoError(t, err)
	assert.Equal(t, "19990", result.Price.String())
	assert.Equal(t, "CLP", result.Currency)
	assert.Equal(t, "template:generic-price", result.Method)

	rows := repo.Observations()
	require.Len(t, rows, 1)
	assert.Equal(t, "obs-1", rows[0].ID)
	assert.Equal(t, "variant-1", rows[0].VariantID)
	assert.Equal(t, "store-1", rows[0].StoreID)
	assert.Equal(t, "/product/42", rows[0].URLPathInStore)
	assert.Equal(t, "19990", rows[0].ObservedPrice.String())
	assert.Equal(t, "CLP", rows[0].Currency)
	assert.Equal(t, fixedNow, rows[0].ObservedAt)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "obs-1", events[0].ID)
	assert.Equal(t, "example.cl", events[0].StoreHostname)
	assert.Equal(t, "template:generic-price", events[0].Method)
}

func TestScrapeAndInsertExternalPrice_KeepsQueryInPath(t *testing.T) {
	repo := storage.NewMemory()
	svc := newTestService(t, &fakeRenderer{html: jsonLDPage}, repo, nil)

	_, err := svc.ScrapeAndInsertExternalPrice(context.Background(), "variant-1", "https://EXAMPLE.cl/producto/catan?variant=7")
	require.NoError(t, err)

	rows := repo.Observations()
	require.Len(t, rows, 1)
	assert.Equal(t, "/producto/catan?variant=7", rows[0].URLPathInStore)
	assert.Equal(t, "47990", rows[0].ObservedPrice.String())
}

func TestScrapeAndInsertExternalPrice_SentinelOnMiss(t *testing.T) {
	repo := storage.NewMemory()
	pub := &publisher.MemoryPublisher{}
	svc := newTestService(t, &fakeRenderer{html: emptyPage}, repo, pub)

	result, err := svc.ScrapeAndInsertExternalPrice(context.Background(), "variant-1", "https://example.cl/product/42")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	require.NotNil(t, result)
	assert.Equal(t, MethodNotFound, result.Method)

	rows := repo.Observations()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Failed())
	assert.Equal(t, "-1", rows[0].ObservedPrice.String())
	assert.Equal(t, "CLP", rows[0].Currency)
	assert.Equal(t, "/product/42", rows[0].URLPathInStore)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].Failed)
}

func TestScrapeAndInsertExternalPrice_SentinelUsesStoreCurrency(t *testing.T) {
	repo := storage.NewMemory()
	require.NoError(t, repo.UpsertStore(context.Background(), catalog.Store{ID: "store-2", BaseURL: "https://shop.example.com", Currency: "USD"}))
	svc := newTestService(t, &fakeRenderer{html: emptyPage}, repo, nil)

	_, err := svc.ScrapeAndInsertExternalPrice(context.Background(), "variant-1", "https://shop.example.com/item/1")
	require.Error(t, err)

	rows := repo.Observations()
	require.Len(t, rows, 1)
	assert.Equal(t, "store-2", rows[0].StoreID)
	assert.Equal(t, "USD", rows[0].Currency)
}

func TestScrapeAndInsertExternalPrice_UnknownStore(t *testing.T) {
	repo := storage.NewMemory()
	renderer := &fakeRenderer{html: templatePage}
	svc := newTestService(t, renderer, repo, nil)

	for _, url := range []string{"https://unknown.cl/product/42", "https://notexample.cl/product/42", "https://www.example.cl/product/42"} {
		_, err := svc.ScrapeAndInsertExternalPrice(context.Background(), "variant-1", url)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration), url)
	}

	assert.Empty(t, repo.Observations())
	assert.Equal(t, 0, renderer.Calls())
}

func TestScrapeAndInsertExternalPrice_Validation(t *testing.T) {
	repo := storage.NewMemory()
	renderer := &fakeRenderer{html: templatePage}
	svc := newTestService(t, renderer, repo, nil)

	testCases := []struct {
		name      string
		variantID string
		url       string
	}{
		{name: "missing variant", variantID: "", url: "https://example.cl/product/42"},
		{name: "missing url", variantID: "variant-1", url: "   "},
		{name: "relative url", variantID: "variant-1", url: "/product/42"},
		{name: "unknown variant", variantID: "variant-404", url: "https://example.cl/product/42"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ScrapeAndInsertExternalPrice(context.Background(), tc.variantID, tc.url)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}

	assert.Empty(t, repo.Observations())
	assert.Equal(t, 0, renderer.Calls())
}

func TestScrapeAndInsertExternalPrice_NavigationFailureWritesNothing(t *testing.T) {
	repo := storage.NewMemory()
	renderer := &fakeRenderer{err: errors.NewNavigation("example.cl", "navigation timed out", context.DeadlineExceeded)}
	svc := newTestService(t, renderer, repo, nil)

	result, err := svc.ScrapeAndInsertExternalPrice(context.Background(), "variant-1", "https://example.cl/product/42")
	assert.Nil(t, result)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNavigation))
	assert.Empty(t, repo.Observations())
	assert.Equal(t, 1, renderer.Calls())
}

func TestScrapeAndInsertExternalPrice_PublishFailureIsNotFatal(t *testing.T) {
	repo := storage.NewMemory()
	pub := &publisher.MemoryPublisher{Err: stderrors.New("redis down")}
	svc := newTestService(t, &fakeRenderer{html: templatePage}, repo, pub)

	_, err := svc.ScrapeAndInsertExternalPrice(context.Background(), "variant-1", "https://example.cl/product/42")
	require.NoError(t, err)
	assert.Len(t, repo.Observations(), 1)
}

// failingRepo rejects every insert
type failingRepo struct {
	*storage.Memory
}

func (failingRepo) InsertObservation(context.Context, catalog.Observation) error {
	return stderrors.New("disk full")
}

func TestScrapeAndInsertExternalPrice_SentinelInsertFailure(t *testing.T) {
	repo := failingRepo{storage.NewMemory()}
	svc := newTestService(t, &fakeRenderer{html: emptyPage}, repo, nil)

	_, err := svc.ScrapeAndInsertExternalPrice(context.Background(), "variant-1", "https://example.cl/product/42")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
	assert.Contains(t, err.Error(), "disk full")
}

func TestScrapeAndInsertExternalPrice_AppendsOnEveryCall(t *testing.T) {
	repo := storage.NewMemory()
	svc := newTestService(t, &fakeRenderer{html: templatePage}, repo, nil)

	for i := 0; i < 3; i++ {
		_, err := svc.ScrapeAndInsertExternalPrice(context.Background(), "variant-1", "https://example.cl/product/42")
		require.NoError(t, err)
	}

	rows := repo.Observations()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"obs-1", "obs-2", "obs-3"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
}
