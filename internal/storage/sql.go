package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"jssprz/pricewatcher/internal/catalog"
	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/pkg/errors"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqliteTimeLayout is fixed width so that text ordering matches time ordering
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// SQLStore is a Repository on Postgres or SQLite
type SQLStore struct {
	db     *sql.DB
	driver string
	log    *logger.Logger
}

// OpenSQL opens and pings the database, then creates the schema if missing
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps in-memory databases shared and writes serialized
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db, driver: driver, log: logger.ForStorage()}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store.log.Info().Str("driver", driver).Msg("Connected to database")
	return store, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and indexes if they do not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	priceType, timeType := "NUMERIC(14,4)", "TIMESTAMPTZ"
	if s.driver == DriverSQLite {
		priceType, timeType = "TEXT", "TEXT"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS stores (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			base_url TEXT NOT NULL,
			hostname TEXT NOT NULL UNIQUE,
			currency VARCHAR(3) NOT NULL DEFAULT '',
			rating DOUBLE PRECISION,
			logo_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS product_variants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT ''
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS item_price_in_store (
			id TEXT PRIMARY KEY,
			variant_id TEXT NOT NULL REFERENCES product_variants(id),
			store_id TEXT NOT NULL REFERENCES stores(id),
			url_path_in_store TEXT NOT NULL,
			observed_price %s NOT NULL,
			currency VARCHAR(3) NOT NULL,
			observed_at %s NOT NULL
		)`, priceType, timeType),
		`CREATE INDEX IF NOT EXISTS idx_item_price_in_store_pair
			ON item_price_in_store (variant_id, store_id, observed_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites $N placeholders for SQLite. Queries use each placeholder
// once and in order.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverSQLite {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?")
}

func (s *SQLStore) timeArg(t time.Time) any {
	if s.driver == DriverSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func (s *SQLStore) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return errors.NewStorage(s.driver, op, err)
	}
	return nil
}

// UpsertStore inserts or updates a store
func (s *SQLStore) UpsertStore(ctx context.Context, store catalog.Store) error {
	store, err := catalog.WithHostname(store)
	if err != nil {
		return errors.NewValidation(s.driver, err.Error())
	}

	var rating sql.NullFloat64
	if store.Rating != nil {
		rating = sql.NullFloat64{Float64: *store.Rating, Valid: true}
	}

	return s.exec(ctx, "upsert store", `
		INSERT INTO stores (id, name, base_url, hostname, currency, rating, logo_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			base_url = excluded.base_url,
			hostname = excluded.hostname,
			currency = excluded.currency,
			rating = excluded.rating,
			logo_url = excluded.logo_url`,
		store.ID, store.Name, store.BaseURL, store.Hostname, store.Currency, rating, store.LogoURL)
}

// UpsertVariant inserts or renames a variant
func (s *SQLStore) UpsertVariant(ctx context.Context, variant catalog.Variant) error {
	return s.exec(ctx, "upsert variant", `
		INSERT INTO product_variants (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		variant.ID, variant.Name)
}

const storeColumns = `id, name, base_url, hostname, currency, rating, logo_url`

func scanStore(row interface{ Scan(...any) error }) (catalog.Store, error) {
	var (
		store  catalog.Store
		rating sql.NullFloat64
	)
	if err := row.Scan(&store.ID, &store.Name, &store.BaseURL, &store.Hostname, &store.Currency, &rating, &store.LogoURL); err != nil {
		return store, err
	}
	if rating.Valid {
		store.Rating = &rating.Float64
	}
	return store, nil
}

// ListStores returns every store ordered by hostname
func (s *SQLStore) ListStores(ctx context.Context) ([]catalog.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY hostname`)
	if err != nil {
		return nil, errors.NewStorage(s.driver, "list stores", err)
	}
	defer rows.Close()

	var stores []catalog.Store
	for rows.Next() {
		store, err := scanStore(rows)
		if err != nil {
			return nil, errors.NewStorage(s.driver, "scan store", err)
		}
		stores = append(stores, store)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(s.driver, "list stores", err)
	}
	return stores, nil
}

// FindStoreByHostname resolves a store by exact normalized hostname
func (s *SQLStore) FindStoreByHostname(ctx context.Context, hostname string) (catalog.Store, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+storeColumns+` FROM stores WHERE hostname = $1`),
		catalog.NormalizeHostname(hostname))

	store, err := scanStore(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return catalog.Store{}, ErrNotFound
	}
	if err != nil {
		return catalog.Store{}, errors.NewStorage(s.driver, "find store", err)
	}
	return store, nil
}

// VariantExists reports whether the variant row exists
func (s *SQLStore) VariantExists(ctx context.Context, variantID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM product_variants WHERE id = $1`), variantID).Scan(&count)
	if err != nil {
		return false, errors.NewStorage(s.driver, "check variant", err)
	}
	return count > 0, nil
}

// InsertObservation appends an observation row
func (s *SQLStore) InsertObservation(ctx context.Context, obs catalog.Observation) error {
	return s.exec(ctx, "insert observation", `
		INSERT INTO item_price_in_store
			(id, variant_id, store_id, url_path_in_store, observed_price, currency, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		obs.ID, obs.VariantID, obs.StoreID, obs.URLPathInStore,
		obs.ObservedPrice.String(), obs.Currency, s.timeArg(obs.ObservedAt))
}

const observationColumns = `o.id, o.variant_id, o.store_id, o.url_path_in_store, o.observed_price, o.currency, o.observed_at`

const latestCondition = `o.observed_at = (
	SELECT MAX(i.observed_at) FROM item_price_in_store i
	WHERE i.variant_id = o.variant_id AND i.store_id = o.store_id)`

// LatestObservations returns the newest observation per (variant, store) pair
func (s *SQLStore) LatestObservations(ctx context.Context) ([]catalog.Observation, error) {
	rows, err := s.queryObservations(ctx, `
		SELECT `+observationColumns+` FROM item_price_in_store o
		WHERE `+latestCondition+`
		ORDER BY o.variant_id, o.store_id`)
	if err != nil {
		return nil, err
	}
	return latestPerPair(rows), nil
}

// LatestForVariant returns the newest observation per store for variantID
func (s *SQLStore) LatestForVariant(ctx context.Context, variantID string) ([]catalog.Observation, error) {
	rows, err := s.queryObservations(ctx, `
		SELECT `+observationColumns+` FROM item_price_in_store o
		WHERE o.variant_id = $1 AND `+latestCondition+`
		ORDER BY o.store_id`, variantID)
	if err != nil {
		return nil, err
	}
	return latestPerPair(rows), nil
}

// History returns every observation for the pair, oldest first
func (s *SQLStore) History(ctx context.Context, variantID, storeID string) ([]catalog.Observation, error) {
	return s.queryObservations(ctx, `
		SELECT `+observationColumns+` FROM item_price_in_store o
		WHERE o.variant_id = $1 AND o.store_id = $2
		ORDER BY o.observed_at`, variantID, storeID)
}

func (s *SQLStore) queryObservations(ctx context.Context, query string, args ...any) ([]catalog.Observation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, errors.NewStorage(s.driver, "query observations", err)
	}
	defer rows.Close()

	var out []catalog.Observation
	for rows.Next() {
		var obs catalog.Observation
		if err := rows.Scan(&obs.ID, &obs.VariantID, &obs.StoreID, &obs.URLPathInStore,
			&obs.ObservedPrice, &obs.Currency, timestamp{&obs.ObservedAt}); err != nil {
			return nil, errors.NewStorage(s.driver, "scan observation", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(s.driver, "query observations", err)
	}
	return out, nil
}

// timestamp scans either a native time or the text layouts SQLite returns
type timestamp struct {
	t *time.Time
}

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (ts timestamp) parse(value string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", value)
}
