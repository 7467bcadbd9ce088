package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// upsertProductSQL inserts or refreshes one product in a single statement.
// xmax is zero only for freshly inserted rows, which makes the add versus
// update decision atomic per key without a separate existence check.
const upsertProductSQL = `
INSERT INTO products (
	product_key, record_id, title, price, original_price, brand, category,
	image_url, image_source, description, availability, source_url,
	product_url, condition, is_sold_out, labels, scraped_at, last_updated, is_active
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17,TRUE
)
ON CONFLICT (product_key) DO UPDATE SET
	record_id = EXCLUDED.record_id,
	title = EXCLUDED.title,
	price = EXCLUDED.price,
	original_price = EXCLUDED.original_price,
	brand = EXCLUDED.brand,
	category = EXCLUDED.category,
	image_url = EXCLUDED.image_url,
	image_source = EXCLUDED.image_source,
	description = EXCLUDED.description,
	availability = EXCLUDED.availability,
	source_url = EXCLUDED.source_url,
	product_url = EXCLUDED.product_url,
	condition = EXCLUDED.condition,
	is_sold_out = EXCLUDED.is_sold_out,
	labels = EXCLUDED.labels,
	last_updated = EXCLUDED.last_updated
RETURNING (xmax = 0) AS inserted`

const selectProductSQL = `
SELECT product_key, record_id, title, price, original_price, brand, category,
	image_url, image_source, description, availability, source_url,
	product_url, condition, is_sold_out, labels, scraped_at, last_updated, is_active
FROM products WHERE product_key = $1`

// ProductStore implements crawler.ProductRepository on Postgres.
type ProductStore struct {
	pool  pool
	clock crawler.Clock
}

// NewProductStore constructs a store from an existing pool (pgxpool or pgxmock).
func NewProductStore(p pool, clock crawler.Clock) (*ProductStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	return &ProductStore{pool: p, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertBatch writes all records in one transaction. Any failure rolls the
// whole batch back and is returned as a *crawler.PersistenceError.
func (s *ProductStore) UpsertBatch(ctx context.Context, records []crawler.ScrapedRecord) (res crawler.UpsertResult, err error) {
	if len(records) == 0 {
		return crawler.UpsertResult{}, nil
	}
	if err := crawler.ValidateForPersistence(records); err != nil {
		return crawler.UpsertResult{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return crawler.UpsertResult{}, &crawler.PersistenceError{Op: "begin upsert", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := s.clock.Now()
	for _, rec := range records {
		var inserted bool
		if err = tx.QueryRow(ctx, upsertProductSQL, productArgs(rec, now)...).Scan(&inserted); err != nil {
			return crawler.UpsertResult{}, &crawler.PersistenceError{Op: "upsert product " + rec.ID, Err: err}
		}
		if inserted {
			res.Added++
		} else {
			res.Updated++
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return crawler.UpsertResult{}, &crawler.PersistenceError{Op: "commit upsert", Err: err}
	}
	return res, nil
}

// GetProduct loads one product by key.
func (s *ProductStore) GetProduct(ctx context.Context, key string) (crawler.PersistedProduct, error) {
	var p crawler.PersistedProduct
	var availability string
	var brand, category, imageURL, imageSource, description, productURL, condition *string
	err := s.pool.QueryRow(ctx, selectProductSQL, key).Scan(
		&p.Key, &p.Record.ID, &p.Record.Title, &p.Record.Price, &p.Record.OriginalPrice,
		&brand, &category, &imageURL, &imageSource, &description, &availability,
		&p.Record.SourceURL, &productURL, &condition, &p.Record.IsSoldOut, &p.Record.Labels,
		&p.ScrapedAt, &p.LastUpdated, &p.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.PersistedProduct{}, fmt.Errorf("product %s: %w", key, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.PersistedProduct{}, fmt.Errorf("select product: %w", err)
	}
	p.Record.Brand = deref(brand)
	p.Record.Category = deref(category)
	p.Record.ImageURL = deref(imageURL)
	p.Record.ImageSource = crawler.ImageSource(deref(imageSource))
	p.Record.Description = deref(description)
	p.Record.Availability = crawler.Availability(availability)
	p.Record.ProductURL = deref(productURL)
	p.Record.Condition = crawler.Condition(deref(condition))
	if p.Record.Labels == nil {
		p.Record.Labels = []string{}
	}
	return p, nil
}

func productArgs(rec crawler.ScrapedRecord, now time.Time) []any {
	labels := rec.Labels
	if labels == nil {
		labels = []string{}
	}
	return []any{
		rec.Key(),
		rec.ID,
		rec.Title,
		rec.Price,
		rec.OriginalPrice,
		nullable(rec.Brand),
		nullable(rec.Category),
		nullable(rec.ImageURL),
		nullable(string(rec.ImageSource)),
		nullable(rec.Description),
		string(rec.Availability),
		rec.SourceURL,
		nullable(rec.ProductURL),
		nullable(string(rec.Condition)),
		rec.IsSoldOut,
		labels,
		now,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
