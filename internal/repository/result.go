package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"catalog/repricer/internal/domain"
)

// DBTX is the part of a pgx pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Stats summarizes the stored results of a batch.
type Stats struct {
	Total   int `json:"total"`
	Priced  int `json:"priced"`
	Failed  int `json:"failed"`
	Changed int `json:"changed"`
}

type ResultRepository interface {
	EnsureSchema(ctx context.Context) error
	SaveResults(ctx context.Context, batchID string, chunkIndex, rowOffset int, results []domain.PricingResult) error
	CategoryCounts(ctx context.Context, batchID string) (map[string]int, error)
	BatchStats(ctx context.Context, batchID string) (Stats, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS pricing_results (
	batch_id               TEXT             NOT NULL,
	chunk_index            INTEGER          NOT NULL,
	row_index              INTEGER          NOT NULL,
	stock_code             TEXT             NOT NULL,
	product_name           TEXT             NOT NULL,
	main_category          TEXT             NOT NULL,
	category_path          TEXT             NOT NULL,
	full_category_path     TEXT             NOT NULL,
	base_price             DOUBLE PRECISION NOT NULL,
	profit_added           DOUBLE PRECISION NOT NULL,
	raw_discounted_price   DOUBLE PRECISION NOT NULL,
	final_discounted_price DOUBLE PRECISION NOT NULL,
	label_price            DOUBLE PRECISION NOT NULL,
	discount_rate_used     DOUBLE PRECISION NOT NULL,
	failure                TEXT             NOT NULL,
	changed                BOOLEAN          NOT NULL,
	PRIMARY KEY (batch_id, row_index)
)`

var resultColumns = []string{
	"batch_id", "chunk_index", "row_index", "stock_code", "product_name",
	"main_category", "category_path", "full_category_path",
	"base_price", "profit_added", "raw_discounted_price", "final_discounted_price",
	"label_price", "discount_rate_used", "failure", "changed",
}

type resultRepository struct {
	db DBTX
}

func NewResultRepository(db DBTX) ResultRepository {
	return &resultRepository{
		db: db,
	}
}

func (r *resultRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create pricing_results: %w", err)
	}
	return nil
}

// SaveResults replaces the stored results of one chunk. Deleting first keeps
// a redelivered chunk from being stored twice.
func (r *resultRepository) SaveResults(ctx context.Context, batchID string, chunkIndex, rowOffset int, results []domain.PricingResult) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM pricing_results WHERE batch_id = $1 AND chunk_index = $2`,
		batchID, chunkIndex)
	if err != nil {
		return fmt.Errorf("failed to clear chunk %d of batch %s: %w", chunkIndex, batchID, err)
	}

	if len(results) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(results))
	for i := range results {
		res := &results[i]
		rows = append(rows, []any{
			batchID, chunkIndex, rowOffset + i, res.StockCode, res.ProductName,
			res.MainCategory, res.CategoryPath(), res.FullCategoryPath,
			res.BasePrice, res.ProfitAdded, res.RawDiscountedPrice, res.FinalDiscountedPrice,
			res.LabelPrice, res.DiscountRateUsed, string(res.Failure), res.Changed(),
		})
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"pricing_results"}, resultColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to save results of chunk %d: %w", chunkIndex, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("saved %d of %d results of chunk %d", n, len(rows), chunkIndex)
	}

	return nil
}

// CategoryCounts returns raw per path occurrence counts of a batch.
func (r *resultRepository) CategoryCounts(ctx context.Context, batchID string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
	SELECT category_path, COUNT(*)
	FROM pricing_results
	WHERE batch_id = $1 AND category_path <> ''
	GROUP BY category_path`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			path  string
			count int64
		)
		if err := rows.Scan(&path, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[path] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read category counts: %w", err)
	}

	return counts, nil
}

func (r *resultRepository) BatchStats(ctx context.Context, batchID string) (Stats, error) {
	var total, failed, changed int64
	err := r.db.QueryRow(ctx, `
	SELECT COUNT(*),
	       COUNT(*) FILTER (WHERE failure <> ''),
	       COUNT(*) FILTER (WHERE changed)
	FROM pricing_results
	WHERE batch_id = $1`, batchID).Scan(&total, &failed, &changed)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query batch stats: %w", err)
	}

	return Stats{
		Total:   int(total),
		Priced:  int(total - failed),
		Failed:  int(failed),
		Changed: int(changed),
	}, nil
}
