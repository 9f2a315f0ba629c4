package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 5 * time.Second
)

// PostgresSource reads order records straight from the table the order
// endpoint is backed by: one row per order with the product list stored as
// encoded JSON text.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresSource(pool *pgxpool.Pool, table string) *PostgresSource {
	return &PostgresSource{pool: pool, table: table}
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := withTimeout(ctx, pingTimeout, pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, s.pool.Ping)
}

func (s *PostgresSource) Fetch(ctx context.Context) ([]RawRecord, int, error) {
	var out []RawRecord

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, fmt.Sprintf(`
			SELECT row_id::text, products
			FROM %s
			ORDER BY row_id ASC
		`, pgx.Identifier(strings.Split(s.table, ".")).Sanitize()))
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]RawRecord, 0, 64)
		for rows.Next() {
			var (
				row      string
				products *string
			)
			if err := rows.Scan(&row, &products); err != nil {
				return err
			}
			out = append(out, toRawRecord(row, products))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return out, 0, nil
}

func toRawRecord(row string, products *string) RawRecord {
	r := RawRecord{}
	r.Row, _ = json.Marshal(row)
	if products != nil {
		r.Products, _ = json.Marshal(*products)
	}
	return r
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
