package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const fillSelectCols = `trader, asset, price, size, is_buy, direction, pnl, ts, hash, oid`

const insertFillSQL = `
	INSERT INTO fills (trader, asset, price, size, is_buy, direction, pnl, ts, hash, oid)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(
			&f.Trader, &f.Asset, &f.Price, &f.Size, &f.IsBuy,
			&f.Direction, &f.PnL, &f.Timestamp, &f.Hash, &f.OrderID,
		); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ReplaceForTraders drops the stored fills of traders and inserts fills in a
// single transaction, so readers see either the old or the new snapshot.
func (s *FillStore) ReplaceForTraders(ctx context.Context, traders []string, fills []domain.Fill) error {
	if len(traders) == 0 && len(fills) == 0 {
		return nil
	}

	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if len(traders) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM fills WHERE trader = ANY($1)`, traders); err != nil {
				return fmt.Errorf("delete: %w", err)
			}
		}
		if len(fills) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, f := range fills {
			batch.Queue(insertFillSQL,
				f.Trader, f.Asset, f.Price, f.Size, f.IsBuy,
				f.Direction, f.PnL, f.Timestamp, f.Hash, f.OrderID,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for i := range fills {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert batch item %d: %w", i, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: replace fills: %w", err)
	}
	return nil
}

// PruneExcept deletes fills of traders not listed in keep. An empty keep
// clears the table.
func (s *FillStore) PruneExcept(ctx context.Context, keep []string) (int64, error) {
	query, args := `DELETE FROM fills`, []any(nil)
	if len(keep) > 0 {
		query, args = `DELETE FROM fills WHERE NOT (trader = ANY($1))`, []any{keep}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune fills: %w", err)
	}
	return tag.RowsAffected(), nil
}

// buildFillQuery renders the SELECT for a filter. Rows come back oldest first
// (insertion order breaking timestamp ties) unless NewestFirst is set.
func buildFillQuery(filter domain.FillFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + fillSelectCols + ` FROM fills WHERE 1=1`)
	var args []any

	if filter.Since != nil {
		args = append(args, filter.Since.UnixMilli())
		fmt.Fprintf(&sb, " AND ts >= $%d", len(args))
	}
	if filter.OpeningsOnly {
		sb.WriteString(` AND direction LIKE 'Open %'`)
	}
	if len(filter.Traders) > 0 {
		args = append(args, filter.Traders)
		fmt.Fprintf(&sb, " AND trader = ANY($%d)", len(args))
	}

	if filter.NewestFirst {
		sb.WriteString(" ORDER BY ts DESC, id DESC")
	} else {
		sb.WriteString(" ORDER BY ts ASC, id ASC")
	}
	return sb.String(), args
}

// List returns stored fills matching filter.
func (s *FillStore) List(ctx context.Context, filter domain.FillFilter) ([]domain.Fill, error) {
	query, args := buildFillQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills: %w", err)
	}
	return fills, nil
}

// Count returns the number of stored fills.
func (s *FillStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM fills`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count fills: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.FillStore = (*FillStore)(nil)
