package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// TraderStore implements domain.TraderStore using PostgreSQL.
type TraderStore struct {
	pool *pgxpool.Pool
}

// NewTraderStore creates a new TraderStore backed by the given connection pool.
func NewTraderStore(pool *pgxpool.Pool) *TraderStore {
	return &TraderStore{pool: pool}
}

// ReplaceAll swaps the tracked trader list for traders in one transaction.
func (s *TraderStore) ReplaceAll(ctx context.Context, traders []domain.TrackedTrader) error {
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tracked_traders`); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if len(traders) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(traders))
		for _, t := range traders {
			rows = append(rows, []any{t.Address, t.PnL})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"tracked_traders"},
			[]string{"address", "pnl"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres: replace tracked traders: %w", err)
	}
	return nil
}

// List returns tracked traders ordered by PnL, best first.
func (s *TraderStore) List(ctx context.Context) ([]domain.TrackedTrader, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, pnl, updated_at FROM tracked_traders ORDER BY pnl DESC, address`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tracked traders: %w", err)
	}

	traders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TrackedTrader, error) {
		var t domain.TrackedTrader
		err := row.Scan(&t.Address, &t.PnL, &t.UpdatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan tracked traders: %w", err)
	}
	return traders, nil
}

// Compile-time interface check.
var _ domain.TraderStore = (*TraderStore)(nil)
