package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// SaveCycle records the ranked signals of one analysis cycle. The slice
// position is stored as the rank.
func (s *SignalStore) SaveCycle(ctx context.Context, at time.Time, signals []domain.AnnotatedSignal) error {
	if len(signals) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, a := range signals {
		batch.Queue(`
			INSERT INTO consensus_signals
				(cycle_at, rank, asset, direction, trader_count, pnl_backing, total_value, change_24h)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			at.UTC(), i+1, a.Signal.Asset, string(a.Signal.Direction),
			a.Signal.TraderCount, a.Signal.PnLBacking, a.Signal.TotalValue, a.Change,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range signals {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: save consensus signal %d: %w", i, err)
		}
	}
	return nil
}

// Latest returns the signals of the most recent cycle in rank order.
func (s *SignalStore) Latest(ctx context.Context) (time.Time, []domain.AnnotatedSignal, error) {
	var latest *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(cycle_at) FROM consensus_signals`).Scan(&latest); err != nil {
		return time.Time{}, nil, fmt.Errorf("postgres: latest consensus cycle: %w", err)
	}
	if latest == nil {
		return time.Time{}, nil, domain.ErrNotFound
	}
	at := *latest

	rows, err := s.pool.Query(ctx, `
		SELECT asset, direction, trader_count, pnl_backing, total_value, change_24h
		FROM consensus_signals WHERE cycle_at = $1 ORDER BY rank`, at)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("postgres: list consensus signals: %w", err)
	}

	signals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AnnotatedSignal, error) {
		var (
			a   domain.AnnotatedSignal
			dir string
		)
		err := row.Scan(&a.Signal.Asset, &dir, &a.Signal.TraderCount,
			&a.Signal.PnLBacking, &a.Signal.TotalValue, &a.Change)
		a.Signal.Direction = domain.Side(dir)
		return a, err
	})
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("postgres: scan consensus signals: %w", err)
	}
	if len(signals) == 0 {
		return time.Time{}, nil, domain.ErrNotFound
	}
	return at, signals, nil
}

// Compile-time interface check.
var _ domain.SignalStore = (*SignalStore)(nil)
