package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hackmarket-backend/internal/engine"
)

//go:embed schema.sql
var schema string

// PostgresJournal is a Journal backed by PostgreSQL
type PostgresJournal struct {
	pool *pgxpool.Pool
}

var _ Journal = (*PostgresJournal)(nil)

// NewPostgresJournal connects to dsn and creates the events table if needed
func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &PostgresJournal{pool: pool}, nil
}

const eventSelectCols = `id, kind, market, account, side, amount, shares,
	yes_pool, no_pool, yes_won, sequence, created_at, project`

func (j *PostgresJournal) Append(ctx context.Context, ev engine.Event) error {
	nums, err := toInt64s(ev.Amount, ev.Shares, ev.YesPool, ev.NoPool, ev.Sequence)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
	}

	var project []byte
	if ev.Project != nil {
		if project, err = json.Marshal(ev.Project); err != nil {
			return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
		}
	}

	const query = `
		INSERT INTO market_events (
			id, kind, market, account, side,
			amount, shares, yes_pool, no_pool,
			yes_won, sequence, created_at, project
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13
		) ON CONFLICT (id) DO NOTHING`

	_, err = j.pool.Exec(ctx, query,
		ev.ID, string(ev.Kind), ev.Market.Hex(), ev.Account.Hex(), string(ev.Side),
		nums[0], nums[1], nums[2], nums[3],
		ev.YesWon, nums[4], ev.Timestamp, project,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
	}
	return nil
}

func (j *PostgresJournal) All(ctx context.Context) ([]engine.Event, error) {
	rows, err := j.pool.Query(ctx, `SELECT `+eventSelectCols+` FROM market_events ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: all events: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

func (j *PostgresJournal) ByAccount(ctx context.Context, account common.Address) ([]engine.Event, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM market_events WHERE account = $1 ORDER BY seq ASC`,
		account.Hex(),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: events by account: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

func (j *PostgresJournal) ByMarket(ctx context.Context, market common.Address, limit int) ([]engine.Event, error) {
	query := `SELECT ` + eventSelectCols + ` FROM market_events WHERE market = $1 ORDER BY seq DESC`
	args := []any{market.Hex()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: events by market: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, err
	}
	// newest first from the query, oldest first to callers
	for l, r := 0, len(events)-1; l < r; l, r = l+1, r-1 {
		events[l], events[r] = events[r], events[l]
	}
	return events, nil
}

// Close shuts down the connection pool
func (j *PostgresJournal) Close() {
	j.pool.Close()
}

func scanEventRows(rows pgx.Rows) ([]engine.Event, error) {
	var events []engine.Event
	for rows.Next() {
		var (
			ev                                   engine.Event
			kind, market, account, side          string
			amount, shares, yesPool, noPool, seq int64
			createdAt                            time.Time
			project                              []byte
		)
		if err := rows.Scan(
			&ev.ID, &kind, &market, &account, &side,
			&amount, &shares, &yesPool, &noPool,
			&ev.YesWon, &seq, &createdAt, &project,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if len(project) > 0 {
			ev.Project = new(engine.Project)
			if err := json.Unmarshal(project, ev.Project); err != nil {
				return nil, fmt.Errorf("postgres: decode project of %s: %w", ev.ID, err)
			}
		}

		ev.Kind = engine.EventKind(kind)
		ev.Market = common.HexToAddress(market)
		ev.Account = common.HexToAddress(account)
		ev.Side = engine.OutcomeID(side)
		ev.Amount = uint64(amount)
		ev.Shares = uint64(shares)
		ev.YesPool = uint64(yesPool)
		ev.NoPool = uint64(noPool)
		ev.Sequence = uint64(seq)
		ev.Timestamp = createdAt.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// toInt64s converts unit amounts to BIGINT columns
func toInt64s(vals ...uint64) ([]int64, error) {
	out := make([]int64, len(vals))
	for i, v := range vals {
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("value %d exceeds BIGINT", v)
		}
		out[i] = int64(v)
	}
	return out, nil
}
