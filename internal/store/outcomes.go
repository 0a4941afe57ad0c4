package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/history"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// OutcomeRepo persists detected opportunities and their realized outcomes in
// PostgreSQL, and serves them back as analysis rows.
type OutcomeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string, timeout time.Duration) (*OutcomeRepo, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &OutcomeRepo{db: db, timeout: timeout}, nil
}

// NewOutcomeRepo wraps an existing connection. Used by tests.
func NewOutcomeRepo(db *sqlx.DB, timeout time.Duration) *OutcomeRepo {
	return &OutcomeRepo{db: db, timeout: timeout}
}

// Migrate creates the outcomes table when absent.
func (r *OutcomeRepo) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS opportunity_outcomes (
			id                    TEXT PRIMARY KEY,
			ts                    TIMESTAMPTZ NOT NULL,
			strategy              TEXT NOT NULL,
			pair                  TEXT NOT NULL,
			fiat                  TEXT NOT NULL DEFAULT '',
			buy_venue             TEXT NOT NULL DEFAULT '',
			sell_venue            TEXT NOT NULL DEFAULT '',
			net_percent           DOUBLE PRECISION NOT NULL,
			effective_net_percent DOUBLE PRECISION,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_ts ON opportunity_outcomes (ts);
		CREATE INDEX IF NOT EXISTS idx_outcomes_bucket ON opportunity_outcomes (strategy, pair, fiat)`)
	if err != nil {
		return fmt.Errorf("migrate outcomes: %w", err)
	}
	return nil
}

// RecordOpportunity inserts one detected opportunity. The realized outcome
// arrives later via RecordOutcome, if ever.
func (r *OutcomeRepo) RecordOpportunity(ctx context.Context, opp model.Opportunity) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fiat := opp.Notes["fiat"]
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO opportunity_outcomes (id, ts, strategy, pair, fiat, buy_venue, sell_venue, net_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		opp.ID, opp.Timestamp, opp.Strategy, opp.Pair, fiat, opp.BuyVenue, opp.SellVenue, opp.NetPercent)
	if err != nil {
		return fmt.Errorf("record opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// RecordOutcome attaches the realized net percent to a previously recorded
// opportunity.
func (r *OutcomeRepo) RecordOutcome(ctx context.Context, id string, effectiveNetPercent float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE opportunity_outcomes SET effective_net_percent = $2 WHERE id = $1`,
		id, effectiveNetPercent)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record outcome %s: unknown opportunity", id)
	}
	return nil
}

// outcomeRow mirrors one table row for sqlx scanning.
type outcomeRow struct {
	TS                  time.Time `db:"ts"`
	Strategy            string    `db:"strategy"`
	Pair                string    `db:"pair"`
	Fiat                string    `db:"fiat"`
	NetPercent          float64   `db:"net_percent"`
	EffectiveNetPercent *float64  `db:"effective_net_percent"`
}

// Rows implements history.RowSource over the stored outcomes, oldest first.
func (r *OutcomeRepo) Rows(ctx context.Context) ([]history.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var raw []outcomeRow
	err := r.db.SelectContext(ctx, &raw, `
		SELECT ts, strategy, pair, fiat, net_percent, effective_net_percent
		FROM opportunity_outcomes
		ORDER BY ts ASC`)
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}

	rows := make([]history.Row, 0, len(raw))
	for _, o := range raw {
		row := history.Row{
			Timestamp:  o.TS.UTC(),
			Strategy:   o.Strategy,
			Pair:       o.Pair,
			Fiat:       o.Fiat,
			NetPercent: o.NetPercent,
		}
		if o.EffectiveNetPercent != nil {
			row.EffectiveNetPercent = *o.EffectiveNetPercent
			row.HasOutcome = true
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close releases the connection pool.
func (r *OutcomeRepo) Close() error {
	return r.db.Close()
}
