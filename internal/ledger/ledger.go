package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/mattn/go-sqlite3"
)

// ErrDuplicate is returned when a review is recorded twice.
var ErrDuplicate = errors.New("review already recorded")

// Entry is one finalized review.
type Entry struct {
	ID           string
	SessionID    string
	AgentID      string
	AgentType    string
	ReviewNumber int

	// Result is passed, blocked or inconclusive.
	Result string

	InputTokens  int
	OutputTokens int
	CostUSD      *float64
	Duration     time.Duration
	CreatedAt    time.Time
}

// Total aggregates the reviews of one agent type.
type Total struct {
	AgentType    string
	Reviews      int
	Passed       int
	Blocked      int
	Inconclusive int
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// Ledger is the SQLite record of completed reviews.
type Ledger struct {
	db  *sql.DB
	log btclog.Logger
}

// Open opens or creates the ledger at path and migrates its schema.
func Open(ctx context.Context, path string, log btclog.Logger) (*Ledger,
	error) {

	if log == nil {
		log = btclog.Disabled
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		path,
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if err := migrateUp(ctx, db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	return &Ledger{db: db, log: log}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends a review.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	var cost sql.NullFloat64
	if e.CostUSD != nil {
		cost = sql.NullFloat64{Float64: *e.CostUSD, Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO reviews (
			id, session_id, agent_id, agent_type, review_number,
			result, input_tokens, output_tokens, cost_usd,
			duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.AgentID, e.AgentType, e.ReviewNumber,
		e.Result, e.InputTokens, e.OutputTokens, cost,
		e.Duration.Milliseconds(), e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record review %s: %w", e.ID, mapSQLError(err))
	}

	l.log.DebugS(ctx, "Review recorded in ledger", "review_id", e.ID,
		"agent_type", e.AgentType, "result", e.Result)

	return nil
}

// Totals returns per agent type aggregates, ordered by agent type.
func (l *Ledger) Totals(ctx context.Context) ([]Total, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT agent_type,
			COUNT(*),
			SUM(CASE WHEN result = 'passed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN result = 'blocked' THEN 1 ELSE 0 END),
			SUM(CASE WHEN result = 'inconclusive' THEN 1 ELSE 0 END),
			SUM(input_tokens),
			SUM(output_tokens),
			COALESCE(SUM(cost_usd), 0)
		FROM reviews
		GROUP BY agent_type
		ORDER BY agent_type`)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", mapSQLError(err))
	}
	defer rows.Close()

	var totals []Total
	for rows.Next() {
		var t Total
		err := rows.Scan(
			&t.AgentType, &t.Reviews, &t.Passed, &t.Blocked,
			&t.Inconclusive, &t.InputTokens, &t.OutputTokens,
			&t.CostUSD,
		)
		if err != nil {
			return nil, fmt.Errorf("scan totals: %w", err)
		}
		totals = append(totals, t)
	}

	return totals, rows.Err()
}

// Recent returns the newest reviews first. A non-positive limit returns
// everything.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, session_id, agent_id, agent_type, review_number,
			result, input_tokens, output_tokens, cost_usd,
			duration_ms, created_at
		FROM reviews
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", mapSQLError(err))
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			cost       sql.NullFloat64
			durationMS int64
			createdAt  int64
		)
		err := rows.Scan(
			&e.ID, &e.SessionID, &e.AgentID, &e.AgentType,
			&e.ReviewNumber, &e.Result, &e.InputTokens,
			&e.OutputTokens, &cost, &durationMS, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}

		if cost.Valid {
			c := cost.Float64
			e.CostUSD = &c
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = time.Unix(createdAt, 0).UTC()

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// mapSQLError maps unique constraint failures to ErrDuplicate.
func mapSQLError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	if sqliteErr.Code == sqlite3.ErrConstraint &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {

		return fmt.Errorf("%w: %v", ErrDuplicate, sqliteErr)
	}

	return fmt.Errorf("sqlite error: %w", sqliteErr)
}
