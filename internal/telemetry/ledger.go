package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// UsageRecord describes one completion call. It never carries message content
// or the credential.
type UsageRecord struct {
	At               time.Time
	Model            string
	Success          bool
	StatusCode       int // 0 when unknown
	Duration         time.Duration
	PromptTokens     int64
	CompletionTokens int64
}

// UsageSummary aggregates the ledger
type UsageSummary struct {
	Calls            int64
	Failures         int64
	PromptTokens     int64
	CompletionTokens int64
	AvgDuration      time.Duration
	First, Last      time.Time
}

// Ledger is a SQLite table of completion outcomes
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (and creates if needed) the usage database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createUsageTable := `
	CREATE TABLE IF NOT EXISTS usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at DATETIME NOT NULL,
		model TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		status_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL
	);`

	if _, err := db.Exec(createUsageTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create usage table: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Record appends one call outcome.
func (l *Ledger) Record(ctx context.Context, rec UsageRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage (at, model, success, status_code, duration_ms, prompt_tokens, completion_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.At.UTC(), rec.Model, rec.Success, rec.StatusCode, rec.Duration.Milliseconds(),
		rec.PromptTokens, rec.CompletionTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Summary totals every recorded call.
func (l *Ledger) Summary(ctx context.Context) (UsageSummary, error) {
	var (
		s           UsageSummary
		avg         sql.NullFloat64
		first, last sql.NullString
	)

	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			AVG(duration_ms),
			MIN(at),
			MAX(at)
		FROM usage`,
	).Scan(&s.Calls, &s.Failures, &s.PromptTokens, &s.CompletionTokens, &avg, &first, &last)
	if err != nil {
		return s, fmt.Errorf("failed to summarize usage: %w", err)
	}

	if avg.Valid {
		s.AvgDuration = time.Duration(avg.Float64 * float64(time.Millisecond))
	}
	s.First = parseTimestamp(first)
	s.Last = parseTimestamp(last)
	return s, nil
}

// MIN/MAX lose the column's declared type, so go-sqlite3 hands back text.
func parseTimestamp(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano} {
		if t, err := time.Parse(layout, v.String); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
