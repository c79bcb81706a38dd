package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tutor360/tutorvoice/pkg/logger"
)

// UsageStorage tracks per-day conversation seconds against a daily quota.
type UsageStorage struct {
	db           *sql.DB
	dailySeconds int
	logger       *logger.Logger
}

// NewUsageStorage creates a new SQLite usage storage with the given daily
// allowance in seconds.
func NewUsageStorage(db *sql.DB, dailySeconds int, log *logger.Logger) (*UsageStorage, error) {
	storage := &UsageStorage{
		db:           db,
		dailySeconds: dailySeconds,
		logger:       log.Named("sqlite-usage"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *UsageStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS usage (
			day TEXT PRIMARY KEY,
			seconds_used INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create usage table: %w", err)
	}
	return nil
}

// RemainingSeconds returns the unspent allowance for the given day
// (formatted YYYY-MM-DD). A day with no row has the full allowance.
func (s *UsageStorage) RemainingSeconds(ctx context.Context, day string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`SELECT seconds_used FROM usage WHERE day = ?`, day).Scan(&used)
	if err == sql.ErrNoRows {
		return s.dailySeconds, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query usage: %w", err)
	}

	remaining := s.dailySeconds - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ConsumeSeconds records conversation time against the given day.
func (s *UsageStorage) ConsumeSeconds(ctx context.Context, day string, seconds int) error {
	if seconds <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (day, seconds_used) VALUES (?, ?)
		ON CONFLICT(day) DO UPDATE SET seconds_used = seconds_used + excluded.seconds_used`,
		day, seconds,
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	s.logger.Debug("Recorded usage",
		String("day", day),
		logger.Int("seconds", seconds))
	return nil
}
