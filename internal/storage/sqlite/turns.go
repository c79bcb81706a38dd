package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutor360/tutorvoice/internal/voicechat"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// TurnRecord represents one stored conversation turn
type TurnRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnStorage persists finalized conversation turns
type TurnStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTurnStorage creates a new SQLite turn storage
func NewTurnStorage(db *sql.DB, log *logger.Logger) (*TurnStorage, error) {
	storage := &TurnStorage{
		db:     db,
		logger: log.Named("sqlite-turns"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *TurnStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create turns table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_turns_session_id ON turns(session_id)`)
	if err != nil {
		return fmt.Errorf("failed to create session_id index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	return nil
}

// SaveTurn stores one finalized turn
func (s *TurnStorage) SaveTurn(ctx context.Context, sessionID string, turn voicechat.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID,
		string(turn.Role),
		turn.Text,
		turn.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// GetTurns returns the stored turns of one session in creation order
func (s *TurnStorage) GetTurns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM turns WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var records []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Role, &rec.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			s.logger.Warn("Unparseable turn timestamp", String("value", createdAt))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	return records, nil
}

// DeleteSessionTurns removes all turns of one session
func (s *TurnStorage) DeleteSessionTurns(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	return nil
}
