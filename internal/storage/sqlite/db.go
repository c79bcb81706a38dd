package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/tutor360/tutorvoice/pkg/logger"

	_ "modernc.org/sqlite"
)

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)

// Open opens the SQLite database and applies connection settings.
func Open(dbPath string, log *logger.Logger) (*sql.DB, error) {
	log.Named("sqlite").Info("Initializing SQLite storage",
		String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}
