// Package db opens the SQLite database that backs the session store and
// applies its embedded migrations.
package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/courier/errors"
)

// Open opens a SQLite database at the specified path with WAL enabled.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}

	if logger != nil {
		logger.Infow("Database opened", "path", path, "wal_mode", true)
	}
	return db, nil
}

// OpenWithMigrations opens the database and brings its schema up to date.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	return db, nil
}
