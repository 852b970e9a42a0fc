package repository

import (
	"context"
	"database/sql"

	_ "github.com/glebarez/go-sqlite"

	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS history_entries (
	id TEXT PRIMARY KEY,
	unit1 TEXT NOT NULL DEFAULT '',
	unit2 TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	page_link TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	position INTEGER NOT NULL
);`

// SQLite stores history rows in a local SQLite database
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, goerr.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite", goerr.V("path", path))
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to create history table", goerr.V("path", path))
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context) ([]*model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, unit1, unit2, prompt, model, page_link, timestamp FROM history_entries ORDER BY timestamp DESC, position ASC;`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query history")
	}
	defer rows.Close()

	entries := []*model.HistoryEntry{}
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Unit1, &e.Unit2, &e.Prompt, &e.Model, &e.PageLink, &e.Timestamp); err != nil {
			return nil, goerr.Wrap(err, "failed to scan history row")
		}
		if err := e.Validate(); err != nil {
			logging.From(ctx).Warn("skip invalid history row", "id", e.ID, "error", err)
			continue
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate history rows")
	}

	return entries, nil
}

func (s *SQLite) Save(ctx context.Context, entries []*model.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_entries;`); err != nil {
		return goerr.Wrap(err, "failed to reset history table")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO history_entries (id, unit1, unit2, prompt, model, page_link, timestamp, position) VALUES (?,?,?,?,?,?,?,?);`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare insert")
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Unit1, e.Unit2, e.Prompt, e.Model, e.PageLink, e.Timestamp, i); err != nil {
			return goerr.Wrap(err, "failed to insert history entry", goerr.V("id", e.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit history")
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history_entries;`); err != nil {
		return goerr.Wrap(err, "failed to clear history table")
	}
	return nil
}
