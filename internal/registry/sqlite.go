package registry

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "cibot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteRepo struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLiteRepo(cfg Config, log logx.Logger) (Repository, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	r := &sqliteRepo{db: db, log: log}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *sqliteRepo) migrate() error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = r.db.Exec(string(b))
	return err
}

func (r *sqliteRepo) Load() ([]Subscriber, error) {
	rows, err := r.db.Query(`SELECT chat_id, display_name, approved FROM subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		var s Subscriber
		var approved int
		if err := rows.Scan(&s.ChatID, &s.DisplayName, &approved); err != nil {
			return nil, err
		}
		s.Approved = approved != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// Save replaces the stored set with the given snapshot in one transaction.
// The snapshot is small (chat subscriptions), so full rewrite keeps the
// store trivially consistent with memory.
func (r *sqliteRepo) Save(snapshot []Subscriber) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM subscribers`); err != nil {
		return err
	}
	now := time.Now().Format(time.RFC3339Nano)
	for _, s := range snapshot {
		approved := 0
		if s.Approved {
			approved = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO subscribers(chat_id, display_name, approved, updated_at) VALUES(?,?,?,?)`,
			s.ChatID, s.DisplayName, approved, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *sqliteRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
