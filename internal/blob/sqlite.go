package blob

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

func init() {
	RegisterFactory("sqlite", func(path string) (Store, error) { return NewSQLiteStore(path) })
}

// SQLiteStore keeps blobs in a single table keyed by (container, key).
// Rename runs in a transaction so readers see either the old or the new
// binding, never an intermediate state.
type SQLiteStore struct {
	conn *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	slog.Info("Initializing SQLite blob store", "path", dbPath)

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &SQLiteStore{conn: conn}, nil
}

func runMigrations(conn *sql.DB) error {
	slog.Debug("Running database migrations")

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Migrations completed successfully")
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE container = ? AND key = ?`, container, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s/%s: %w", container, key, err)
	}
	return data, nil
}

func (s *SQLiteStore) Put(ctx context.Context, container, key string, data []byte) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO blobs (container, key, data, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (container, key) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		container, key, data)
	if err != nil {
		return fmt.Errorf("failed to write blob %s/%s: %w", container, key, err)
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, container, key string) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx,
		`SELECT 1 FROM blobs WHERE container = ? AND key = ?`, container, key).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blob %s/%s: %w", container, key, err)
	}
	return true, nil
}

func (s *SQLiteStore) Rename(ctx context.Context, container, oldKey, newKey string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rename: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM blobs WHERE container = ? AND key = ?`, container, newKey); err != nil {
		return fmt.Errorf("failed to clear rename target %s/%s: %w", container, newKey, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE blobs SET key = ?, updated_at = CURRENT_TIMESTAMP WHERE container = ? AND key = ?`,
		newKey, container, oldKey)
	if err != nil {
		return fmt.Errorf("failed to rename blob %s/%s: %w", container, oldKey, err)
	}

	moved, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to verify rename: %w", err)
	}
	if moved == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
