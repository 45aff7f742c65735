package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// NewSQLite открывает файл SQLite и применяет схему.
// Используется на одном хосте, в CLI и в тестах.
func NewSQLite(dbPath string) (Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_fk=1&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, eris.Wrap(err, "failed to open database")
	}
	// Один писатель: SQLite не любит параллельные транзакции
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to initialize schema")
	}

	zap.L().Info("✅ SQLite готова", zap.String("path", dbPath))
	return &sqlStore{db: &sqliteConn{db: db}}, nil
}

// sqliteConn: conn поверх database/sql; $N переписываются в ?N
type sqliteConn struct {
	db *sql.DB
}

func rebind(query string) string {
	return strings.ReplaceAll(query, "$", "?")
}

func (c *sqliteConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.db.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *sqliteConn) queryRow(ctx context.Context, query string, args ...any) row {
	return sqliteRow{c.db.QueryRowContext(ctx, rebind(query), args...)}
}

func (c *sqliteConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := c.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return sqliteRows{rs}, nil
}

func (c *sqliteConn) ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *sqliteConn) close() {
	if err := c.db.Close(); err != nil {
		zap.L().Warn("Ошибка закрытия SQLite", zap.Error(err))
	}
}

type sqliteRow struct {
	*sql.Row
}

func (r sqliteRow) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type sqliteRows struct {
	*sql.Rows
}

func (r sqliteRows) Close() {
	_ = r.Rows.Close()
}
