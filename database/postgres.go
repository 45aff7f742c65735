package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// NewPostgres подключается к PostgreSQL и создаёт таблицы, если их нет.
// Ошибка подключения фатальна для процесса.
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "unable to connect to database")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "unable to ping database")
	}

	zap.L().Info("✅ Подключение к PostgreSQL установлено")
	if err := createUsersTable(ctx, pool); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "failed to create users table")
	}
	if err := createReferralsTable(ctx, pool); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "failed to create referrals table")
	}
	return &sqlStore{db: &pgConn{pool: pool}}, nil
}

func createUsersTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            id BIGINT PRIMARY KEY,
            username TEXT NOT NULL DEFAULT '',
            full_name TEXT NOT NULL DEFAULT '',
            first_name TEXT NOT NULL DEFAULT '',
            phone TEXT,
            category TEXT,
            referrer_id BIGINT,
            enrolled BOOLEAN NOT NULL DEFAULT FALSE,
            external_driver_id TEXT,
            external_driver_name TEXT,
            position TEXT,
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
    `)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone);
        CREATE INDEX IF NOT EXISTS idx_users_referrer_id ON users(referrer_id);
        CREATE INDEX IF NOT EXISTS idx_users_enrolled ON users(enrolled) WHERE external_driver_id IS NOT NULL;
    `)
	if err != nil {
		return err
	}

	zap.L().Info("✅ Таблица users готова")
	return nil
}

func createReferralsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS referrals (
            id BIGSERIAL PRIMARY KEY,
            referrer_id BIGINT NOT NULL,
            referred_id BIGINT NOT NULL REFERENCES users(id),
            order_count INTEGER NOT NULL DEFAULT 0,
            notified BOOLEAN NOT NULL DEFAULT FALSE,
            bonus_paid BOOLEAN NOT NULL DEFAULT FALSE,
            position TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (referrer_id, referred_id)
        );
        CREATE INDEX IF NOT EXISTS idx_referrals_referrer_id ON referrals(referrer_id);
        CREATE INDEX IF NOT EXISTS idx_referrals_referred_id ON referrals(referred_id);
    `)
	if err != nil {
		return err
	}

	zap.L().Info("✅ Таблица referrals готова")
	return nil
}

// pgConn: conn поверх pgxpool
type pgConn struct {
	pool *pgxpool.Pool
}

func (c *pgConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *pgConn) queryRow(ctx context.Context, query string, args ...any) row {
	return pgRow{c.pool.QueryRow(ctx, query, args...)}
}

func (c *pgConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (c *pgConn) ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *pgConn) close() {
	c.pool.Close()
	zap.L().Info("🛑 Соединение с PostgreSQL закрыто")
}

type pgRow struct {
	pgx.Row
}

func (r pgRow) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
