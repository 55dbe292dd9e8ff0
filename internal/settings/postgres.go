package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres guarda settings en la tabla "settings" (migrations/postgres).
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM settings WHERE key = $1`
	var v string
	err := p.pool.QueryRow(ctx, query, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return v, true, nil
}

func (p *Postgres) All(ctx context.Context) (map[string]string, error) {
	const query = `SELECT key, value FROM settings`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("settings: list: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (p *Postgres) Set(ctx context.Context, values map[string]string) error {
	const query = `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, k := range sortedKeys(values) {
			if _, err := tx.Exec(ctx, query, k, values[k]); err != nil {
				return fmt.Errorf("settings: set %s: %w", k, err)
			}
		}
		return nil
	})
}

func (p *Postgres) Delete(ctx context.Context, keys ...string) error {
	const query = `DELETE FROM settings WHERE key = ANY($1)`
	if len(keys) == 0 {
		return nil
	}
	if _, err := p.pool.Exec(ctx, query, keys); err != nil {
		return fmt.Errorf("settings: delete: %w", err)
	}
	return nil
}
