package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implementa Store sobre las tablas accounts, account_logins y account_groups.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

const accountColumns = `a.id::text, a.email, a.username, a.display_name, a.avatar_url, a.payload, a.created_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		acc     Account
		payload []byte
	)
	err := row.Scan(&acc.ID, &acc.Email, &acc.Username, &acc.DisplayName, &acc.AvatarURL, &payload, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &acc.Payload); err != nil {
			return nil, fmt.Errorf("accounts: decode payload: %w", err)
		}
	}
	return &acc, nil
}

func (p *Postgres) FindByLogin(ctx context.Context, provider, identity string) (*Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM account_logins l JOIN accounts a ON a.id = l.account_id
		WHERE l.provider = $1 AND l.identity = $2`
	return scanAccount(p.pool.QueryRow(ctx, query, provider, identity))
}

func (p *Postgres) FindByEmail(ctx context.Context, email string) (*Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts a WHERE lower(a.email) = lower($1)`
	return scanAccount(p.pool.QueryRow(ctx, query, email))
}

func (p *Postgres) Create(ctx context.Context, acc *Account) error {
	const query = `
		INSERT INTO accounts (id, email, username, display_name, avatar_url, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	payload, err := json.Marshal(acc.Payload)
	if err != nil {
		return fmt.Errorf("accounts: encode payload: %w", err)
	}
	err = p.pool.QueryRow(ctx, query, acc.ID, acc.Email, acc.Username, acc.DisplayName, acc.AvatarURL, payload).
		Scan(&acc.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (p *Postgres) LinkLogin(ctx context.Context, accountID, provider, identity string) error {
	const query = `
		INSERT INTO account_logins (provider, identity, account_id) VALUES ($1, $2, $3)
		ON CONFLICT (provider, identity) DO UPDATE SET account_id = EXCLUDED.account_id, last_login = now()`
	_, err := p.pool.Exec(ctx, query, provider, identity, accountID)
	return err
}

func (p *Postgres) UpdateEmail(ctx context.Context, accountID, email string) error {
	const query = `UPDATE accounts SET email = $2 WHERE id = $1`
	tag, err := p.pool.Exec(ctx, query, accountID, email)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AttachGroup(ctx context.Context, accountID string, groupID int64) error {
	const query = `
		INSERT INTO account_groups (account_id, group_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	_, err := p.pool.Exec(ctx, query, accountID, groupID)
	return err
}

func (p *Postgres) Groups(ctx context.Context, accountID string) ([]int64, error) {
	const query = `SELECT group_id FROM account_groups WHERE account_id = $1 ORDER BY group_id`
	rows, err := p.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
