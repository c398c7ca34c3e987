package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore shares sessions between server replicas.
type PostgresStore struct {
	pool   *pgxpool.Pool
	sealer *Sealer
	now    func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string, sealer *Sealer) (*PostgresStore, error) {
	if sealer == nil {
		return nil, errors.New("postgres session store requires a sealer")
	}
	if err := RunPostgresMigrations(databaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool, sealer: sealer, now: time.Now}, nil
}

func (p *PostgresStore) Create(ctx context.Context, sess *Session) error {
	sealed, userJSON, err := encodeSession(p.sealer, sess)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO sessions (id, token_sealed, user_json, created_at, expires_at, user_refreshed_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6)`,
		sess.ID, sealed, userJSON, sess.CreatedAt, sess.ExpiresAt, sess.UserRefreshedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		sealed                            string
		userJSON                          []byte
		created, expires, userRefreshedAt time.Time
	)
	err := p.pool.QueryRow(ctx,
		`SELECT token_sealed, user_json::text, created_at, expires_at, user_refreshed_at
		 FROM sessions WHERE id = $1`, id).
		Scan(&sealed, &userJSON, &created, &expires, &userRefreshedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	sess, err := decodeSession(p.sealer, id, sealed, userJSON)
	if err != nil {
		_ = p.Delete(ctx, id)
		return nil, errors.Join(ErrSessionNotFound, err)
	}
	sess.CreatedAt = created.UTC()
	sess.ExpiresAt = expires.UTC()
	sess.UserRefreshedAt = userRefreshedAt.UTC()

	if sess.Expired(p.now()) {
		_ = p.Delete(ctx, id)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

func (p *PostgresStore) Update(ctx context.Context, sess *Session) error {
	_, userJSON, err := encodeSession(p.sealer, sess)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE sessions SET user_json = $1::jsonb, expires_at = $2, user_refreshed_at = $3 WHERE id = $4`,
		userJSON, sess.ExpiresAt, sess.UserRefreshedAt, sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
