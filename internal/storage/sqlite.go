package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"expensedash/internal/core"
)

// SQLiteStore keeps sessions in a local SQLite file with tokens sealed.
type SQLiteStore struct {
	db     *sql.DB
	sealer *Sealer
	now    func() time.Time
}

func NewSQLiteStore(dbPath string, sealer *Sealer) (*SQLiteStore, error) {
	if sealer == nil {
		return nil, errors.New("sqlite session store requires a sealer")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := RunSQLiteMigrations(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &SQLiteStore{db: db, sealer: sealer, now: time.Now}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, sess *Session) error {
	sealed, userJSON, err := encodeSession(s.sealer, sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, token_sealed, user_json, created_at, expires_at, user_refreshed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sealed, userJSON,
		sess.CreatedAt.UnixMilli(), sess.ExpiresAt.UnixMilli(), sess.UserRefreshedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		sealed, userJSON                  string
		created, expires, userRefreshedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token_sealed, user_json, created_at, expires_at, user_refreshed_at
		 FROM sessions WHERE id = ?`, id).
		Scan(&sealed, &userJSON, &created, &expires, &userRefreshedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	sess, err := decodeSession(s.sealer, id, sealed, []byte(userJSON))
	if err != nil {
		_ = s.Delete(ctx, id)
		return nil, errors.Join(ErrSessionNotFound, err)
	}
	sess.CreatedAt = time.UnixMilli(created).UTC()
	sess.ExpiresAt = time.UnixMilli(expires).UTC()
	sess.UserRefreshedAt = time.UnixMilli(userRefreshedAt).UTC()

	if sess.Expired(s.now()) {
		_ = s.Delete(ctx, id)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

func (s *SQLiteStore) Update(ctx context.Context, sess *Session) error {
	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET user_json = ?, expires_at = ?, user_refreshed_at = ? WHERE id = ?`,
		string(userJSON), sess.ExpiresAt.UnixMilli(), sess.UserRefreshedAt.UnixMilli(), sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func encodeSession(sealer *Sealer, sess *Session) (sealed string, userJSON string, err error) {
	sealed, err = sealer.Seal(sess.Token)
	if err != nil {
		return "", "", err
	}
	b, err := json.Marshal(sess.User)
	if err != nil {
		return "", "", fmt.Errorf("encode session user: %w", err)
	}
	return sealed, string(b), nil
}

func decodeSession(sealer *Sealer, id, sealed string, userJSON []byte) (*Session, error) {
	token, err := sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	var user core.User
	if len(userJSON) > 0 {
		if err := json.Unmarshal(userJSON, &user); err != nil {
			return nil, fmt.Errorf("decode session user: %w", err)
		}
	}
	return &Session{ID: id, Token: token, User: user}, nil
}
