package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// User is a directory entry. The login is the identity key.
type User struct {
	Login        string `json:"login"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PasswordHash string `json:"-"`
	Enabled      bool   `json:"enabled"`
}

type RefreshToken struct {
	TokenID   string
	Login     string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	CreateUser(ctx context.Context, user User) error
	FindUserByLogin(ctx context.Context, login string) (User, error)
	UpdateUser(ctx context.Context, user User) error
	SetUserEnabled(ctx context.Context, login string, enabled bool) error
	FindUsersByLogin(ctx context.Context, pattern string) ([]User, error)

	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	FindRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenID string) error
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createUsersSQL = `
CREATE TABLE IF NOT EXISTS users (
  login text PRIMARY KEY,
  first_name text NOT NULL DEFAULT '',
  last_name text NOT NULL DEFAULT '',
  password_hash text NOT NULL,
  enabled boolean NOT NULL DEFAULT true,
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createRefreshTokensSQL = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
  token_id text PRIMARY KEY,
  login text NOT NULL REFERENCES users(login) ON DELETE CASCADE,
  token_hash text NOT NULL UNIQUE,
  expires_at timestamptz NOT NULL,
  revoked_at timestamptz,
  created_at timestamptz NOT NULL DEFAULT now()
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createUsersSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createRefreshTokensSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user User) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO users (login, first_name, last_name, password_hash, enabled)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.Login, user.FirstName, user.LastName, user.PasswordHash, user.Enabled,
	)
	return err
}

func (r *PostgresRepository) FindUserByLogin(ctx context.Context, login string) (User, error) {
	var u User
	err := r.Pool.QueryRow(ctx,
		`SELECT login, first_name, last_name, password_hash, enabled
		 FROM users WHERE login = $1`,
		login,
	).Scan(&u.Login, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, user User) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE users SET first_name = $2, last_name = $3 WHERE login = $1`,
		user.Login, user.FirstName, user.LastName,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetUserEnabled(ctx context.Context, login string, enabled bool) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE users SET enabled = $2 WHERE login = $1`,
		login, enabled,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) FindUsersByLogin(ctx context.Context, pattern string) ([]User, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT login, first_name, last_name, password_hash, enabled
		 FROM users
		 WHERE login LIKE '%' || $1 || '%'
		 ORDER BY login`,
		pattern,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Login, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Enabled); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token_id, login, token_hash, expires_at) VALUES ($1, $2, $3, $4)`,
		token.TokenID, token.Login, token.TokenHash, token.ExpiresAt,
	)
	return err
}

func (r *PostgresRepository) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error) {
	var rt RefreshToken
	err := r.Pool.QueryRow(ctx,
		`SELECT token_id, login, token_hash, expires_at, revoked_at
		 FROM refresh_tokens
		 WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`,
		tokenHash,
	).Scan(&rt.TokenID, &rt.Login, &rt.TokenHash, &rt.ExpiresAt, &rt.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, ErrNotFound
		}
		return RefreshToken{}, err
	}
	return rt, nil
}

func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	_, err := r.Pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE token_id = $1`,
		tokenID,
	)
	return err
}
