package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore implements persistence for both supported dialects. Queries are
// written with $N placeholders and rebound for SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const userColumns = `id, username, name, surname, email, password_hash, role, login_date, last_login_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Surname,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.LoginDate,
		&user.LastLoginDate,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *SQLStore) CreateUser(ctx context.Context, user User) (User, error) {
	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err := s.exec(ctx, s.db, `
		INSERT INTO users (id, username, name, surname, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Username, user.Name, user.Surname, user.Email, user.PasswordHash, user.Role, now, now)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", classify(err))
	}
	return user, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (User, error) {
	user, err := scanUser(s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", classify(err))
	}
	return user, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	user, err := scanUser(s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
	if err != nil {
		return User{}, fmt.Errorf("get user by username: %w", classify(err))
	}
	return user, nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *SQLStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *SQLStore) UpdateUserProfile(ctx context.Context, user User) error {
	result, err := s.exec(ctx, s.db, `
		UPDATE users SET username=$2, name=$3, surname=$4, email=$5, updated_at=$6
		WHERE id=$1
	`, user.ID, user.Username, user.Name, user.Surname, user.Email, s.now())
	if err != nil {
		return fmt.Errorf("update user profile: %w", classify(err))
	}
	return requireAffected(result)
}

func (s *SQLStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.exec(ctx, s.db, `UPDATE users SET password_hash=$2, updated_at=$3 WHERE id=$1`, userID, passwordHash, s.now())
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	result, err := s.exec(ctx, s.db, `UPDATE users SET role=$2, updated_at=$3 WHERE id=$1`, userID, role, s.now())
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return requireAffected(result)
}

// RecordLogin shifts the previous login date into last_login_date.
func (s *SQLStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	result, err := s.exec(ctx, s.db, `
		UPDATE users SET last_login_date=login_date, login_date=$2
		WHERE id=$1
	`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=excluded.user_id, expires_at=excluded.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt.UTC(), s.now())
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *SQLStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.exec(ctx, s.db, `UPDATE refresh_sessions SET revoked_at=$2 WHERE token_hash=$1`, tokenHash, s.now())
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *SQLStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	row := s.queryRow(ctx, s.db, `
		SELECT u.id, u.username, u.name, u.surname, u.email, u.password_hash, u.role,
			u.login_date, u.last_login_date, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > $2
	`, tokenHash, s.now())
	user, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", classify(err))
	}
	return user, nil
}

func (s *SQLStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO revoked_access_tokens (jti, expires_at, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp.UTC(), s.now())
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *SQLStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.queryRow(ctx, s.db, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
