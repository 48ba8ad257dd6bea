package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/adeilh/go-rakh-weather/users"
)

const userColumns = `id, user_name, email, password_hash, roles, sentiment_analysis, created_at, updated_at`

// UserRepository persists users.User records inside PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

var _ users.Repository = (*UserRepository)(nil)

// NewUserRepository wraps an existing *sql.DB connection.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user users.User) error {
	const query = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.UserName,
		nullString(user.Email),
		user.PasswordHash,
		pq.StringArray(user.Roles),
		user.SentimentAnalysis,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return translateUserError(err)
}

func (r *UserRepository) Update(ctx context.Context, user users.User) error {
	const query = `UPDATE users SET email = $2, password_hash = $3, roles = $4, sentiment_analysis = $5, updated_at = $6 WHERE user_name = $1`
	res, err := r.db.ExecContext(ctx, query,
		user.UserName,
		nullString(user.Email),
		user.PasswordHash,
		pq.StringArray(user.Roles),
		user.SentimentAnalysis,
		user.UpdatedAt,
	)
	if err != nil {
		return translateUserError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) FindByUserName(ctx context.Context, userName string) (users.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_name = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, userName))
	if errors.Is(err, sql.ErrNoRows) {
		return users.User{}, users.ErrUserNotFound
	}
	return user, err
}

func (r *UserRepository) List(ctx context.Context) ([]users.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY user_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	defer rows.Close()

	var out []users.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	return out, nil
}

func (r *UserRepository) DeleteByUserName(ctx context.Context, userName string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE user_name = $1`, userName)
	if err != nil {
		return fmt.Errorf("postgres: delete user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (users.User, error) {
	var (
		user  users.User
		email sql.NullString
		roles pq.StringArray
	)
	err := row.Scan(
		&user.ID,
		&user.UserName,
		&email,
		&user.PasswordHash,
		&roles,
		&user.SentimentAnalysis,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return users.User{}, err
	}
	user.Email = email.String
	user.Roles = []string(roles)
	return user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// translateUserError maps unique violations onto the users sentinels.
func translateUserError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "users_user_name_key":
			return users.ErrUserNameTaken
		case "users_email_key":
			return users.ErrEmailTaken
		}
		return fmt.Errorf("%w: %s", users.ErrInvalidUser, pqErr.Message)
	}
	return err
}
