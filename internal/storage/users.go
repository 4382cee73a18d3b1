package storage

import (
	"context"
	"fmt"

	"finanzapp/internal/core"
)

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.exec(ctx, r.db,
		`INSERT INTO users (id, username, api_key, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.APIKey, toMillis(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.NewValidationError("username", "already taken")
		}
		return &core.PersistenceError{Op: "create user", Err: err}
	}
	return nil
}

// UserByAPIKey resolves the owner of an API key.
func (r *Repository) UserByAPIKey(ctx context.Context, key string) (core.User, error) {
	return r.userBy(ctx, "api_key", key)
}

func (r *Repository) UserByUsername(ctx context.Context, username string) (core.User, error) {
	return r.userBy(ctx, "username", username)
}

func (r *Repository) UserByID(ctx context.Context, id string) (core.User, error) {
	return r.userBy(ctx, "id", id)
}

func (r *Repository) userBy(ctx context.Context, column, value string) (core.User, error) {
	var (
		u       core.User
		created int64
	)
	err := r.queryRow(ctx, r.db,
		fmt.Sprintf(`SELECT id, username, api_key, created_at FROM users WHERE %s = ?`, column),
		value).Scan(&u.ID, &u.Username, &u.APIKey, &created)
	if err != nil {
		return core.User{}, r.wrap("get user", err)
	}
	u.CreatedAt = r.fromMillis(created)
	return u, nil
}

func (r *Repository) SetAPIKey(ctx context.Context, userID, key string) error {
	res, err := r.exec(ctx, r.db, `UPDATE users SET api_key = ? WHERE id = ?`, key, userID)
	if err != nil {
		return r.wrap("set api key", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ListUsers returns every user, oldest first.
func (r *Repository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.query(ctx, r.db, `SELECT id, username, api_key, created_at FROM users ORDER BY created_at, username`)
	if err != nil {
		return nil, r.wrap("list users", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var (
			u       core.User
			created int64
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.APIKey, &created); err != nil {
			return nil, r.wrap("scan user", err)
		}
		u.CreatedAt = r.fromMillis(created)
		users = append(users, u)
	}
	return users, r.wrap("list users", rows.Err())
}
