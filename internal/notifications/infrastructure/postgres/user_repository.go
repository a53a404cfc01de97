package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	notifications "signal-alerts/internal/notifications/domain"
)

const defaultUsersTable = "users"

// UserRepository reads notification targets.
type UserRepository struct {
	db    *sql.DB
	table string
}

// NewUserRepository constructs a repository. An empty table keeps the default.
func NewUserRepository(db *sql.DB, table string) *UserRepository {
	if table == "" {
		table = defaultUsersTable
	}
	return &UserRepository{db: db, table: table}
}

// ListActiveUsers returns every active user; Email is empty when none is on file.
func (r *UserRepository) ListActiveUsers(ctx context.Context) ([]notifications.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT user_id, email
FROM %s
WHERE is_active
ORDER BY user_id`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []notifications.User
	for rows.Next() {
		var user notifications.User
		var email sql.NullString
		if err := rows.Scan(&user.ID, &email); err != nil {
			return nil, err
		}
		user.IsActive = true
		if email.Valid {
			user.Email = email.String
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
