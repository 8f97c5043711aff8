package repo

import (
	"context"
	"database/sql"

	"github.com/metroware/equip-ledger/internal/models"
)

type UserRepo struct {
	DB *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

// Create inserts a user. passwordHash may be empty, in which case the account
// has no password yet. role defaults to models.RoleUser when empty.
func (r *UserRepo) Create(ctx context.Context, username, passwordHash, role string) (*models.User, error) {
	if role == "" {
		role = models.RoleUser
	}
	user := &models.User{}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, role)
		 VALUES ($1, $2, $3)
		 RETURNING id, username, COALESCE(password_hash, ''), role`,
		username, nullIfEmpty(passwordHash), role,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	return r.getBy(ctx, `SELECT id, username, COALESCE(password_hash, ''), role FROM users WHERE id = $1`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getBy(ctx, `SELECT id, username, COALESCE(password_hash, ''), role FROM users WHERE username = $1`, username)
}

func (r *UserRepo) getBy(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.DB.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, username, COALESCE(password_hash, ''), role FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
