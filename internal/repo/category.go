package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/metroware/equip-ledger/internal/models"
)

// CategoryRepo persists equipment categories.
type CategoryRepo struct {
	DB *sql.DB
}

func NewCategoryRepo(db *sql.DB) *CategoryRepo {
	return &CategoryRepo{DB: db}
}

func (r *CategoryRepo) Create(ctx context.Context, name, code string) (models.Category, error) {
	var c models.Category
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO categories (name, code)
		 VALUES ($1, $2)
		 RETURNING id, name, COALESCE(code, ''), created_at`,
		name, nullIfEmpty(code),
	).Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt)
	return c, err
}

func (r *CategoryRepo) GetByID(ctx context.Context, id int) (models.Category, error) {
	var c models.Category
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(code, ''), created_at FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Category{}, errors.New("category not found")
	}
	return c, err
}

func (r *CategoryRepo) List(ctx context.Context) ([]models.Category, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, name, COALESCE(code, ''), created_at FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CategoryRepo) UpdateByID(ctx context.Context, id int, name, code string) (models.Category, error) {
	var c models.Category
	err := r.DB.QueryRowContext(ctx,
		`UPDATE categories SET name = $1, code = $2 WHERE id = $3
		 RETURNING id, name, COALESCE(code, ''), created_at`,
		name, nullIfEmpty(code), id,
	).Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Category{}, errors.New("category not found")
	}
	return c, err
}

func (r *CategoryRepo) DeleteByID(ctx context.Context, id int) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("category not found")
	}
	return nil
}
