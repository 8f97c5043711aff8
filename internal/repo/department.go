package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/metroware/equip-ledger/internal/models"
)

// DepartmentRepo persists departments.
type DepartmentRepo struct {
	DB *sql.DB
}

func NewDepartmentRepo(db *sql.DB) *DepartmentRepo {
	return &DepartmentRepo{DB: db}
}

func (r *DepartmentRepo) Create(ctx context.Context, name, code string) (models.Department, error) {
	var d models.Department
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO departments (name, code)
		 VALUES ($1, $2)
		 RETURNING id, name, COALESCE(code, ''), created_at`,
		name, nullIfEmpty(code),
	).Scan(&d.ID, &d.Name, &d.Code, &d.CreatedAt)
	return d, err
}

func (r *DepartmentRepo) GetByID(ctx context.Context, id int) (models.Department, error) {
	var d models.Department
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(code, ''), created_at FROM departments WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.Code, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Department{}, errors.New("department not found")
	}
	return d, err
}

func (r *DepartmentRepo) List(ctx context.Context) ([]models.Department, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, name, COALESCE(code, ''), created_at FROM departments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Department
	for rows.Next() {
		var d models.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Code, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DepartmentRepo) UpdateByID(ctx context.Context, id int, name, code string) (models.Department, error) {
	var d models.Department
	err := r.DB.QueryRowContext(ctx,
		`UPDATE departments SET name = $1, code = $2 WHERE id = $3
		 RETURNING id, name, COALESCE(code, ''), created_at`,
		name, nullIfEmpty(code), id,
	).Scan(&d.ID, &d.Name, &d.Code, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Department{}, errors.New("department not found")
	}
	return d, err
}

func (r *DepartmentRepo) DeleteByID(ctx context.Context, id int) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("department not found")
	}
	return nil
}
