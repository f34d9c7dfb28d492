package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-booking/internal/models"
	"ms-booking/internal/users"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// DB implements users.Store on bun.
type DB struct {
	Bun bun.IDB
}

func New(db bun.IDB) *DB {
	return &DB{Bun: db}
}

func (d *DB) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	out := []models.User{}
	q := d.Bun.NewSelect().Model(&out).Order("u.created_at DESC")
	if role != "" {
		q = q.Where("u.role = ?", role)
	}
	err := q.Scan(ctx)
	return out, err
}

func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := d.Bun.NewSelect().Model(&u).Where("u.id = ?", id).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %w", models.ErrRecordNotFound, err)
		}
		return nil, err
	}
	return &u, nil
}

func (d *DB) CountAdmins(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().Model((*models.User)(nil)).Where("u.role = ?", models.RoleAdmin).Count(ctx)
}

func (d *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := d.Bun.NewDelete().Model((*models.User)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// WithAdminLock locks every admin row on Postgres so two deletions cannot both see a
// second admin. SQLite serialises writers on its own.
func (d *DB) WithAdminLock(ctx context.Context, fn func(ctx context.Context, tx users.Tx) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if tx.Dialect().Name() == dialect.PG {
			var ids []string
			err := tx.NewSelect().
				Model((*models.User)(nil)).
				ColumnExpr("u.id").
				Where("u.role = ?", models.RoleAdmin).
				For("UPDATE").
				Scan(ctx, &ids)
			if err != nil {
				return fmt.Errorf("lock admins: %w", err)
			}
		}
		return fn(ctx, &DB{Bun: tx})
	})
}
