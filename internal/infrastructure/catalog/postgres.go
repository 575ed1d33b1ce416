package catalog

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type postgresCatalog struct {
	db *sqlx.DB
}

// NewPostgres projects product statuses into the local products table.
func NewPostgres(db *sqlx.DB) Catalog {
	return &postgresCatalog{db: db}
}

func (c *postgresCatalog) UpdateProductStatus(ctx context.Context, productID string, status ProductStatus) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO products (id, status, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = now()
	`, productID, status)
	if err != nil {
		return errors.Wrapf(err, "update product %s status", productID)
	}
	return nil
}
