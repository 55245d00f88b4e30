package repository

import (
	"context"
	"database/sql"

	"storefront/internal/entity"
)

const productColumns = `id, name, price, image_url, stock, description, created_at`

type ProductRepository struct {
	db DBTX
}

func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanProduct reads NULL image_url and description as empty strings; tables
// created before the migrations ran allow them.
func scanProduct(row rowScanner, p *entity.Product) error {
	var imageURL, description sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &imageURL, &p.Stock, &description, &p.CreatedAt); err != nil {
		return err
	}
	p.ImageURL = imageURL.String
	p.Description = description.String
	return nil
}

// GetProducts lists the catalog, most recently created first.
func (r *ProductRepository) GetProducts(ctx context.Context) ([]entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, translate("list products", err)
	}
	defer rows.Close()

	products := []entity.Product{}
	for rows.Next() {
		var product entity.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, translate("scan product", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list products", err)
	}

	return products, nil
}

func (r *ProductRepository) GetProductByID(ctx context.Context, id int64) (*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`

	product := &entity.Product{}
	err := scanProduct(r.db.QueryRowContext(ctx, query, id), product)
	if err != nil {
		return nil, translate("get product", err)
	}

	return product, nil
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	query := `INSERT INTO products (name, price, image_url, stock, description) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, product.Name, product.Price, product.ImageURL, product.Stock, product.Description)
	if err != nil {
		return nil, translate("create product", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, translate("create product", err)
	}

	return r.GetProductByID(ctx, id)
}

// UpdateProduct overwrites the editable fields and returns ErrNotFound when no
// product has the given id.
func (r *ProductRepository) UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	query := `UPDATE products SET name = ?, price = ?, image_url = ?, stock = ?, description = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, product.Name, product.Price, product.ImageURL, product.Stock, product.Description, product.ID)
	if err != nil {
		return nil, translate("update product", err)
	}

	// MySQL reports zero affected rows for an unchanged row, so existence is
	// checked with a read.
	return r.GetProductByID(ctx, product.ID)
}
