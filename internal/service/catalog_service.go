package service

import (
	"context"
	"errors"

	"storefront/internal/entity"
)

// ProductCache is the read-through cache in front of product lookups.
// Get returns an error on a miss.
type ProductCache interface {
	Get(ctx context.Context, id int64) (*entity.Product, error)
	Set(ctx context.Context, product *entity.Product) error
	Delete(ctx context.Context, id int64) error
}

type ProductStore interface {
	GetProducts(ctx context.Context) ([]entity.Product, error)
	GetProductByID(ctx context.Context, id int64) (*entity.Product, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
}

type CatalogService struct {
	productRepo ProductStore
	cache       ProductCache
}

// NewCatalogService creates a new instance of CatalogService. cache may be nil.
func NewCatalogService(productRepo ProductStore, cache ProductCache) *CatalogService {
	return &CatalogService{
		productRepo: productRepo,
		cache:       cache,
	}
}

// ListProducts returns the catalog newest first; an empty catalog is an empty
// slice, not an error.
func (p *CatalogService) ListProducts(ctx context.Context) ([]entity.Product, error) {
	products, err := p.productRepo.GetProducts(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error getting products")
		return nil, entity.Infra("list products", err)
	}
	if products == nil {
		products = []entity.Product{}
	}
	return products, nil
}

// GetProduct reads through the cache. Cache failures are logged and never
// fail the lookup.
func (p *CatalogService) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	if id <= 0 {
		return nil, &entity.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}

	if p.cache != nil {
		product, err := p.cache.Get(ctx, id)
		if err == nil {
			return product, nil
		}
		logger.Debug().Err(err).Msgf("Product %d not served from cache", id)
	}

	product, err := p.productRepo.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, err
		}
		logger.Error().Err(err).Msgf("Error getting product by ID %d", id)
		return nil, entity.Infra("get product", err)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, product); err != nil {
			logger.Error().Err(err).Msgf("Error setting product %d in cache", id)
		}
	}

	return product, nil
}

func (p *CatalogService) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}
	created, err := p.productRepo.CreateProduct(ctx, product)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating product")
		return nil, entity.Infra("create product", err)
	}
	return created, nil
}

func (p *CatalogService) UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if product.ID <= 0 {
		return nil, &entity.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	if err := product.Validate(); err != nil {
		return nil, err
	}

	updated, err := p.productRepo.UpdateProduct(ctx, product)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, err
		}
		logger.Error().Err(err).Msgf("Error updating product %d", product.ID)
		return nil, entity.Infra("update product", err)
	}

	if p.cache != nil {
		if err := p.cache.Delete(ctx, product.ID); err != nil {
			logger.Error().Err(err).Msgf("Error deleting product %d from cache", product.ID)
		}
	}
	return updated, nil
}

// PreWarmCache loads every product into the cache and returns how many were
// written.
func (p *CatalogService) PreWarmCache(ctx context.Context) (int, error) {
	if p.cache == nil {
		return 0, nil
	}
	products, err := p.ListProducts(ctx)
	if err != nil {
		return 0, err
	}

	warmed := 0
	for i := range products {
		if err := p.cache.Set(ctx, &products[i]); err != nil {
			logger.Error().Err(err).Msgf("Error setting product %d in cache", products[i].ID)
			continue
		}
		warmed++
	}
	return warmed, nil
}

// EvictProduct drops a product snapshot, e.g. after another instance sold it.
func (p *CatalogService) EvictProduct(ctx context.Context, id int64) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Delete(ctx, id)
}
