package store

import (
	"context"

	"catalog-service/internal/domain"
)

// ListProductsParams holds pagination and filter parameters for listing
// products. IncludeDeleted switches to the full audit view; every other
// path sees active products only.
type ListProductsParams struct {
	Limit          int
	Offset         int
	Brand          *string // case-insensitive substring match on brand_name
	Search         *string // substring match across title, slug and SKU
	IncludeDeleted bool
}

// ProductStorer defines the database operations for products. Lookups
// implicitly filter out soft-deleted rows unless stated otherwise.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku int64) (*domain.Product, error)
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) // products plus total count
	UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	SoftDeleteProduct(ctx context.Context, id int64) error
	UpdateStock(ctx context.Context, id int64, quantity int32) (*domain.Product, error)
	GetLowStockProducts(ctx context.Context, threshold int32) ([]domain.Product, error)

	// SlugTaken reports whether an active product already holds slug.
	// It is the probe used by slug resolution.
	SlugTaken(ctx context.Context, slug string) (bool, error)
}

// UserStorer defines the database operations for API users.
type UserStorer interface {
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}
