package domain

import "time"

// Product represents a catalog entry. The slug is derived from the brand
// name and title at creation time and is unique among active (non-deleted)
// products; SKU shares the same uniqueness scope.
type Product struct {
	ID           int64     `json:"product_id"`
	SKU          int64     `json:"product_sku"`
	BrandName    string    `json:"brand_name"`
	ProductTitle string    `json:"product_title"`
	ProductSlug  string    `json:"product_slug"`
	Quantity     int32     `json:"quantity"`
	IsDeleted    bool      `json:"is_deleted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User is an API account able to obtain access tokens.
// The password hash never leaves the server.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
