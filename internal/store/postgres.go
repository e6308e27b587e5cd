package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"

	"catalog-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrProductNotFound   = errors.New("store: product not found")
	ErrProductSKUExists  = errors.New("store: product SKU already in use by an active product")
	ErrProductSlugExists = errors.New("store: product slug already in use by an active product")
	ErrUserNotFound      = errors.New("store: user not found")
	ErrUsernameExists    = errors.New("store: username already registered")
)

const productColumns = "id, sku, brand_name, product_title, product_slug, quantity, is_deleted, created_at, updated_at"

// PostgresStore implements the ProductStorer and UserStorer interfaces
// using PostgreSQL. Uniqueness of sku and product_slug over the active
// scope is enforced by partial unique indexes (see schema.sql); this layer
// translates their violations into sentinel errors.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// mapUniqueViolation translates a partial-unique-index violation into the
// matching sentinel error, or returns nil when err is something else.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	switch {
	case strings.Contains(pqErr.Constraint, "products_active_sku_key") || strings.Contains(pqErr.Detail, "Key (sku)"):
		return ErrProductSKUExists
	case strings.Contains(pqErr.Constraint, "products_active_slug_key") || strings.Contains(pqErr.Detail, "Key (product_slug)"):
		return ErrProductSlugExists
	case strings.Contains(pqErr.Constraint, "users_username_key") || strings.Contains(pqErr.Detail, "Key (username)"):
		return ErrUsernameExists
	}
	return nil
}

func scanProduct(row interface{ Scan(...interface{}) error }, p *domain.Product) error {
	return row.Scan(
		&p.ID, &p.SKU, &p.BrandName, &p.ProductTitle, &p.ProductSlug,
		&p.Quantity, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt,
	)
}

// --- ProductStorer Implementation ---

func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		INSERT INTO products (sku, brand_name, product_title, product_slug, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, sku, brand_name, product_title, product_slug, quantity, is_deleted, created_at, updated_at;
	`
	row := s.db.QueryRowContext(ctx, query,
		product.SKU, product.BrandName, product.ProductTitle, product.ProductSlug, product.Quantity,
	)

	var created domain.Product
	if err := scanProduct(row, &created); err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, sku, brand_name, product_title, product_slug, quantity, is_deleted, created_at, updated_at
		FROM products
		WHERE id = $1 AND is_deleted = FALSE;
	`
	var product domain.Product
	if err := scanProduct(s.db.QueryRowContext(ctx, query, id), &product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}
	return &product, nil
}

func (s *PostgresStore) GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	query := `
		SELECT id, sku, brand_name, product_title, product_slug, quantity, is_deleted, created_at, updated_at
		FROM products
		WHERE product_slug = $1 AND is_deleted = FALSE;
	`
	var product domain.Product
	if err := scanProduct(s.db.QueryRowContext(ctx, query, slug), &product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductBySlug failed to scan row: %w", err)
	}
	return &product, nil
}

func (s *PostgresStore) GetProductBySKU(ctx context.Context, sku int64) (*domain.Product, error) {
	query := `
		SELECT id, sku, brand_name, product_title, product_slug, quantity, is_deleted, created_at, updated_at
		FROM products
		WHERE sku = $1 AND is_deleted = FALSE;
	`
	var product domain.Product
	if err := scanProduct(s.db.QueryRowContext(ctx, query, sku), &product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductBySKU failed to scan row: %w", err)
	}
	return &product, nil
}

// SlugTaken reports whether an active product already holds slug. This is
// the probe behind slug uniqueness resolution; soft-deleted holders do
// not count, so a deleted product's slug is free for reuse.
func (s *PostgresStore) SlugTaken(ctx context.Context, slug string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM products WHERE product_slug = $1 AND is_deleted = FALSE);`
	var taken bool
	if err := s.db.QueryRowContext(ctx, query, slug).Scan(&taken); err != nil {
		return false, fmt.Errorf("store: SlugTaken failed to query: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	var queryArgs []interface{}
	var whereClauses []string
	argID := 1

	if !params.IncludeDeleted {
		whereClauses = append(whereClauses, "is_deleted = FALSE")
	}
	if params.Brand != nil && *params.Brand != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("brand_name ILIKE $%d", argID))
		queryArgs = append(queryArgs, "%"+*params.Brand+"%")
		argID++
	}
	if params.Search != nil && *params.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(product_title ILIKE $%d OR product_slug ILIKE $%d OR sku::TEXT ILIKE $%d)", argID, argID+1, argID+2))
		searchTerm := "%" + *params.Search + "%"
		queryArgs = append(queryArgs, searchTerm, searchTerm, searchTerm)
		argID += 3
	}

	whereCondition := ""
	if len(whereClauses) > 0 {
		whereCondition = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM products" + whereCondition
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, queryArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to count products: %w", err)
	}

	if totalCount == 0 {
		return []domain.Product{}, 0, nil
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM products%s ORDER BY id ASC LIMIT $%d OFFSET $%d",
		productColumns, whereCondition, argID, argID+1)
	finalQueryArgs := append(queryArgs, params.Limit, params.Offset)

	rows, err := s.db.QueryContext(ctx, dataQuery, finalQueryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, params.Limit)
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, 0, fmt.Errorf("store: ListProducts failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts iteration error: %w", err)
	}

	return products, totalCount, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		UPDATE products
		SET sku = $1, brand_name = $2, product_title = $3, product_slug = $4, quantity = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $6 AND is_deleted = FALSE
		RETURNING id, sku, brand_name, product_title, product_slug, quantity, is_deleted, created_at, updated_at;
	`
	row := s.db.QueryRowContext(ctx, query,
		product.SKU, product.BrandName, product.ProductTitle, product.ProductSlug, product.Quantity, product.ID,
	)

	var updated domain.Product
	if err := scanProduct(row, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		if mapped := mapUniqueViolation(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("store: UpdateProduct failed to scan row: %w", err)
	}
	return &updated, nil
}

// SoftDeleteProduct retires an active product. The row stays queryable in
// the audit view but drops out of the uniqueness scope, freeing its sku
// and slug for a later creation.
func (s *PostgresStore) SoftDeleteProduct(ctx context.Context, id int64) error {
	query := `UPDATE products SET is_deleted = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND is_deleted = FALSE;`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("store: SoftDeleteProduct failed to execute update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: SoftDeleteProduct failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// UpdateStock sets the absolute quantity of an active product. Callers
// validate non-negativity; the schema CHECK is the backstop.
func (s *PostgresStore) UpdateStock(ctx context.Context, id int64, quantity int32) (*domain.Product, error) {
	query := `
		UPDATE products
		SET quantity = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND is_deleted = FALSE
		RETURNING id, sku, brand_name, product_title, product_slug, quantity, is_deleted, created_at, updated_at;
	`
	var updated domain.Product
	if err := scanProduct(s.db.QueryRowContext(ctx, query, quantity, id), &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: UpdateStock failed to scan row: %w", err)
	}
	return &updated, nil
}

func (s *PostgresStore) GetLowStockProducts(ctx context.Context, threshold int32) ([]domain.Product, error) {
	query := `
		SELECT id, sku, brand_name, product_title, product_slug, quantity, is_deleted, created_at, updated_at
		FROM products
		WHERE is_deleted = FALSE AND quantity <= $1
		ORDER BY quantity ASC;
	`
	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("store: GetLowStockProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("store: GetLowStockProducts failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: GetLowStockProducts iteration error: %w", err)
	}
	return products, nil
}

// --- UserStorer Implementation ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (username, hashed_password)
		VALUES ($1, $2)
		RETURNING id, username, hashed_password, created_at;
	`
	var created domain.User
	err := s.db.QueryRowContext(ctx, query, user.Username, user.HashedPassword).Scan(
		&created.ID, &created.Username, &created.HashedPassword, &created.CreatedAt,
	)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("store: CreateUser failed to scan row: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, username, hashed_password, created_at FROM users WHERE username = $1;`
	var user domain.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.HashedPassword, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: GetUserByUsername failed to scan row: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		log.Println("INFO: Closing database connection pool...")
		if err := s.db.Close(); err != nil {
			log.Printf("ERROR: Failed to close database connection pool: %v", err)
			return err
		}
		log.Println("INFO: Database connection pool closed.")
	}
	return nil
}
