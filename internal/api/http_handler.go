package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"catalog-service/internal/auth"
	"catalog-service/internal/domain"
	"catalog-service/internal/slug"
	"catalog-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// maxSlugCreateAttempts bounds how often a create is retried after losing
// the probe-then-insert race on the slug's partial unique index.
const maxSlugCreateAttempts = 3

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	productStore store.ProductStorer
	userStore    store.UserStorer
	jwtManager   *auth.JWTManager
	resolver     *slug.Resolver
	validate     *validator.Validate
}

// NewHTTPHandler creates a new HTTPHandler with dependencies. The slug
// resolver probes through the product store's active-scope lookup.
func NewHTTPHandler(ps store.ProductStorer, us store.UserStorer, jwtManager *auth.JWTManager) *HTTPHandler {
	return &HTTPHandler{
		productStore: ps,
		userStore:    us,
		jwtManager:   jwtManager,
		resolver:     slug.NewResolver(ps, nil),
		validate:     validator.New(),
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil { // Avoid writing a body for 204 No Content
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("ERROR: Failed to encode JSON response: %v", err)
		}
	}
}

// --- Auth Handlers ---

// RegisterInput defines the expected input for user registration.
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (h *HTTPHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		log.Printf("ERROR: RegisterUser failed to hash password: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	created, err := h.userStore.CreateUser(r.Context(), &domain.User{
		Username:       input.Username,
		HashedPassword: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			respondWithError(w, http.StatusBadRequest, "Username already registered")
			return
		}
		log.Printf("ERROR: RegisterUser store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if input.Username == "" || input.Password == "" {
		respondWithError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.userStore.GetUserByUsername(r.Context(), input.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			respondWithError(w, http.StatusUnauthorized, "Incorrect username or password")
			return
		}
		log.Printf("ERROR: Login store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to authenticate")
		return
	}

	if err := auth.VerifyPassword(user.HashedPassword, input.Password); err != nil {
		respondWithError(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		log.Printf("ERROR: Login failed to sign token: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to authenticate")
		return
	}

	respondWithJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// --- Product Handlers ---

// ProductCreateInput defines the expected input for creating a product.
// The slug is never accepted here; it is derived from brand and title.
type ProductCreateInput struct {
	SKU          int64  `json:"product_sku" validate:"required,gt=0"`
	BrandName    string `json:"brand_name" validate:"required,max=255"`
	ProductTitle string `json:"product_title" validate:"required,max=255"`
	Quantity     int32  `json:"quantity" validate:"gte=0"`
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	// Duplicate SKU is rejected before any slug work begins.
	if _, err := h.productStore.GetProductBySKU(r.Context(), input.SKU); err == nil {
		respondWithError(w, http.StatusConflict, store.ErrProductSKUExists.Error())
		return
	} else if !errors.Is(err, store.ErrProductNotFound) {
		log.Printf("ERROR: CreateProduct SKU lookup failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}

	baseSlug := slug.Generate(input.BrandName, input.ProductTitle)
	if baseSlug == "" {
		baseSlug = slug.Fallback(input.SKU)
	}

	for attempt := 1; attempt <= maxSlugCreateAttempts; attempt++ {
		finalSlug, err := h.resolver.Resolve(r.Context(), baseSlug)
		if err != nil {
			log.Printf("ERROR: CreateProduct slug resolution failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create product")
			return
		}

		created, err := h.productStore.CreateProduct(r.Context(), &domain.Product{
			SKU:          input.SKU,
			BrandName:    input.BrandName,
			ProductTitle: input.ProductTitle,
			ProductSlug:  finalSlug,
			Quantity:     input.Quantity,
		})
		if err == nil {
			productsCreated.Inc()
			respondWithJSON(w, http.StatusCreated, created)
			return
		}
		if errors.Is(err, store.ErrProductSlugExists) {
			// Lost the probe-then-insert race; resolve again against
			// fresh persisted state.
			log.Printf("WARN: slug %q taken between probe and insert, retrying (attempt %d)", finalSlug, attempt)
			continue
		}
		if errors.Is(err, store.ErrProductSKUExists) {
			respondWithError(w, http.StatusConflict, store.ErrProductSKUExists.Error())
			return
		}
		log.Printf("ERROR: CreateProduct store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}

	respondWithError(w, http.StatusServiceUnavailable, "Could not allocate a unique slug, please retry")
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	qParams := r.URL.Query()

	limit, err := strconv.Atoi(qParams.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10 // Default page size
	}
	if limit > 1000 {
		limit = 1000
	}
	skip, err := strconv.Atoi(qParams.Get("skip"))
	if err != nil || skip < 0 {
		skip = 0
	}

	params := store.ListProductsParams{Limit: limit, Offset: skip}

	if brand := qParams.Get("brand"); brand != "" {
		params.Brand = &brand
	}
	if search := qParams.Get("search"); search != "" {
		params.Search = &search
	}
	if deletedStr := qParams.Get("include_deleted"); deletedStr != "" {
		b, err := strconv.ParseBool(deletedStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid include_deleted value: must be true or false")
			return
		}
		params.IncludeDeleted = b
	}

	products, totalCount, err := h.productStore.ListProducts(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: ListProducts store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}

	response := struct {
		Data  []domain.Product `json:"data"`
		Total int              `json:"total"`
		Limit int              `json:"limit"`
		Skip  int              `json:"skip"`
	}{
		Data:  products,
		Total: totalCount,
		Limit: limit,
		Skip:  skip,
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "productId")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
			return
		}
		log.Printf("ERROR: GetProductByID store operation for ID %d failed: %v", productID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) GetProductBySlug(w http.ResponseWriter, r *http.Request) {
	productSlug := chi.URLParam(r, "productSlug")
	if productSlug == "" {
		respondWithError(w, http.StatusBadRequest, "Product slug is required")
		return
	}

	product, err := h.productStore.GetProductBySlug(r.Context(), productSlug)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
			return
		}
		log.Printf("ERROR: GetProductBySlug store operation for slug %q failed: %v", productSlug, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) GetProductBySKU(w http.ResponseWriter, r *http.Request) {
	skuStr := chi.URLParam(r, "productSku")
	sku, err := strconv.ParseInt(skuStr, 10, 64)
	if err != nil || sku <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product SKU format")
		return
	}

	product, err := h.productStore.GetProductBySKU(r.Context(), sku)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
			return
		}
		log.Printf("ERROR: GetProductBySKU store operation for SKU %d failed: %v", sku, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

// ProductUpdateInput defines the expected input for updating a product.
// All fields are optional; omitted fields keep their current values. This
// is the one path that may set the slug directly.
type ProductUpdateInput struct {
	SKU          *int64  `json:"product_sku" validate:"omitempty,gt=0"`
	BrandName    *string `json:"brand_name" validate:"omitempty,max=255"`
	ProductTitle *string `json:"product_title" validate:"omitempty,max=255"`
	ProductSlug  *string `json:"product_slug" validate:"omitempty,max=255"`
	Quantity     *int32  `json:"quantity" validate:"omitempty,gte=0"`
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "productId")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	var input ProductUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	existing, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
			return
		}
		log.Printf("ERROR: UpdateProduct lookup for ID %d failed: %v", productID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update product")
		return
	}

	// Merge provided fields over the current record.
	updated := *existing
	if input.SKU != nil {
		updated.SKU = *input.SKU
	}
	if input.BrandName != nil {
		updated.BrandName = *input.BrandName
	}
	if input.ProductTitle != nil {
		updated.ProductTitle = *input.ProductTitle
	}
	if input.ProductSlug != nil {
		updated.ProductSlug = *input.ProductSlug
	}
	if input.Quantity != nil {
		updated.Quantity = *input.Quantity
	}

	// Pre-check a slug change against the active scope for a friendlier
	// 409; the partial unique index remains the authoritative guard.
	if updated.ProductSlug != existing.ProductSlug {
		taken, err := h.productStore.SlugTaken(r.Context(), updated.ProductSlug)
		if err != nil {
			log.Printf("ERROR: UpdateProduct slug check for ID %d failed: %v", productID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update product")
			return
		}
		if taken {
			respondWithError(w, http.StatusConflict, store.ErrProductSlugExists.Error())
			return
		}
	}

	result, err := h.productStore.UpdateProduct(r.Context(), &updated)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrProductNotFound):
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		case errors.Is(err, store.ErrProductSKUExists):
			respondWithError(w, http.StatusConflict, store.ErrProductSKUExists.Error())
		case errors.Is(err, store.ErrProductSlugExists):
			respondWithError(w, http.StatusConflict, store.ErrProductSlugExists.Error())
		default:
			log.Printf("ERROR: UpdateProduct store operation for ID %d failed: %v", productID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update product")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "productId")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	if err := h.productStore.SoftDeleteProduct(r.Context(), productID); err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
			return
		}
		log.Printf("ERROR: DeleteProduct store operation for ID %d failed: %v", productID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete product")
		return
	}

	productsDeleted.Inc()
	if userID, ok := UserFromContext(r.Context()); ok {
		log.Printf("INFO: Product %d soft deleted by user %d", productID, userID)
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

func (h *HTTPHandler) GetLowStockProducts(w http.ResponseWriter, r *http.Request) {
	threshold := int32(10) // Default threshold
	if thresholdStr := r.URL.Query().Get("threshold"); thresholdStr != "" {
		parsed, err := strconv.ParseInt(thresholdStr, 10, 32)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid threshold value")
			return
		}
		threshold = int32(parsed)
	}

	products, err := h.productStore.GetLowStockProducts(r.Context(), threshold)
	if err != nil {
		log.Printf("ERROR: GetLowStockProducts store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve low stock products")
		return
	}

	if products == nil {
		products = []domain.Product{}
	}
	respondWithJSON(w, http.StatusOK, products)
}

// StockUpdateInput defines the expected input for a stock update.
type StockUpdateInput struct {
	Quantity *int32 `json:"quantity" validate:"required,gte=0"`
}

func (h *HTTPHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "productId")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	var input StockUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	updated, err := h.productStore.UpdateStock(r.Context(), productID, *input.Quantity)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
			return
		}
		log.Printf("ERROR: UpdateStock store operation for ID %d failed: %v", productID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update stock")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service. Product routes
// require a Bearer token; auth routes are public.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", h.RegisterUser) // POST /api/v1/auth/register
		r.Post("/token", h.Login)           // POST /api/v1/auth/token
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Use(RequireAuth(h.jwtManager))

		r.Post("/", h.CreateProduct) // POST /api/v1/products
		r.Get("/", h.ListProducts)   // GET /api/v1/products
		// Keep these ahead of the {productId} route so the literal
		// segments are not parsed as IDs.
		r.Get("/low-stock", h.GetLowStockProducts)      // GET /api/v1/products/low-stock
		r.Get("/slug/{productSlug}", h.GetProductBySlug) // GET /api/v1/products/slug/{productSlug}
		r.Get("/sku/{productSku}", h.GetProductBySKU)    // GET /api/v1/products/sku/{productSku}

		r.Route("/{productId}", func(r chi.Router) {
			r.Get("/", h.GetProductByID)      // GET /api/v1/products/{productId}
			r.Put("/", h.UpdateProduct)       // PUT /api/v1/products/{productId}
			r.Delete("/", h.DeleteProduct)    // DELETE /api/v1/products/{productId}
			r.Patch("/stock", h.UpdateStock)  // PATCH /api/v1/products/{productId}/stock
		})
	})
}
