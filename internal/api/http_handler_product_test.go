package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-service/internal/auth"
	"catalog-service/internal/domain"
	"catalog-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProductStorer is a mock implementation of store.ProductStorer
type MockProductStorer struct {
	mock.Mock
}

func (m *MockProductStorer) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) GetProductBySKU(ctx context.Context, sku int64) (*domain.Product, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) ListProducts(ctx context.Context, params store.ListProductsParams) ([]domain.Product, int, error) {
	args := m.Called(ctx, params)
	var products []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		products = arg0.([]domain.Product)
	}
	return products, args.Int(1), args.Error(2)
}

func (m *MockProductStorer) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) SoftDeleteProduct(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockProductStorer) UpdateStock(ctx context.Context, id int64, quantity int32) (*domain.Product, error) {
	args := m.Called(ctx, id, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) GetLowStockProducts(ctx context.Context, threshold int32) ([]domain.Product, error) {
	args := m.Called(ctx, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *MockProductStorer) SlugTaken(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}

// MockUserStorer is a mock implementation of store.UserStorer
type MockUserStorer struct {
	mock.Mock
}

func (m *MockUserStorer) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserStorer) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

var testJWTManager = auth.NewJWTManager("test-secret", 30*time.Minute)

// Helper for setting up tests with a chi router and handler
func setupTestChiServer(t *testing.T, ps store.ProductStorer, us store.UserStorer) *httptest.Server {
	handler := NewHTTPHandler(ps, us, testJWTManager)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	return httptest.NewServer(router)
}

func authedRequest(t *testing.T, method, url string, body []byte) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)

	token, err := testJWTManager.GenerateToken(1, "tester")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHTTPHandler_CreateProduct_Success(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	// No active product holds this SKU or the derived base slug.
	mockStore.On("GetProductBySKU", mock.Anything, int64(1001)).Return(nil, store.ErrProductNotFound)
	mockStore.On("SlugTaken", mock.Anything, "cold-shoulder-red-dress").Return(false, nil)

	expected := &domain.Product{
		ID:           1,
		SKU:          1001,
		BrandName:    "Next",
		ProductTitle: "Cold shoulder red dress",
		ProductSlug:  "cold-shoulder-red-dress",
		Quantity:     25,
	}
	mockStore.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ProductSlug == "cold-shoulder-red-dress" && p.SKU == 1001
	})).Return(expected, nil)

	payload, _ := json.Marshal(ProductCreateInput{
		SKU:          1001,
		BrandName:    "Next",
		ProductTitle: "Cold shoulder red dress",
		Quantity:     25,
	})
	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost, server.URL+"/api/v1/products/", payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "cold-shoulder-red-dress", created.ProductSlug)

	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateProduct_SlugCollisionGetsSuffix(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	mockStore.On("GetProductBySKU", mock.Anything, int64(1002)).Return(nil, store.ErrProductNotFound)
	// The identical (brand, title) was created before; base is occupied.
	mockStore.On("SlugTaken", mock.Anything, "cold-shoulder-red-dress").Return(true, nil)
	mockStore.On("SlugTaken", mock.Anything, "cold-shoulder-red-dress-1").Return(false, nil)

	expected := &domain.Product{ID: 2, SKU: 1002, ProductSlug: "cold-shoulder-red-dress-1"}
	mockStore.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ProductSlug == "cold-shoulder-red-dress-1"
	})).Return(expected, nil)

	payload, _ := json.Marshal(ProductCreateInput{
		SKU:          1002,
		BrandName:    "Next",
		ProductTitle: "Cold shoulder red dress",
	})
	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost, server.URL+"/api/v1/products/", payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "cold-shoulder-red-dress-1", created.ProductSlug)

	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateProduct_DuplicateSKU(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	mockStore.On("GetProductBySKU", mock.Anything, int64(1001)).
		Return(&domain.Product{ID: 1, SKU: 1001}, nil)

	payload, _ := json.Marshal(ProductCreateInput{
		SKU:          1001,
		BrandName:    "Next",
		ProductTitle: "Cold shoulder red dress",
	})
	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost, server.URL+"/api/v1/products/", payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	// Slug work must not start for a duplicate SKU.
	mockStore.AssertNotCalled(t, "SlugTaken", mock.Anything, mock.Anything)
	mockStore.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
}

func TestHTTPHandler_CreateProduct_EmptyDerivationFallsBackToSKU(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	mockStore.On("GetProductBySKU", mock.Anything, int64(555)).Return(nil, store.ErrProductNotFound)
	mockStore.On("SlugTaken", mock.Anything, "product-555").Return(false, nil)

	expected := &domain.Product{ID: 5, SKU: 555, ProductSlug: "product-555"}
	mockStore.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ProductSlug == "product-555"
	})).Return(expected, nil)

	payload, _ := json.Marshal(ProductCreateInput{
		SKU:          555,
		BrandName:    "Next",
		ProductTitle: "???", // no tokenizable content
	})
	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost, server.URL+"/api/v1/products/", payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateProduct_RetriesAfterInsertRace(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	mockStore.On("GetProductBySKU", mock.Anything, int64(1003)).Return(nil, store.ErrProductNotFound)

	// First resolution sees the base free, but the insert loses the race
	// on the partial unique index. The second resolution observes the
	// slug as taken and moves to the numbered suffix.
	mockStore.On("SlugTaken", mock.Anything, "cold-shoulder-red-dress").Return(false, nil).Once()
	mockStore.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ProductSlug == "cold-shoulder-red-dress"
	})).Return(nil, store.ErrProductSlugExists).Once()

	mockStore.On("SlugTaken", mock.Anything, "cold-shoulder-red-dress").Return(true, nil).Once()
	mockStore.On("SlugTaken", mock.Anything, "cold-shoulder-red-dress-1").Return(false, nil).Once()
	expected := &domain.Product{ID: 3, SKU: 1003, ProductSlug: "cold-shoulder-red-dress-1"}
	mockStore.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ProductSlug == "cold-shoulder-red-dress-1"
	})).Return(expected, nil).Once()

	payload, _ := json.Marshal(ProductCreateInput{
		SKU:          1003,
		BrandName:    "Next",
		ProductTitle: "Cold shoulder red dress",
	})
	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost, server.URL+"/api/v1/products/", payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "cold-shoulder-red-dress-1", created.ProductSlug)

	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateProduct_ValidationFailure(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	payload := []byte(`{"product_sku": 1001, "brand_name": "", "product_title": "Dress"}`)
	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost, server.URL+"/api/v1/products/", payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	mockStore.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
}

func TestHTTPHandler_GetProductBySlug(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	expected := &domain.Product{ID: 1, ProductSlug: "high-split-solid-shirt", BrandName: "Tommy"}
	mockStore.On("GetProductBySlug", mock.Anything, "high-split-solid-shirt").Return(expected, nil)

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, server.URL+"/api/v1/products/slug/high-split-solid-shirt", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "high-split-solid-shirt", got.ProductSlug)

	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_DeleteProduct_Success(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	mockStore.On("SoftDeleteProduct", mock.Anything, int64(1)).Return(nil)

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodDelete, server.URL+"/api/v1/products/1", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_DeleteProduct_NotFound(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	mockStore.On("SoftDeleteProduct", mock.Anything, int64(99)).Return(store.ErrProductNotFound)

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodDelete, server.URL+"/api/v1/products/99", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_UpdateStock(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	expected := &domain.Product{ID: 1, SKU: 1001, Quantity: 75}
	mockStore.On("UpdateStock", mock.Anything, int64(1), int32(75)).Return(expected, nil)

	payload := []byte(`{"quantity": 75}`)
	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPatch, server.URL+"/api/v1/products/1/stock", payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, int32(75), got.Quantity)

	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_ProductRoutes_RequireAuth(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/products/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	mockStore.AssertNotCalled(t, "ListProducts", mock.Anything, mock.Anything)
}

func TestHTTPHandler_ListProducts_PassesFilters(t *testing.T) {
	mockStore := new(MockProductStorer)
	server := setupTestChiServer(t, mockStore, nil)
	defer server.Close()

	mockStore.On("ListProducts", mock.Anything, mock.MatchedBy(func(p store.ListProductsParams) bool {
		return p.Limit == 5 && p.Offset == 10 && p.Brand != nil && *p.Brand == "tommy" && !p.IncludeDeleted
	})).Return([]domain.Product{}, 0, nil)

	url := fmt.Sprintf("%s/api/v1/products/?limit=5&skip=10&brand=tommy", server.URL)
	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, url, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mockStore.AssertExpectations(t)
}
