package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/teahouse/api/internal/domain"
	"github.com/teahouse/api/internal/platform/auth"
	"github.com/teahouse/api/internal/services"
)

type stubCatalogService struct {
	getProductFn       func(context.Context, string, bool) (services.Product, error)
	listProductsFn     func(context.Context, services.ProductListFilter) (domain.CursorPage[services.Product], error)
	createProductFn    func(context.Context, services.CreateProductCommand) (services.Product, error)
	updateProductFn    func(context.Context, services.UpdateProductCommand) (services.Product, error)
	deleteProductFn    func(context.Context, services.DeleteProductCommand) error
	getCategoryFn      func(context.Context, string) (services.Category, error)
	listCategoriesFn   func(context.Context, bool) ([]services.Category, error)
	upsertCategoryFn   func(context.Context, services.UpsertCategoryCommand) (services.Category, error)
	getOptionTypeFn    func(context.Context, string) (services.OptionType, error)
	listOptionTypesFn  func(context.Context, bool) ([]services.OptionType, error)
	upsertOptionTypeFn func(context.Context, services.UpsertOptionTypeCommand) (services.OptionType, error)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string, includeInactive bool) (services.Product, error) {
	if s.getProductFn != nil {
		return s.getProductFn(ctx, productID, includeInactive)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listProductsFn != nil {
		return s.listProductsFn(ctx, filter)
	}
	return domain.CursorPage[services.Product]{}, nil
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createProductFn != nil {
		return s.createProductFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.updateProductFn != nil {
		return s.updateProductFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, cmd services.DeleteProductCommand) error {
	if s.deleteProductFn != nil {
		return s.deleteProductFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubCatalogService) GetCategory(ctx context.Context, categoryID string) (services.Category, error) {
	if s.getCategoryFn != nil {
		return s.getCategoryFn(ctx, categoryID)
	}
	return services.Category{}, errors.New("not implemented")
}

func (s *stubCatalogService) ListCategories(ctx context.Context, includeInactive bool) ([]services.Category, error) {
	if s.listCategoriesFn != nil {
		return s.listCategoriesFn(ctx, includeInactive)
	}
	return nil, nil
}

func (s *stubCatalogService) UpsertCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
	if s.upsertCategoryFn != nil {
		return s.upsertCategoryFn(ctx, cmd)
	}
	return services.Category{}, errors.New("not implemented")
}

func (s *stubCatalogService) GetOptionType(ctx context.Context, optionTypeID string) (services.OptionType, error) {
	if s.getOptionTypeFn != nil {
		return s.getOptionTypeFn(ctx, optionTypeID)
	}
	return services.OptionType{}, errors.New("not implemented")
}

func (s *stubCatalogService) ListOptionTypes(ctx context.Context, includeInactive bool) ([]services.OptionType, error) {
	if s.listOptionTypesFn != nil {
		return s.listOptionTypesFn(ctx, includeInactive)
	}
	return nil, nil
}

func (s *stubCatalogService) UpsertOptionType(ctx context.Context, cmd services.UpsertOptionTypeCommand) (services.OptionType, error) {
	if s.upsertOptionTypeFn != nil {
		return s.upsertOptionTypeFn(ctx, cmd)
	}
	return services.OptionType{}, errors.New("not implemented")
}

func newCatalogRouter(service services.CatalogService) *chi.Mux {
	handler := NewCatalogHandlers(service)
	router := chi.NewRouter()
	router.Route("/catalog", handler.Routes)
	return router
}

func TestCatalogHandlersListProducts(t *testing.T) {
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	var captured services.ProductListFilter
	service := &stubCatalogService{
		listProductsFn: func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			captured = filter
			return domain.CursorPage[services.Product]{
				Items: []services.Product{
					{
						ID:         "prod_black",
						CategoryID: "cat_tea",
						Name:       "Black Tea",
						Sizes: []domain.ProductSize{
							{ID: "size_m", Name: "M", Price: 45, Active: true},
							{ID: "size_l", Name: "L", Price: 55, Active: true},
						},
						OptionTypeIDs: []string{"opt_sugar"},
						Active:        true,
						CreatedAt:     now,
					},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	router := newCatalogRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/catalog/products?category=cat_tea&q=black&page_size=10", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CategoryID != "cat_tea" || captured.NameQuery != "black" {
		t.Fatalf("unexpected filter: %#v", captured)
	}
	if captured.IncludeInactive {
		t.Fatalf("public listing must exclude inactive products")
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", captured.Pagination.PageSize)
	}

	var resp productListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 product, got %d", len(resp.Items))
	}
	product := resp.Items[0]
	if product.ID != "prod_black" || len(product.Sizes) != 2 {
		t.Fatalf("unexpected product payload: %#v", product)
	}
	if product.Sizes[1].Price != 55 {
		t.Fatalf("expected size price 55, got %d", product.Sizes[1].Price)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token tok-next, got %s", resp.NextPageToken)
	}
}

func TestCatalogHandlersListProductsInvalidPageSize(t *testing.T) {
	router := newCatalogRouter(&stubCatalogService{})
	req := httptest.NewRequest(http.MethodGet, "/catalog/products?page_size=abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCatalogHandlersGetProduct(t *testing.T) {
	service := &stubCatalogService{
		getProductFn: func(ctx context.Context, productID string, includeInactive bool) (services.Product, error) {
			if includeInactive {
				t.Fatalf("public read must not include inactive products")
			}
			if productID != "prod_black" {
				return services.Product{}, services.ErrCatalogProductNotFound
			}
			return services.Product{ID: "prod_black", Name: "Black Tea", Active: true}, nil
		},
	}
	router := newCatalogRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/catalog/products/prod_black", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/catalog/products/prod_missing", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCatalogHandlersListCategories(t *testing.T) {
	service := &stubCatalogService{
		listCategoriesFn: func(ctx context.Context, includeInactive bool) ([]services.Category, error) {
			if includeInactive {
				t.Fatalf("public listing must exclude inactive categories")
			}
			return []services.Category{
				{ID: "cat_tea", Name: "Tea", SortWeight: 1, Active: true},
				{ID: "cat_milk", Name: "Milk Tea", SortWeight: 2, Active: true},
			}, nil
		},
	}
	router := newCatalogRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/catalog/categories", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Items []categoryPayload `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "cat_tea" {
		t.Fatalf("unexpected categories: %#v", resp.Items)
	}
}

func TestCatalogHandlersGetOptionType(t *testing.T) {
	service := &stubCatalogService{
		getOptionTypeFn: func(ctx context.Context, optionTypeID string) (services.OptionType, error) {
			return services.OptionType{
				ID:   optionTypeID,
				Name: "Sugar",
				Values: []domain.OptionValue{
					{ID: "val_none", Name: "None", Active: true},
					{ID: "val_half", Name: "Half", ExtraPrice: 0, Active: true},
				},
				Active: true,
			}, nil
		},
	}
	router := newCatalogRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/catalog/option-types/opt_sugar", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp optionTypePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ID != "opt_sugar" || len(resp.Values) != 2 {
		t.Fatalf("unexpected option type: %#v", resp)
	}
}

func newAdminCatalogRouter(service services.CatalogService) *chi.Mux {
	handler := NewAdminCatalogHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func TestAdminCatalogHandlersCreateProduct(t *testing.T) {
	var captured services.CreateProductCommand
	service := &stubCatalogService{
		createProductFn: func(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
			captured = cmd
			return services.Product{ID: "prod_new", Name: cmd.Name, Active: true}, nil
		},
	}
	router := newAdminCatalogRouter(service)

	body, err := json.Marshal(adminProductRequest{
		Name:       "Oolong Tea",
		CategoryID: "cat_tea",
		Sizes: []adminProductSizeRequest{
			{ID: "size_m", Name: "M", Price: 50},
		},
		OptionTypeIDs: []string{"opt_sugar"},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := authedRequest(http.MethodPost, "/admin/catalog/products", body, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Name != "Oolong Tea" || captured.ActorID != "admin-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if len(captured.Sizes) != 1 || captured.Sizes[0].Price != 50 {
		t.Fatalf("unexpected sizes: %#v", captured.Sizes)
	}
}

func TestAdminCatalogHandlersUpdateProductInvalidInput(t *testing.T) {
	service := &stubCatalogService{
		updateProductFn: func(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
			return services.Product{}, services.ErrCatalogInvalidInput
		},
	}
	router := newAdminCatalogRouter(service)

	body := []byte(`{"name":""}`)
	req := authedRequest(http.MethodPut, "/admin/catalog/products/prod_black", body, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminCatalogHandlersDeleteProduct(t *testing.T) {
	var captured services.DeleteProductCommand
	service := &stubCatalogService{
		deleteProductFn: func(ctx context.Context, cmd services.DeleteProductCommand) error {
			captured = cmd
			return nil
		},
	}
	router := newAdminCatalogRouter(service)

	req := authedRequest(http.MethodDelete, "/admin/catalog/products/prod_black", nil, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if captured.ProductID != "prod_black" || captured.ActorID != "admin-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
}

func TestAdminCatalogHandlersUpsertCategory(t *testing.T) {
	var captured services.UpsertCategoryCommand
	service := &stubCatalogService{
		upsertCategoryFn: func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
			captured = cmd
			return cmd.Category, nil
		},
	}
	router := newAdminCatalogRouter(service)

	body := []byte(`{"name":"Seasonal","sort_weight":5}`)
	req := authedRequest(http.MethodPut, "/admin/catalog/categories/cat_seasonal", body, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Category.ID != "cat_seasonal" || captured.Category.SortWeight != 5 {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if !captured.Category.Active {
		t.Fatalf("expected category to default to active")
	}

	req = authedRequest(http.MethodPost, "/admin/catalog/categories", body, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201 on create, got %d", rr.Code)
	}
}

func TestAdminCatalogHandlersUpsertOptionType(t *testing.T) {
	var captured services.UpsertOptionTypeCommand
	service := &stubCatalogService{
		upsertOptionTypeFn: func(ctx context.Context, cmd services.UpsertOptionTypeCommand) (services.OptionType, error) {
			captured = cmd
			return cmd.OptionType, nil
		},
	}
	router := newAdminCatalogRouter(service)

	body := []byte(`{"name":"Toppings","values":[{"id":"val_pearl","name":"Pearl","extra_price":10}]}`)
	req := authedRequest(http.MethodPut, "/admin/catalog/option-types/opt_toppings", body, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OptionType.ID != "opt_toppings" || len(captured.OptionType.Values) != 1 {
		t.Fatalf("unexpected command: %#v", captured)
	}
	value := captured.OptionType.Values[0]
	if value.ID != "val_pearl" || value.ExtraPrice != 10 || !value.Active {
		t.Fatalf("unexpected option value: %#v", value)
	}
}

func TestAdminCatalogHandlersUnauthenticated(t *testing.T) {
	router := newAdminCatalogRouter(&stubCatalogService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/catalog/products", bytes.NewReader([]byte(`{"name":"x"}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
