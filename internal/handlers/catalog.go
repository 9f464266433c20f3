package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teahouse/api/internal/platform/httpx"
	"github.com/teahouse/api/internal/platform/pagination"
	"github.com/teahouse/api/internal/services"
)

const (
	defaultCatalogPageSize = 50
	maxCatalogPageSize     = 100
)

// CatalogHandlers exposes the public read-only menu endpoints. The admin
// write surface lives in AdminCatalogHandlers.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs the public catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{categoryID}", h.getCategory)
	r.Get("/option-types", h.listOptionTypes)
	r.Get("/option-types/{optionTypeID}", h.getOptionType)
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID            string               `json:"id"`
	CategoryID    string               `json:"category_id,omitempty"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Sizes         []productSizePayload `json:"sizes"`
	OptionTypeIDs []string             `json:"option_type_ids,omitempty"`
	Active        bool                 `json:"active"`
	CreatedAt     string               `json:"created_at,omitempty"`
	UpdatedAt     string               `json:"updated_at,omitempty"`
}

type productSizePayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Price  int64  `json:"price"`
	Active bool   `json:"active"`
}

type categoryPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SortWeight  int    `json:"sort_weight"`
	Active      bool   `json:"active"`
}

type optionTypePayload struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Values []optionValuePayload `json:"values"`
	Active bool                 `json:"active"`
}

type optionValuePayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExtraPrice int64  `json:"extra_price"`
	Active     bool   `json:"active"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	paging, err := pagination.PageFromQuery(query, pagination.Options{
		DefaultSize: defaultCatalogPageSize,
		MaxSize:     maxCatalogPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		CategoryID: strings.TrimSpace(query.Get("category")),
		NameQuery:  strings.TrimSpace(query.Get("q")),
		Pagination: services.Pagination{
			PageSize:  paging.Size,
			PageToken: paging.Token,
		},
	})
	if err != nil {
		writeCatalogReadError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}

	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID, false)
	if err != nil {
		writeCatalogReadError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx, false)
	if err != nil {
		writeCatalogReadError(ctx, w, err)
		return
	}

	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CatalogHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categoryID := strings.TrimSpace(chi.URLParam(r, "categoryID"))
	if categoryID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "category id is required", http.StatusBadRequest))
		return
	}

	category, err := h.catalog.GetCategory(ctx, categoryID)
	if err != nil {
		writeCatalogReadError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCategoryPayload(category))
}

func (h *CatalogHandlers) listOptionTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	optionTypes, err := h.catalog.ListOptionTypes(ctx, false)
	if err != nil {
		writeCatalogReadError(ctx, w, err)
		return
	}

	items := make([]optionTypePayload, 0, len(optionTypes))
	for _, optionType := range optionTypes {
		items = append(items, buildOptionTypePayload(optionType))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CatalogHandlers) getOptionType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	optionTypeID := strings.TrimSpace(chi.URLParam(r, "optionTypeID"))
	if optionTypeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "option type id is required", http.StatusBadRequest))
		return
	}

	optionType, err := h.catalog.GetOptionType(ctx, optionTypeID)
	if err != nil {
		writeCatalogReadError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOptionTypePayload(optionType))
}

func buildProductPayload(product services.Product) productPayload {
	payload := productPayload{
		ID:            strings.TrimSpace(product.ID),
		CategoryID:    strings.TrimSpace(product.CategoryID),
		Name:          strings.TrimSpace(product.Name),
		Description:   product.Description,
		Sizes:         make([]productSizePayload, 0, len(product.Sizes)),
		OptionTypeIDs: product.OptionTypeIDs,
		Active:        product.Active,
		CreatedAt:     formatTime(product.CreatedAt),
		UpdatedAt:     formatTime(product.UpdatedAt),
	}
	for _, size := range product.Sizes {
		payload.Sizes = append(payload.Sizes, productSizePayload{
			ID:     size.ID,
			Name:   size.Name,
			Price:  size.Price,
			Active: size.Active,
		})
	}
	return payload
}

func buildCategoryPayload(category services.Category) categoryPayload {
	return categoryPayload{
		ID:          strings.TrimSpace(category.ID),
		Name:        strings.TrimSpace(category.Name),
		Description: category.Description,
		SortWeight:  category.SortWeight,
		Active:      category.Active,
	}
}

func buildOptionTypePayload(optionType services.OptionType) optionTypePayload {
	payload := optionTypePayload{
		ID:     strings.TrimSpace(optionType.ID),
		Name:   strings.TrimSpace(optionType.Name),
		Values: make([]optionValuePayload, 0, len(optionType.Values)),
		Active: optionType.Active,
	}
	for _, value := range optionType.Values {
		payload.Values = append(payload.Values, optionValuePayload{
			ID:         value.ID,
			Name:       value.Name,
			ExtraPrice: value.ExtraPrice,
			Active:     value.Active,
		})
	}
	return payload
}

func writeCatalogReadError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogCategoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogOptionTypeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("option_type_not_found", "option type not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to read catalog", http.StatusInternalServerError))
	}
}
