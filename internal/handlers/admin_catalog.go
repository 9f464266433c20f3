package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/teahouse/api/internal/domain"
	"github.com/teahouse/api/internal/platform/auth"
	"github.com/teahouse/api/internal/platform/httpx"
	"github.com/teahouse/api/internal/platform/pagination"
	"github.com/teahouse/api/internal/services"
)

const maxCatalogRequestBody = 256 * 1024

// AdminCatalogHandlers exposes the menu management endpoints for staff.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewAdminCatalogHandlers constructs admin catalog handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{authn: authn, catalog: catalog}
}

// Routes registers the admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Route("/catalog", func(rt chi.Router) {
		rt.Get("/products", h.listProducts)
		rt.Get("/products/{productID}", h.getProduct)
		rt.Post("/products", h.createProduct)
		rt.Put("/products/{productID}", h.updateProduct)
		rt.Delete("/products/{productID}", h.deleteProduct)
		rt.Put("/categories/{categoryID}", h.upsertCategory)
		rt.Post("/categories", h.upsertCategory)
		rt.Get("/option-types", h.listOptionTypes)
		rt.Put("/option-types/{optionTypeID}", h.upsertOptionType)
		rt.Post("/option-types", h.upsertOptionType)
	})
}

type adminProductSizeRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type adminProductRequest struct {
	Name          string                    `json:"name"`
	Description   string                    `json:"description"`
	CategoryID    string                    `json:"category_id"`
	Sizes         []adminProductSizeRequest `json:"sizes"`
	OptionTypeIDs []string                  `json:"option_type_ids"`
	Active        *bool                     `json:"active"`
}

type adminCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SortWeight  int    `json:"sort_weight"`
	Active      *bool  `json:"active"`
}

type adminOptionValueRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExtraPrice int64  `json:"extra_price"`
	Active     *bool  `json:"active"`
}

type adminOptionTypeRequest struct {
	Name   string                    `json:"name"`
	Values []adminOptionValueRequest `json:"values"`
	Active *bool                     `json:"active"`
}

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
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
		CategoryID:      strings.TrimSpace(query.Get("category")),
		NameQuery:       strings.TrimSpace(query.Get("q")),
		IncludeInactive: true,
		Pagination: services.Pagination{
			PageSize:  paging.Size,
			PageToken: paging.Token,
		},
	})
	if err != nil {
		writeCatalogWriteError(ctx, w, err)
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

func (h *AdminCatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	// Admin reads resolve retired products too.
	product, err := h.catalog.GetProduct(ctx, productID, true)
	if err != nil {
		writeCatalogWriteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req adminProductRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		Name:          req.Name,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		Sizes:         buildSizeInputs(req.Sizes),
		OptionTypeIDs: req.OptionTypeIDs,
		ActorID:       identity.UID,
	})
	if err != nil {
		writeCatalogWriteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildProductPayload(product))
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req adminProductRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID:     productID,
		Name:          req.Name,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		Sizes:         buildSizeInputs(req.Sizes),
		OptionTypeIDs: req.OptionTypeIDs,
		Active:        req.Active,
		ActorID:       identity.UID,
	})
	if err != nil {
		writeCatalogWriteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, services.DeleteProductCommand{
		ProductID: productID,
		ActorID:   identity.UID,
	}); err != nil {
		writeCatalogWriteError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) upsertCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req adminCategoryRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	category := domain.Category{
		ID:          strings.TrimSpace(chi.URLParam(r, "categoryID")),
		Name:        req.Name,
		Description: req.Description,
		SortWeight:  req.SortWeight,
		Active:      true,
	}
	if req.Active != nil {
		category.Active = *req.Active
	}

	saved, err := h.catalog.UpsertCategory(ctx, services.UpsertCategoryCommand{
		Category: category,
		ActorID:  identity.UID,
	})
	if err != nil {
		writeCatalogWriteError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildCategoryPayload(saved))
}

func (h *AdminCatalogHandlers) listOptionTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}

	optionTypes, err := h.catalog.ListOptionTypes(ctx, true)
	if err != nil {
		writeCatalogWriteError(ctx, w, err)
		return
	}

	items := make([]optionTypePayload, 0, len(optionTypes))
	for _, optionType := range optionTypes {
		items = append(items, buildOptionTypePayload(optionType))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminCatalogHandlers) upsertOptionType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req adminOptionTypeRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	optionType := domain.OptionType{
		ID:     strings.TrimSpace(chi.URLParam(r, "optionTypeID")),
		Name:   req.Name,
		Active: true,
	}
	if req.Active != nil {
		optionType.Active = *req.Active
	}
	for _, value := range req.Values {
		entry := domain.OptionValue{
			ID:         strings.TrimSpace(value.ID),
			Name:       value.Name,
			ExtraPrice: value.ExtraPrice,
			Active:     true,
		}
		if value.Active != nil {
			entry.Active = *value.Active
		}
		optionType.Values = append(optionType.Values, entry)
	}

	saved, err := h.catalog.UpsertOptionType(ctx, services.UpsertOptionTypeCommand{
		OptionType: optionType,
		ActorID:    identity.UID,
	})
	if err != nil {
		writeCatalogWriteError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildOptionTypePayload(saved))
}

func (h *AdminCatalogHandlers) ready(ctx context.Context, w http.ResponseWriter) bool {
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func buildSizeInputs(sizes []adminProductSizeRequest) []services.ProductSizeInput {
	inputs := make([]services.ProductSizeInput, 0, len(sizes))
	for _, size := range sizes {
		inputs = append(inputs, services.ProductSizeInput{
			ID:    strings.TrimSpace(size.ID),
			Name:  size.Name,
			Price: size.Price,
		})
	}
	return inputs
}

func decodeAdminBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxCatalogRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func writeCatalogWriteError(ctx context.Context, w http.ResponseWriter, err error) {
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
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
