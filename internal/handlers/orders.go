package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/teahouse/api/internal/domain"
	"github.com/teahouse/api/internal/platform/auth"
	"github.com/teahouse/api/internal/platform/httpx"
	"github.com/teahouse/api/internal/platform/money"
	"github.com/teahouse/api/internal/platform/pagination"
	"github.com/teahouse/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 256 * 1024

	maxOrderTitleLength   = 20
	maxOrderAddressLength = 200
)

// Taiwanese numbering plan: mobile, +886 mobile, and area-code landlines.
var phonePattern = regexp.MustCompile(`^(09\d{8}|\+886-?9\d{8}|0[2-8]\d{7,8}|0[3-9]\d{1,2}\d{6,8})$`)

// OrderHandlers exposes the order endpoints for authenticated users.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	limiter throttle
}

// OrderHandlersOption customises the order handlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderRateLimiter throttles order creation per user.
func WithOrderRateLimiter(limit int, window time.Duration) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newUserThrottle(limit, window, nil)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}", h.updateOrder)
	r.Delete("/{orderID}", h.deleteOrder)
}

type orderSelectionRequest struct {
	OptionTypeID  string `json:"option_type_id"`
	OptionValueID string `json:"option_value_id"`
}

type orderItemRequest struct {
	ProductID string                  `json:"product_id"`
	SizeID    string                  `json:"size_id"`
	Count     int                     `json:"count"`
	Remark    string                  `json:"remark"`
	Options   []orderSelectionRequest `json:"options"`
}

type createOrderRequest struct {
	Title       string             `json:"title"`
	ContactName string             `json:"contact_name"`
	Phone       string             `json:"phone"`
	Address     string             `json:"address"`
	Note        string             `json:"note"`
	OrderDate   string             `json:"order_date"`
	Items       []orderItemRequest `json:"items"`
	Metadata    map[string]any     `json:"metadata"`
}

type updateOrderRequest struct {
	Title       string             `json:"title"`
	ContactName string             `json:"contact_name"`
	Phone       string             `json:"phone"`
	Address     string             `json:"address"`
	Note        string             `json:"note"`
	OrderDate   string             `json:"order_date"`
	Status      string             `json:"status"`
	Items       []orderItemRequest `json:"items"`
	Metadata    map[string]any     `json:"metadata"`
}

type orderEnvelope struct {
	Code   int           `json:"code"`
	Errors []string      `json:"errors,omitempty"`
	Order  *orderPayload `json:"order,omitempty"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID           string `json:"id"`
	Number       string `json:"number"`
	Title        string `json:"title,omitempty"`
	Status       string `json:"status"`
	Currency     string `json:"currency"`
	Total        int64  `json:"total"`
	TotalDisplay string `json:"total_display,omitempty"`
	ItemCount    int    `json:"item_count"`
	CreatedAt    string `json:"created_at"`
}

type orderPayload struct {
	ID           string             `json:"id"`
	Number       string             `json:"number"`
	UserID       string             `json:"user_id"`
	Title        string             `json:"title,omitempty"`
	ContactName  string             `json:"contact_name,omitempty"`
	Phone        string             `json:"phone,omitempty"`
	Address      string             `json:"address,omitempty"`
	Note         string             `json:"note,omitempty"`
	OrderDate    string             `json:"order_date,omitempty"`
	Status       string             `json:"status"`
	Currency     string             `json:"currency"`
	Total        int64              `json:"total"`
	TotalDisplay string             `json:"total_display,omitempty"`
	ItemCount    int                `json:"item_count"`
	Items        []orderItemPayload `json:"items"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
	CreatedBy    string             `json:"created_by,omitempty"`
	ModifiedBy   string             `json:"modified_by,omitempty"`
	CreatedAt    string             `json:"created_at"`
	UpdatedAt    string             `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ID          string                  `json:"id"`
	ProductID   string                  `json:"product_id"`
	ProductName string                  `json:"product_name"`
	SizeID      string                  `json:"size_id"`
	SizeName    string                  `json:"size_name"`
	SizePrice   int64                   `json:"size_price"`
	Options     []orderSelectionPayload `json:"options,omitempty"`
	Remark      string                  `json:"remark,omitempty"`
	Count       int                     `json:"count"`
	UnitPrice   int64                   `json:"unit_price"`
	LineTotal   int64                   `json:"line_total"`
}

type orderSelectionPayload struct {
	OptionTypeID   string `json:"option_type_id"`
	OptionTypeName string `json:"option_type_name"`
	OptionValueID  string `json:"option_value_id"`
	OptionValue    string `json:"option_value"`
	ExtraPrice     int64  `json:"extra_price"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many orders, slow down", http.StatusTooManyRequests))
		return
	}

	var req createOrderRequest
	if !decodeOrderBody(ctx, w, r, &req) {
		return
	}

	orderDate, dateOK := parseOrderDate(req.OrderDate)
	violations := validateOrderSurface(req.Title, req.Phone, req.Address, req.Items)
	if !dateOK {
		violations = append(violations, "order date invalid format")
	}
	if len(violations) > 0 {
		writeJSONResponse(w, http.StatusBadRequest, orderEnvelope{
			Code:   services.ResultCodeValidation,
			Errors: violations,
		})
		return
	}

	view, result, err := h.orders.Create(ctx, services.CreateOrderCommand{
		UserID:      identity.UID,
		Title:       req.Title,
		ContactName: req.ContactName,
		Phone:       req.Phone,
		Address:     req.Address,
		Note:        req.Note,
		OrderDate:   orderDate,
		Items:       buildOrderItemInputs(req.Items),
		Metadata:    cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !result.OK() {
		writeJSONResponse(w, envelopeStatus(result), orderEnvelope{Code: result.Code, Errors: result.Errors})
		return
	}

	payload := buildOrderPayload(view, displayFormatter(r))
	writeJSONResponse(w, http.StatusCreated, orderEnvelope{Code: services.ResultCodeOK, Order: &payload})
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if !h.canTouchOrder(ctx, w, identity, orderID) {
		return
	}

	var req updateOrderRequest
	if !decodeOrderBody(ctx, w, r, &req) {
		return
	}

	orderDate, dateOK := parseOrderDate(req.OrderDate)
	violations := validateOrderSurface(req.Title, req.Phone, req.Address, req.Items)
	if !dateOK {
		violations = append(violations, "order date invalid format")
	}
	if len(violations) > 0 {
		writeJSONResponse(w, http.StatusBadRequest, orderEnvelope{
			Code:   services.ResultCodeValidation,
			Errors: violations,
		})
		return
	}

	view, result, err := h.orders.Update(ctx, services.UpdateOrderCommand{
		OrderID:     orderID,
		ActorID:     identity.UID,
		Title:       req.Title,
		ContactName: req.ContactName,
		Phone:       req.Phone,
		Address:     req.Address,
		Note:        req.Note,
		OrderDate:   orderDate,
		Status:      domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Items:       buildOrderItemInputs(req.Items),
		Metadata:    cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !result.OK() {
		writeJSONResponse(w, envelopeStatus(result), orderEnvelope{Code: result.Code, Errors: result.Errors})
		return
	}

	payload := buildOrderPayload(view, displayFormatter(r))
	writeJSONResponse(w, http.StatusOK, orderEnvelope{Code: services.ResultCodeOK, Order: &payload})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if !h.canTouchOrder(ctx, w, identity, orderID) {
		return
	}

	result, err := h.orders.Delete(ctx, services.DeleteOrderCommand{
		OrderID: orderID,
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !result.OK() {
		writeJSONResponse(w, envelopeStatus(result), orderEnvelope{Code: result.Code, Errors: result.Errors})
		return
	}

	writeJSONResponse(w, http.StatusOK, orderEnvelope{Code: services.ResultCodeOK})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	view, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if !canReadOrder(identity, view.Order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	payload := buildOrderPayload(view, displayFormatter(r))
	writeJSONResponse(w, http.StatusOK, orderEnvelope{Code: services.ResultCodeOK, Order: &payload})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()

	userID := identity.UID
	if requested := strings.TrimSpace(query.Get("user_id")); requested != "" && requested != identity.UID {
		if !isStaff(identity) {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "cannot list orders for another user", http.StatusForbidden))
			return
		}
		userID = requested
	}

	statuses := make([]domain.OrderStatus, 0)
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown status", http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	var createdAt domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		createdAt.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		createdAt.To = &ts
	}

	paging, err := pagination.PageFromQuery(query, pagination.Options{
		DefaultSize: defaultOrderPageSize,
		MaxSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	sort := domain.SortDesc
	if strings.EqualFold(strings.TrimSpace(query.Get("sort")), string(domain.SortAsc)) {
		sort = domain.SortAsc
	}

	page, err := h.orders.List(ctx, services.OrderListQuery{
		UserID:    userID,
		Statuses:  statuses,
		CreatedAt: createdAt,
		Sort:      sort,
		Pagination: services.Pagination{
			PageSize:  paging.Size,
			PageToken: paging.Token,
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	formatter := displayFormatter(r)
	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, summary := range page.Items {
		items = append(items, buildOrderSummary(summary, formatter))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

// canTouchOrder loads the order and enforces owner-or-staff access for writes.
func (h *OrderHandlers) canTouchOrder(ctx context.Context, w http.ResponseWriter, identity *auth.Identity, orderID string) bool {
	view, err := h.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			// The mutation reports "order not exist" through the envelope.
			return true
		}
		writeOrderError(ctx, w, err)
		return false
	}
	if !canReadOrder(identity, view.Order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return false
	}
	return true
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func isStaff(identity *auth.Identity) bool {
	return identity != nil && identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin)
}

func canReadOrder(identity *auth.Identity, order domain.Order) bool {
	if isStaff(identity) {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(order.UserID), strings.TrimSpace(identity.UID))
}

func decodeOrderBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
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

// validateOrderSurface checks the request shape before the order engine runs.
// Each violation yields one message; failures answer the -6 envelope.
func validateOrderSurface(title, phone, address string, items []orderItemRequest) []string {
	var violations []string

	phone = strings.TrimSpace(phone)
	if phone == "" {
		violations = append(violations, "phone number is required")
	} else if !phonePattern.MatchString(phone) {
		violations = append(violations, "invalid format.")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		violations = append(violations, "title is required")
	} else if len([]rune(title)) > maxOrderTitleLength {
		violations = append(violations, "title must be at most 20 characters")
	}

	address = strings.TrimSpace(address)
	if address == "" {
		violations = append(violations, "address is required")
	} else if len([]rune(address)) > maxOrderAddressLength {
		violations = append(violations, "address must be at most 200 characters")
	}

	if len(items) == 0 {
		violations = append(violations, "no item")
	} else {
		for _, item := range items {
			if item.Count <= 0 {
				violations = append(violations, "each item count must be over 0")
				break
			}
		}
	}

	return violations
}

// parseOrderDate accepts an RFC3339 order date; empty means unspecified.
func parseOrderDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

func buildOrderItemInputs(items []orderItemRequest) []services.OrderItemInput {
	inputs := make([]services.OrderItemInput, 0, len(items))
	for _, item := range items {
		input := services.OrderItemInput{
			ProductID: strings.TrimSpace(item.ProductID),
			SizeID:    strings.TrimSpace(item.SizeID),
			Quantity:  item.Count,
			Remark:    strings.TrimSpace(item.Remark),
		}
		for _, option := range item.Options {
			input.Selections = append(input.Selections, services.SelectionInput{
				OptionTypeID:  strings.TrimSpace(option.OptionTypeID),
				OptionValueID: strings.TrimSpace(option.OptionValueID),
			})
		}
		inputs = append(inputs, input)
	}
	return inputs
}

// envelopeStatus maps business rejection codes to HTTP statuses. The envelope
// code stays authoritative for clients of the original numbering.
func envelopeStatus(result services.Result) int {
	switch result.Code {
	case services.ResultCodeImmutable:
		return http.StatusConflict
	case services.ResultCodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func displayFormatter(r *http.Request) money.Formatter {
	return money.ForAcceptLanguage(r.Header.Get("Accept-Language"))
}

func buildOrderSummary(summary domain.OrderSummary, formatter money.Formatter) orderSummaryPayload {
	return orderSummaryPayload{
		ID:           strings.TrimSpace(summary.ID),
		Number:       strings.TrimSpace(summary.Number),
		Title:        strings.TrimSpace(summary.Title),
		Status:       strings.TrimSpace(string(summary.Status)),
		Currency:     strings.ToUpper(strings.TrimSpace(summary.Currency)),
		Total:        summary.TotalAmount,
		TotalDisplay: formatter.Format(summary.Currency, summary.TotalAmount),
		ItemCount:    summary.ItemCount,
		CreatedAt:    formatTime(summary.CreatedAt),
	}
}

func buildOrderPayload(view services.OrderView, formatter money.Formatter) orderPayload {
	order := view.Order
	payload := orderPayload{
		ID:           strings.TrimSpace(order.ID),
		Number:       strings.TrimSpace(order.Number),
		UserID:       strings.TrimSpace(order.UserID),
		Title:        strings.TrimSpace(order.Title),
		ContactName:  strings.TrimSpace(order.ContactName),
		Phone:        strings.TrimSpace(order.Phone),
		Address:      strings.TrimSpace(order.Address),
		Note:         strings.TrimSpace(order.Note),
		OrderDate:    formatTime(order.OrderDate),
		Status:       strings.TrimSpace(string(order.Status)),
		Currency:     strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:        order.TotalAmount,
		TotalDisplay: formatter.Format(order.Currency, order.TotalAmount),
		ItemCount:    order.ItemCount,
		Items:        make([]orderItemPayload, 0, len(view.Items)),
		Metadata:     cloneMap(order.Metadata),
		CreatedBy:    strings.TrimSpace(order.CreatedBy),
		ModifiedBy:   strings.TrimSpace(order.ModifiedBy),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
	}

	for _, item := range view.Items {
		entry := orderItemPayload{
			ID:          strings.TrimSpace(item.ID),
			ProductID:   strings.TrimSpace(item.ProductID),
			ProductName: strings.TrimSpace(item.ProductName),
			SizeID:      strings.TrimSpace(item.SizeID),
			SizeName:    strings.TrimSpace(item.SizeName),
			SizePrice:   item.SizePrice,
			Remark:      strings.TrimSpace(item.Remark),
			Count:       item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		}
		for _, selection := range item.Selections {
			entry.Options = append(entry.Options, orderSelectionPayload{
				OptionTypeID:   selection.OptionTypeID,
				OptionTypeName: selection.OptionTypeName,
				OptionValueID:  selection.OptionValueID,
				OptionValue:    selection.OptionValue,
				ExtraPrice:     selection.ExtraPrice,
			})
		}
		payload.Items = append(payload.Items, entry)
	}

	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
