package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/teahouse/api/internal/domain"
	"github.com/teahouse/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventUpdated       = "order.updated"
	orderEventStatusChanged = "order.status.changed"
	orderEventDeleted       = "order.deleted"

	orderIDPrefix = "ord_"

	msgOrderNotExist     = "order not exist"
	msgOrderCannotModify = "order can not modify"
	msgOrderCannotDelete = "order cannot be deleted"
	msgCreateFail        = "create fail"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates concurrent modification conflicts.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Numbers     CounterService
	Pricing     *OrderPricingEngine
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Currency    string
}

type orderService struct {
	orders     repositories.OrderRepository
	numbers    CounterService
	pricing    *OrderPricingEngine
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
	currency   string
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order service: counter service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("order service: currency is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		numbers:    deps.Numbers,
		pricing:    deps.Pricing,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		logger:   logger,
		currency: currency,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (OrderView, Result, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return OrderView{}, Result{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return OrderView{}, Result{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}

	priced, err := s.pricing.PriceItems(ctx, cmd.Items, PricingOptions{IncludeInactive: false})
	if err != nil {
		return OrderView{}, Result{}, err
	}
	if !priced.OK() {
		return OrderView{}, FailResult(createFailureCode(priced.Failures), priced.FailureMessages()...), nil
	}

	now := s.now()
	order := domain.Order{
		ID:          s.nextOrderID(),
		UserID:      userID,
		Title:       strings.TrimSpace(cmd.Title),
		ContactName: strings.TrimSpace(cmd.ContactName),
		Phone:       strings.TrimSpace(cmd.Phone),
		Address:     strings.TrimSpace(cmd.Address),
		Note:        strings.TrimSpace(cmd.Note),
		OrderDate:   normalizeOrderDate(cmd.OrderDate),
		Status:      domain.OrderStatusPending,
		Currency:    s.currency,
		TotalAmount: priced.Breakdown.Total,
		ItemCount:   priced.Breakdown.ItemCount,
		Metadata:    cloneMap(cmd.Metadata),
		CreatedBy:   userID,
		ModifiedBy:  userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	number, err := s.numbers.NextOrderNumber(ctx)
	if err != nil {
		return OrderView{}, Result{}, err
	}
	order.Number = number

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Create(txCtx, order, priced.Lines)
	})
	if err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrOrderConflict) {
			return OrderView{}, FailResult(ResultCodeItemError, msgCreateFail), nil
		}
		return OrderView{}, Result{}, mapped
	}

	s.publishEvent(ctx, orderEventCreated, order, now)

	return OrderView{Order: order, Items: priced.Lines}, OKResult(), nil
}

func (s *orderService) Update(ctx context.Context, cmd UpdateOrderCommand) (OrderView, Result, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderView{}, Result{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return OrderView{}, Result{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}

	if cmd.Status != "" && !cmd.Status.Valid() {
		return OrderView{}, Result{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	existing, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrOrderNotFound) {
			return OrderView{}, FailResult(ResultCodeItemError, msgOrderNotExist), nil
		}
		return OrderView{}, Result{}, mapped
	}

	if existing.Status.Terminal() {
		return OrderView{}, FailResult(ResultCodeImmutable, msgOrderCannotModify), nil
	}

	// Historical menu entries stay resolvable when revising an order.
	priced, err := s.pricing.PriceItems(ctx, cmd.Items, PricingOptions{IncludeInactive: true})
	if err != nil {
		return OrderView{}, Result{}, err
	}
	if !priced.OK() {
		return OrderView{}, FailResult(updateFailureCode(priced.Failures), priced.FailureMessages()...), nil
	}

	now := s.now()
	prevStatus := existing.Status

	// An omitted status keeps the order where it is.
	target := cmd.Status
	if target == "" {
		target = existing.Status
	}

	updated := existing
	updated.Title = strings.TrimSpace(cmd.Title)
	updated.ContactName = strings.TrimSpace(cmd.ContactName)
	updated.Phone = strings.TrimSpace(cmd.Phone)
	updated.Address = strings.TrimSpace(cmd.Address)
	updated.Note = strings.TrimSpace(cmd.Note)
	updated.OrderDate = normalizeOrderDate(cmd.OrderDate)
	updated.Status = target
	updated.TotalAmount = priced.Breakdown.Total
	updated.ItemCount = priced.Breakdown.ItemCount
	updated.Metadata = mergeMetadata(existing.Metadata, cmd.Metadata)
	updated.UpdatedAt = now
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
		updated.ModifiedBy = actor
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Replace(txCtx, updated, priced.Lines)
	})
	if err != nil {
		mapped := s.mapRepositoryError(err)
		switch {
		case errors.Is(mapped, ErrOrderNotFound):
			return OrderView{}, FailResult(ResultCodeItemError, msgOrderNotExist), nil
		case errors.Is(mapped, ErrOrderConflict):
			// The header flipped terminal between the read and the transaction.
			return OrderView{}, FailResult(ResultCodeImmutable, msgOrderCannotModify), nil
		}
		return OrderView{}, Result{}, mapped
	}

	s.publishEvent(ctx, orderEventUpdated, updated, now)
	if prevStatus != updated.Status {
		s.publishEvent(ctx, orderEventStatusChanged, updated, now)
	}

	return OrderView{Order: updated, Items: priced.Lines}, OKResult(), nil
}

func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) (Result, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Result{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	existing, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrOrderNotFound) {
			return FailResult(ResultCodeItemError, msgOrderNotExist), nil
		}
		return Result{}, mapped
	}

	if existing.Status.Terminal() {
		return FailResult(ResultCodeImmutable, msgOrderCannotDelete), nil
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Delete(txCtx, orderID)
	})
	if err != nil {
		mapped := s.mapRepositoryError(err)
		switch {
		case errors.Is(mapped, ErrOrderNotFound):
			return FailResult(ResultCodeItemError, msgOrderNotExist), nil
		case errors.Is(mapped, ErrOrderConflict):
			return FailResult(ResultCodeImmutable, msgOrderCannotDelete), nil
		}
		return Result{}, mapped
	}

	s.publishEvent(ctx, orderEventDeleted, existing, s.now())

	return OKResult(), nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (OrderView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderView{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, s.mapRepositoryError(err)
	}

	items, err := s.orders.ListItems(ctx, orderID)
	if err != nil {
		return OrderView{}, s.mapRepositoryError(err)
	}

	return OrderView{Order: order, Items: items}, nil
}

func (s *orderService) List(ctx context.Context, query OrderListQuery) (domain.CursorPage[domain.OrderSummary], error) {
	filter := repositories.OrderListFilter{
		UserID:    strings.TrimSpace(query.UserID),
		Statuses:  query.Statuses,
		CreatedAt: query.CreatedAt,
		Sort:      query.Sort,
	}
	page, err := s.orders.ListSummaries(ctx, filter, query.Pagination)
	if err != nil {
		return domain.CursorPage[domain.OrderSummary]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// createFailureCode picks the envelope code for a rejected create. When kinds
// differ the first failing item decides; the messages still carry every rejection.
func createFailureCode(failures []LineFailure) int {
	if len(failures) == 0 {
		return ResultCodeItemError
	}
	if failures[0].Kind == LineFailureSize {
		return ResultCodeSizeError
	}
	return ResultCodeItemError
}

// updateFailureCode mirrors createFailureCode but reports missing products
// with their dedicated code on the update path.
func updateFailureCode(failures []LineFailure) int {
	if len(failures) == 0 {
		return ResultCodeItemError
	}
	switch failures[0].Kind {
	case LineFailureProduct:
		return ResultCodeProductNotFound
	case LineFailureSize:
		return ResultCodeSizeError
	}
	return ResultCodeItemError
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event string, order domain.Order, occurredAt time.Time) {
	if s.events == nil {
		return
	}
	message := OrderEventMessage{
		Event:       event,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		OccurredAt:  occurredAt,
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event,
			"order":  order.ID,
			"error":  err.Error(),
			"status": string(order.Status),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

func mergeMetadata(base map[string]any, extra map[string]any) map[string]any {
	if base == nil && extra == nil {
		return nil
	}
	result := cloneMap(base)
	if len(extra) == 0 {
		return result
	}
	if result == nil {
		result = map[string]any{}
	}
	for k, v := range extra {
		result[k] = v
	}
	return result
}

func normalizeOrderDate(value time.Time) time.Time {
	if value.IsZero() {
		return time.Time{}
	}
	return value.UTC()
}
