package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/teahouse/api/internal/domain"
	pfirestore "github.com/teahouse/api/internal/platform/firestore"
	"github.com/teahouse/api/internal/platform/pagination"
	"github.com/teahouse/api/internal/repositories"
)

const (
	ordersCollection     = "orders"
	orderItemsCollection = "items"
)

// OrderRepository persists order headers in the orders collection with their
// line items in an items subcollection. Every mutation touches the header and
// the full item set inside one transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	return &OrderRepository{provider: provider, base: base}, nil
}

// Create writes the header and every line item, failing when the id is taken.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order, items []domain.OrderLineItem) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	doc := encodeOrderDocument(order)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		for _, item := range items {
			itemRef := orderRef.Collection(orderItemsCollection).Doc(item.ID)
			if err := tx.Create(itemRef, encodeOrderItemDocument(item)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pfirestore.WrapError("orders.create", err)
	}
	return nil
}

// Replace swaps the header and the entire item set. The stored status is
// re-read inside the transaction; a terminal order aborts with a conflict.
func (r *OrderRepository) Replace(ctx context.Context, order domain.Order, items []domain.OrderLineItem) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	doc := encodeOrderDocument(order)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snapshot.DataTo(&stored); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if domain.OrderStatus(stored.Status).Terminal() {
			return status.Errorf(codes.FailedPrecondition, "order %s is %s", orderID, stored.Status)
		}

		existingItems, err := tx.DocumentRefs(orderRef.Collection(orderItemsCollection)).GetAll()
		if err != nil {
			return err
		}
		for _, ref := range existingItems {
			if err := tx.Delete(ref); err != nil {
				return err
			}
		}

		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		for _, item := range items {
			itemRef := orderRef.Collection(orderItemsCollection).Doc(item.ID)
			if err := tx.Create(itemRef, encodeOrderItemDocument(item)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pfirestore.WrapError("orders.replace", err)
	}
	return nil
}

// Delete removes the header together with every item document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := tx.Get(orderRef); err != nil {
			return err
		}

		itemRefs, err := tx.DocumentRefs(orderRef.Collection(orderItemsCollection)).GetAll()
		if err != nil {
			return err
		}
		for _, ref := range itemRefs {
			if err := tx.Delete(ref); err != nil {
				return err
			}
		}
		return tx.Delete(orderRef)
	})
	if err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

// FindByID loads the order header.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// ListItems loads the line items of an order in stable id order.
func (r *OrderRepository) ListItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(ordersCollection).Doc(orderID).
		Collection(orderItemsCollection).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var items []domain.OrderLineItem
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.list_items", err)
		}
		var doc orderItemDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order item %s: %w", snapshot.Ref.ID, err)
		}
		items = append(items, decodeOrderItemDocument(snapshot.Ref.ID, doc))
	}
	return items, nil
}

// ListSummaries pages through order headers newest first by default.
func (r *OrderRepository) ListSummaries(ctx context.Context, filter repositories.OrderListFilter, pager domain.Pagination) (domain.CursorPage[domain.OrderSummary], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.OrderSummary]{}, errors.New("order repository not initialised")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	direction := firestore.Desc
	if filter.Sort == domain.SortAsc {
		direction = firestore.Asc
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.OrderSummary]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	userID := strings.TrimSpace(filter.UserID)
	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		if trimmed := strings.TrimSpace(string(s)); trimmed != "" {
			statuses = append(statuses, trimmed)
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.CreatedAt.From != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAt.From.UTC())
		}
		if filter.CreatedAt.To != nil {
			q = q.Where("createdAt", "<=", filter.CreatedAt.To.UTC())
		}

		q = q.OrderBy("createdAt", direction).OrderBy(firestore.DocumentID, direction)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.OrderSummary]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeOrderListToken(tokenTime, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.OrderSummary, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data).Summary())
	}

	return domain.CursorPage[domain.OrderSummary]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type orderDocument struct {
	Number      string         `firestore:"number"`
	UserID      string         `firestore:"userId"`
	Title       string         `firestore:"title,omitempty"`
	ContactName string         `firestore:"contactName,omitempty"`
	Phone       string         `firestore:"phone,omitempty"`
	Address     string         `firestore:"address,omitempty"`
	Note        string         `firestore:"note,omitempty"`
	OrderDate   time.Time      `firestore:"orderDate,omitempty"`
	Status      string         `firestore:"status"`
	Currency    string         `firestore:"currency"`
	TotalAmount int64          `firestore:"totalAmount"`
	ItemCount   int            `firestore:"itemCount"`
	Metadata    map[string]any `firestore:"metadata,omitempty"`
	CreatedBy   string         `firestore:"createdBy,omitempty"`
	ModifiedBy  string         `firestore:"modifiedBy,omitempty"`
	CreatedAt   time.Time      `firestore:"createdAt"`
	UpdatedAt   time.Time      `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID   string                   `firestore:"productId"`
	ProductName string                   `firestore:"productName"`
	SizeID      string                   `firestore:"sizeId"`
	SizeName    string                   `firestore:"sizeName"`
	SizePrice   int64                    `firestore:"sizePrice"`
	Selections  []orderSelectionDocument `firestore:"selections,omitempty"`
	Remark      string                   `firestore:"remark,omitempty"`
	Quantity    int                      `firestore:"quantity"`
	UnitPrice   int64                    `firestore:"unitPrice"`
	LineTotal   int64                    `firestore:"lineTotal"`
}

type orderSelectionDocument struct {
	OptionTypeID   string `firestore:"optionTypeId"`
	OptionTypeName string `firestore:"optionTypeName"`
	OptionValueID  string `firestore:"optionValueId"`
	OptionValue    string `firestore:"optionValue"`
	ExtraPrice     int64  `firestore:"extraPrice"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		Number:      strings.TrimSpace(order.Number),
		UserID:      strings.TrimSpace(order.UserID),
		Title:       strings.TrimSpace(order.Title),
		ContactName: strings.TrimSpace(order.ContactName),
		Phone:       strings.TrimSpace(order.Phone),
		Address:     strings.TrimSpace(order.Address),
		Note:        strings.TrimSpace(order.Note),
		OrderDate:   order.OrderDate.UTC(),
		Status:      string(order.Status),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		TotalAmount: order.TotalAmount,
		ItemCount:   order.ItemCount,
		Metadata:    cloneAnyMap(order.Metadata),
		CreatedBy:   strings.TrimSpace(order.CreatedBy),
		ModifiedBy:  strings.TrimSpace(order.ModifiedBy),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
	}
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	return domain.Order{
		ID:          id,
		Number:      doc.Number,
		UserID:      doc.UserID,
		Title:       doc.Title,
		ContactName: doc.ContactName,
		Phone:       doc.Phone,
		Address:     doc.Address,
		Note:        doc.Note,
		OrderDate:   doc.OrderDate,
		Status:      domain.OrderStatus(doc.Status),
		Currency:    doc.Currency,
		TotalAmount: doc.TotalAmount,
		ItemCount:   doc.ItemCount,
		Metadata:    cloneAnyMap(doc.Metadata),
		CreatedBy:   doc.CreatedBy,
		ModifiedBy:  doc.ModifiedBy,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func encodeOrderItemDocument(item domain.OrderLineItem) orderItemDocument {
	doc := orderItemDocument{
		ProductID:   strings.TrimSpace(item.ProductID),
		ProductName: item.ProductName,
		SizeID:      strings.TrimSpace(item.SizeID),
		SizeName:    item.SizeName,
		SizePrice:   item.SizePrice,
		Remark:      strings.TrimSpace(item.Remark),
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		LineTotal:   item.LineTotal,
	}
	for _, selection := range item.Selections {
		doc.Selections = append(doc.Selections, orderSelectionDocument{
			OptionTypeID:   selection.OptionTypeID,
			OptionTypeName: selection.OptionTypeName,
			OptionValueID:  selection.OptionValueID,
			OptionValue:    selection.OptionValue,
			ExtraPrice:     selection.ExtraPrice,
		})
	}
	return doc
}

func decodeOrderItemDocument(id string, doc orderItemDocument) domain.OrderLineItem {
	item := domain.OrderLineItem{
		ID:          id,
		ProductID:   doc.ProductID,
		ProductName: doc.ProductName,
		SizeID:      doc.SizeID,
		SizeName:    doc.SizeName,
		SizePrice:   doc.SizePrice,
		Remark:      doc.Remark,
		Quantity:    doc.Quantity,
		UnitPrice:   doc.UnitPrice,
		LineTotal:   doc.LineTotal,
	}
	for _, selection := range doc.Selections {
		item.Selections = append(item.Selections, domain.OptionSelection{
			OptionTypeID:   selection.OptionTypeID,
			OptionTypeName: selection.OptionTypeName,
			OptionValueID:  selection.OptionValueID,
			OptionValue:    selection.OptionValue,
			ExtraPrice:     selection.ExtraPrice,
		})
	}
	return item
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func encodeOrderListToken(createdAt time.Time, docID string) string {
	cursor := pagination.Cursor{StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID}}
	token, err := pagination.EncodeToken(cursor)
	if err != nil {
		return ""
	}
	return token
}

func decodeOrderListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", errors.New("malformed token")
	}
	raw, rawOK := cursor.StartAfter[0].(string)
	docID, idOK := cursor.StartAfter[1].(string)
	if !rawOK || !idOK {
		return time.Time{}, "", errors.New("malformed token")
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, docID, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
