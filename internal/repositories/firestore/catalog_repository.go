package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/teahouse/api/internal/domain"
	pfirestore "github.com/teahouse/api/internal/platform/firestore"
	"github.com/teahouse/api/internal/platform/pagination"
	"github.com/teahouse/api/internal/repositories"
)

const (
	productsCollection    = "products"
	categoriesCollection  = "categories"
	optionTypesCollection = "optionTypes"
)

// CatalogRepository stores the menu: products with embedded sizes, categories,
// and option types with embedded values. Products reference option types by id.
type CatalogRepository struct {
	provider    *pfirestore.Provider
	products    *pfirestore.BaseRepository[productDocument]
	categories  *pfirestore.BaseRepository[categoryDocument]
	optionTypes *pfirestore.BaseRepository[optionTypeDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		provider:    provider,
		products:    pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
		categories:  pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection),
		optionTypes: pfirestore.NewBaseRepository[optionTypeDocument](provider, optionTypesCollection),
	}, nil
}

// GetProduct loads a product. An inactive product reads as missing unless
// includeInactive is set, so historical order lookups can still resolve it.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string, includeInactive bool) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !doc.Data.Active && !includeInactive {
		return domain.Product{}, pfirestore.WrapError("products.get",
			status.Errorf(codes.NotFound, "product %s is inactive", productID))
	}
	return decodeProductDocument(doc.ID, doc.Data), nil
}

// ListProducts pages through products ordered by name.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductFilter, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.products == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("catalog repository not initialised")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		name, id, err := decodeProductListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("catalog repository: invalid page token: %w", err)
		}
		startAfter = []any{name, id}
	}

	categoryID := strings.TrimSpace(filter.CategoryID)
	nameQuery := strings.TrimSpace(filter.NameQuery)

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if categoryID != "" {
			q = q.Where("categoryId", "==", categoryID)
		}
		if !filter.IncludeInactive {
			q = q.Where("active", "==", true)
		}
		if nameQuery != "" {
			// Prefix match on the name field.
			q = q.Where("name", ">=", nameQuery).Where("name", "<", nameQuery+"\uf8ff")
		}
		q = q.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeProductListToken(last.Data.Name, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeProductDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: nextToken}, nil
}

// InsertProduct creates the product document, failing when the id is taken.
func (r *CatalogRepository) InsertProduct(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("catalog repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("catalog repository: product id is required")
	}

	ref, err := r.products.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// UpdateProduct overwrites the product document, failing when it is missing.
func (r *CatalogRepository) UpdateProduct(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("catalog repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("catalog repository: product id is required")
	}

	doc := encodeProductDocument(product)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("products.update", err)
	}
	return nil
}

// SoftDeleteProduct flips the product inactive. The document stays resolvable
// for historical order reads.
func (r *CatalogRepository) SoftDeleteProduct(ctx context.Context, productID string, deletedAt time.Time) error {
	if r == nil || r.products == nil {
		return errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("catalog repository: product id is required")
	}

	ref, err := r.products.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	deletedAt = deletedAt.UTC()
	updates := []firestore.Update{
		{Path: "active", Value: false},
		{Path: "deletedAt", Value: deletedAt},
		{Path: "updatedAt", Value: deletedAt},
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		return pfirestore.WrapError("products.soft_delete", err)
	}
	return nil
}

// GetCategory loads a category by id.
func (r *CatalogRepository) GetCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.categories == nil {
		return domain.Category{}, errors.New("catalog repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return domain.Category{}, errors.New("catalog repository: category id is required")
	}

	doc, err := r.categories.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return decodeCategoryDocument(doc.ID, doc.Data), nil
}

// ListCategories returns categories ordered by sort weight then name.
func (r *CatalogRepository) ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error) {
	if r == nil || r.categories == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.categories.Query(ctx, func(q firestore.Query) firestore.Query {
		if !includeInactive {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("sortWeight", firestore.Asc).OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, decodeCategoryDocument(doc.ID, doc.Data))
	}
	return categories, nil
}

// UpsertCategory writes the category document.
func (r *CatalogRepository) UpsertCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	if r == nil || r.categories == nil {
		return domain.Category{}, errors.New("catalog repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return domain.Category{}, errors.New("catalog repository: category id is required")
	}

	if err := r.categories.Set(ctx, categoryID, encodeCategoryDocument(category)); err != nil {
		return domain.Category{}, err
	}
	saved := category
	saved.ID = categoryID
	return saved, nil
}

// GetOptionType loads an option type with its embedded values.
func (r *CatalogRepository) GetOptionType(ctx context.Context, optionTypeID string) (domain.OptionType, error) {
	if r == nil || r.optionTypes == nil {
		return domain.OptionType{}, errors.New("catalog repository not initialised")
	}
	optionTypeID = strings.TrimSpace(optionTypeID)
	if optionTypeID == "" {
		return domain.OptionType{}, errors.New("catalog repository: option type id is required")
	}

	doc, err := r.optionTypes.Get(ctx, optionTypeID)
	if err != nil {
		return domain.OptionType{}, err
	}
	return decodeOptionTypeDocument(doc.ID, doc.Data), nil
}

// ListOptionTypes returns option types ordered by name.
func (r *CatalogRepository) ListOptionTypes(ctx context.Context, includeInactive bool) ([]domain.OptionType, error) {
	if r == nil || r.optionTypes == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.optionTypes.Query(ctx, func(q firestore.Query) firestore.Query {
		if !includeInactive {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	optionTypes := make([]domain.OptionType, 0, len(docs))
	for _, doc := range docs {
		optionTypes = append(optionTypes, decodeOptionTypeDocument(doc.ID, doc.Data))
	}
	return optionTypes, nil
}

// UpsertOptionType writes the option type document.
func (r *CatalogRepository) UpsertOptionType(ctx context.Context, optionType domain.OptionType) (domain.OptionType, error) {
	if r == nil || r.optionTypes == nil {
		return domain.OptionType{}, errors.New("catalog repository not initialised")
	}
	optionTypeID := strings.TrimSpace(optionType.ID)
	if optionTypeID == "" {
		return domain.OptionType{}, errors.New("catalog repository: option type id is required")
	}

	if err := r.optionTypes.Set(ctx, optionTypeID, encodeOptionTypeDocument(optionType)); err != nil {
		return domain.OptionType{}, err
	}
	saved := optionType
	saved.ID = optionTypeID
	return saved, nil
}

type productDocument struct {
	CategoryID    string                `firestore:"categoryId,omitempty"`
	Name          string                `firestore:"name"`
	Description   string                `firestore:"description,omitempty"`
	Sizes         []productSizeDocument `firestore:"sizes"`
	OptionTypeIDs []string              `firestore:"optionTypeIds,omitempty"`
	Active        bool                  `firestore:"active"`
	CreatedAt     time.Time             `firestore:"createdAt"`
	UpdatedAt     time.Time             `firestore:"updatedAt"`
	DeletedAt     *time.Time            `firestore:"deletedAt,omitempty"`
}

type productSizeDocument struct {
	ID     string `firestore:"id"`
	Name   string `firestore:"name"`
	Price  int64  `firestore:"price"`
	Active bool   `firestore:"active"`
}

type categoryDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	SortWeight  int       `firestore:"sortWeight"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type optionTypeDocument struct {
	Name      string                `firestore:"name"`
	Values    []optionValueDocument `firestore:"values"`
	Active    bool                  `firestore:"active"`
	CreatedAt time.Time             `firestore:"createdAt"`
	UpdatedAt time.Time             `firestore:"updatedAt"`
}

type optionValueDocument struct {
	ID         string `firestore:"id"`
	Name       string `firestore:"name"`
	ExtraPrice int64  `firestore:"extraPrice"`
	Active     bool   `firestore:"active"`
}

func encodeProductDocument(product domain.Product) productDocument {
	doc := productDocument{
		CategoryID:    strings.TrimSpace(product.CategoryID),
		Name:          strings.TrimSpace(product.Name),
		Description:   product.Description,
		OptionTypeIDs: cloneStringList(product.OptionTypeIDs),
		Active:        product.Active,
		CreatedAt:     product.CreatedAt.UTC(),
		UpdatedAt:     product.UpdatedAt.UTC(),
	}
	for _, size := range product.Sizes {
		doc.Sizes = append(doc.Sizes, productSizeDocument{
			ID:     size.ID,
			Name:   size.Name,
			Price:  size.Price,
			Active: size.Active,
		})
	}
	return doc
}

func decodeProductDocument(id string, doc productDocument) domain.Product {
	product := domain.Product{
		ID:            id,
		CategoryID:    doc.CategoryID,
		Name:          doc.Name,
		Description:   doc.Description,
		OptionTypeIDs: cloneStringList(doc.OptionTypeIDs),
		Active:        doc.Active,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	for _, size := range doc.Sizes {
		product.Sizes = append(product.Sizes, domain.ProductSize{
			ID:     size.ID,
			Name:   size.Name,
			Price:  size.Price,
			Active: size.Active,
		})
	}
	return product
}

func encodeCategoryDocument(category domain.Category) categoryDocument {
	return categoryDocument{
		Name:        strings.TrimSpace(category.Name),
		Description: category.Description,
		SortWeight:  category.SortWeight,
		Active:      category.Active,
		CreatedAt:   category.CreatedAt.UTC(),
		UpdatedAt:   category.UpdatedAt.UTC(),
	}
}

func decodeCategoryDocument(id string, doc categoryDocument) domain.Category {
	return domain.Category{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		SortWeight:  doc.SortWeight,
		Active:      doc.Active,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func encodeOptionTypeDocument(optionType domain.OptionType) optionTypeDocument {
	doc := optionTypeDocument{
		Name:      strings.TrimSpace(optionType.Name),
		Active:    optionType.Active,
		CreatedAt: optionType.CreatedAt.UTC(),
		UpdatedAt: optionType.UpdatedAt.UTC(),
	}
	for _, value := range optionType.Values {
		doc.Values = append(doc.Values, optionValueDocument{
			ID:         value.ID,
			Name:       value.Name,
			ExtraPrice: value.ExtraPrice,
			Active:     value.Active,
		})
	}
	return doc
}

func decodeOptionTypeDocument(id string, doc optionTypeDocument) domain.OptionType {
	optionType := domain.OptionType{
		ID:        id,
		Name:      doc.Name,
		Active:    doc.Active,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, value := range doc.Values {
		optionType.Values = append(optionType.Values, domain.OptionValue{
			ID:         value.ID,
			Name:       value.Name,
			ExtraPrice: value.ExtraPrice,
			Active:     value.Active,
		})
	}
	return optionType
}

func cloneStringList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func encodeProductListToken(name, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{name, docID}})
	if err != nil {
		return ""
	}
	return token
}

func decodeProductListToken(token string) (string, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return "", "", err
	}
	if len(cursor.StartAfter) != 2 {
		return "", "", errors.New("malformed page token")
	}
	name, nameOK := cursor.StartAfter[0].(string)
	docID, idOK := cursor.StartAfter[1].(string)
	if !nameOK || !idOK {
		return "", "", errors.New("malformed page token")
	}
	return name, docID, nil
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
