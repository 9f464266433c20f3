package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/teahouse/api/internal/domain"
	"github.com/teahouse/api/internal/repositories"
)

const (
	productIDPrefix     = "prd_"
	categoryIDPrefix    = "cat_"
	optionTypeIDPrefix  = "opt_"
	sizeIDPrefix        = "siz_"
	optionValueIDPrefix = "val_"

	maxProductNameLength  = 80
	maxDescriptionLength  = 2000
	maxCategoryNameLength = 40
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogProductNotFound indicates the referenced product does not exist.
	ErrCatalogProductNotFound = errors.New("catalog service: product not found")
	// ErrCatalogCategoryNotFound indicates the referenced category does not exist.
	ErrCatalogCategoryNotFound = errors.New("catalog service: category not found")
	// ErrCatalogOptionTypeNotFound indicates a referenced option type does not exist.
	ErrCatalogOptionTypeNotFound = errors.New("catalog service: option type not found")
)

// newDescriptionPolicy builds the sanitizer applied to merchant-authored
// descriptions before they are persisted. Formatting tags survive, scripts
// and event handlers do not.
func newDescriptionPolicy() *bluemonday.Policy {
	return bluemonday.UGCPolicy()
}

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Catalog     repositories.CatalogRepository
	Invalidator CatalogInvalidator
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, message string, fields map[string]any)
}

type catalogService struct {
	repo        repositories.CatalogRepository
	invalidator CatalogInvalidator
	clock       func() time.Time
	newID       func() string
	sanitizer   *bluemonday.Policy
	logger      func(ctx context.Context, message string, fields map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		repo:        deps.Catalog,
		invalidator: deps.Invalidator,
		clock:       func() time.Time { return clock().UTC() },
		newID:       idGen,
		sanitizer:   newDescriptionPolicy(),
		logger:      logger,
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.repo.GetProduct(ctx, productID, includeInactive)
	if err != nil {
		return Product{}, s.mapNotFound(err, ErrCatalogProductNotFound)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	repoFilter := repositories.ProductFilter{
		CategoryID:      strings.TrimSpace(filter.CategoryID),
		IncludeInactive: filter.IncludeInactive,
		NameQuery:       strings.TrimSpace(filter.NameQuery),
	}
	pager := domain.Pagination{
		PageSize:  filter.Pagination.PageSize,
		PageToken: strings.TrimSpace(filter.Pagination.PageToken),
	}
	return s.repo.ListProducts(ctx, repoFilter, pager)
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if err := s.validateProductInputs(ctx, name, cmd.CategoryID, cmd.Sizes, cmd.OptionTypeIDs); err != nil {
		return Product{}, err
	}

	now := s.clock()
	product := domain.Product{
		ID:            productIDPrefix + s.newID(),
		CategoryID:    strings.TrimSpace(cmd.CategoryID),
		Name:          name,
		Description:   s.sanitizeDescription(cmd.Description),
		Sizes:         s.buildSizes(cmd.Sizes),
		OptionTypeIDs: normalizeIDList(cmd.OptionTypeIDs),
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.InsertProduct(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err, "catalog service: create product")
	}

	s.logger(ctx, "catalog.product.created", map[string]any{
		"productId": product.ID,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	name := strings.TrimSpace(cmd.Name)
	if err := s.validateProductInputs(ctx, name, cmd.CategoryID, cmd.Sizes, cmd.OptionTypeIDs); err != nil {
		return Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, productID, true)
	if err != nil {
		return Product{}, s.mapNotFound(err, ErrCatalogProductNotFound)
	}

	updated := existing
	updated.Name = name
	updated.Description = s.sanitizeDescription(cmd.Description)
	updated.CategoryID = strings.TrimSpace(cmd.CategoryID)
	updated.Sizes = s.mergeSizes(existing.Sizes, cmd.Sizes)
	updated.OptionTypeIDs = normalizeIDList(cmd.OptionTypeIDs)
	if cmd.Active != nil {
		updated.Active = *cmd.Active
	}
	updated.UpdatedAt = s.clock()

	if err := s.repo.UpdateProduct(ctx, updated); err != nil {
		return Product{}, s.mapNotFound(err, ErrCatalogProductNotFound)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateProduct(updated.ID)
	}
	s.logger(ctx, "catalog.product.updated", map[string]any{
		"productId": updated.ID,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return updated, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.SoftDeleteProduct(ctx, productID, s.clock()); err != nil {
		return s.mapNotFound(err, ErrCatalogProductNotFound)
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateProduct(productID)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{
		"productId": productID,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return nil
}

func (s *catalogService) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	category, err := s.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return Category{}, s.mapNotFound(err, ErrCatalogCategoryNotFound)
	}
	return category, nil
}

func (s *catalogService) ListCategories(ctx context.Context, includeInactive bool) ([]Category, error) {
	return s.repo.ListCategories(ctx, includeInactive)
}

func (s *catalogService) UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	category := cmd.Category
	category.ID = strings.TrimSpace(category.ID)
	category.Name = strings.TrimSpace(category.Name)
	category.Description = s.sanitizeDescription(category.Description)
	if category.Name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}
	if len(category.Name) > maxCategoryNameLength {
		return Category{}, fmt.Errorf("%w: category name exceeds %d characters", ErrCatalogInvalidInput, maxCategoryNameLength)
	}

	now := s.clock()
	if category.ID == "" {
		category.ID = categoryIDPrefix + s.newID()
		category.Active = true
		category.CreatedAt = now
	}
	category.UpdatedAt = now

	saved, err := s.repo.UpsertCategory(ctx, category)
	if err != nil {
		return Category{}, s.mapRepositoryError(err, "catalog service: upsert category")
	}
	s.logger(ctx, "catalog.category.upserted", map[string]any{
		"categoryId": saved.ID,
		"actorId":    strings.TrimSpace(cmd.ActorID),
	})
	return saved, nil
}

func (s *catalogService) GetOptionType(ctx context.Context, optionTypeID string) (OptionType, error) {
	optionTypeID = strings.TrimSpace(optionTypeID)
	if optionTypeID == "" {
		return OptionType{}, fmt.Errorf("%w: option type id is required", ErrCatalogInvalidInput)
	}
	optionType, err := s.repo.GetOptionType(ctx, optionTypeID)
	if err != nil {
		return OptionType{}, s.mapNotFound(err, ErrCatalogOptionTypeNotFound)
	}
	return optionType, nil
}

func (s *catalogService) ListOptionTypes(ctx context.Context, includeInactive bool) ([]OptionType, error) {
	return s.repo.ListOptionTypes(ctx, includeInactive)
}

func (s *catalogService) UpsertOptionType(ctx context.Context, cmd UpsertOptionTypeCommand) (OptionType, error) {
	optionType := cmd.OptionType
	optionType.ID = strings.TrimSpace(optionType.ID)
	optionType.Name = strings.TrimSpace(optionType.Name)
	if optionType.Name == "" {
		return OptionType{}, fmt.Errorf("%w: option type name is required", ErrCatalogInvalidInput)
	}
	if len(optionType.Values) == 0 {
		return OptionType{}, fmt.Errorf("%w: option type requires at least one value", ErrCatalogInvalidInput)
	}

	seen := make(map[string]struct{}, len(optionType.Values))
	values := make([]domain.OptionValue, 0, len(optionType.Values))
	for i, value := range optionType.Values {
		value.ID = strings.TrimSpace(value.ID)
		value.Name = strings.TrimSpace(value.Name)
		if value.Name == "" {
			return OptionType{}, fmt.Errorf("%w: option value %d requires a name", ErrCatalogInvalidInput, i)
		}
		if value.ExtraPrice < 0 {
			return OptionType{}, fmt.Errorf("%w: option value %q has a negative surcharge", ErrCatalogInvalidInput, value.Name)
		}
		if value.ID == "" {
			value.ID = optionValueIDPrefix + s.newID()
			value.Active = true
		}
		if _, dup := seen[value.ID]; dup {
			return OptionType{}, fmt.Errorf("%w: duplicate option value id %q", ErrCatalogInvalidInput, value.ID)
		}
		seen[value.ID] = struct{}{}
		values = append(values, value)
	}
	optionType.Values = values

	now := s.clock()
	if optionType.ID == "" {
		optionType.ID = optionTypeIDPrefix + s.newID()
		optionType.Active = true
		optionType.CreatedAt = now
	}
	optionType.UpdatedAt = now

	saved, err := s.repo.UpsertOptionType(ctx, optionType)
	if err != nil {
		return OptionType{}, s.mapRepositoryError(err, "catalog service: upsert option type")
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateOptionType(saved.ID)
	}
	s.logger(ctx, "catalog.optiontype.upserted", map[string]any{
		"optionTypeId": saved.ID,
		"actorId":      strings.TrimSpace(cmd.ActorID),
	})
	return saved, nil
}

func (s *catalogService) validateProductInputs(ctx context.Context, name, categoryID string, sizes []ProductSizeInput, optionTypeIDs []string) error {
	if name == "" {
		return fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if len(name) > maxProductNameLength {
		return fmt.Errorf("%w: product name exceeds %d characters", ErrCatalogInvalidInput, maxProductNameLength)
	}
	if len(sizes) == 0 {
		return fmt.Errorf("%w: at least one size is required", ErrCatalogInvalidInput)
	}
	seenSizes := make(map[string]struct{}, len(sizes))
	for i, size := range sizes {
		sizeName := strings.TrimSpace(size.Name)
		if sizeName == "" {
			return fmt.Errorf("%w: size %d requires a name", ErrCatalogInvalidInput, i)
		}
		if size.Price < 0 {
			return fmt.Errorf("%w: size %q has a negative price", ErrCatalogInvalidInput, sizeName)
		}
		key := strings.ToLower(sizeName)
		if _, dup := seenSizes[key]; dup {
			return fmt.Errorf("%w: duplicate size name %q", ErrCatalogInvalidInput, sizeName)
		}
		seenSizes[key] = struct{}{}
	}

	if categoryID = strings.TrimSpace(categoryID); categoryID != "" {
		if _, err := s.repo.GetCategory(ctx, categoryID); err != nil {
			return s.mapNotFound(err, ErrCatalogCategoryNotFound)
		}
	}

	for _, optionTypeID := range normalizeIDList(optionTypeIDs) {
		if _, err := s.repo.GetOptionType(ctx, optionTypeID); err != nil {
			return s.mapNotFound(err, ErrCatalogOptionTypeNotFound)
		}
	}
	return nil
}

func (s *catalogService) buildSizes(inputs []ProductSizeInput) []domain.ProductSize {
	sizes := make([]domain.ProductSize, 0, len(inputs))
	for _, input := range inputs {
		id := strings.TrimSpace(input.ID)
		if id == "" {
			id = sizeIDPrefix + s.newID()
		}
		sizes = append(sizes, domain.ProductSize{
			ID:     id,
			Name:   strings.TrimSpace(input.Name),
			Price:  input.Price,
			Active: true,
		})
	}
	return sizes
}

// mergeSizes preserves the active flag of sizes that survive an update so a
// previously retired size is not silently resurrected.
func (s *catalogService) mergeSizes(existing []domain.ProductSize, inputs []ProductSizeInput) []domain.ProductSize {
	current := make(map[string]domain.ProductSize, len(existing))
	for _, size := range existing {
		current[size.ID] = size
	}

	sizes := make([]domain.ProductSize, 0, len(inputs))
	for _, input := range inputs {
		id := strings.TrimSpace(input.ID)
		active := true
		if prev, ok := current[id]; ok {
			active = prev.Active
		}
		if id == "" {
			id = sizeIDPrefix + s.newID()
		}
		sizes = append(sizes, domain.ProductSize{
			ID:     id,
			Name:   strings.TrimSpace(input.Name),
			Price:  input.Price,
			Active: active,
		})
	}
	return sizes
}

func (s *catalogService) sanitizeDescription(raw string) string {
	cleaned := strings.TrimSpace(s.sanitizer.Sanitize(raw))
	if len(cleaned) > maxDescriptionLength {
		cleaned = cleaned[:maxDescriptionLength]
	}
	return cleaned
}

func (s *catalogService) mapNotFound(err error, sentinel error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return s.mapRepositoryError(err, "catalog service")
}

func (s *catalogService) mapRepositoryError(err error, op string) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%s: repository unavailable: %w", op, err)
	}
	return err
}

func normalizeIDList(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
