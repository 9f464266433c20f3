package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/teahouse/api/internal/domain"
)

var (
	// ErrLineProductNotFound indicates the requested product could not be resolved.
	ErrLineProductNotFound = errors.New("resolve: product not exist")
	// ErrLineSizeNotFound indicates the requested size does not belong to the product.
	ErrLineSizeNotFound = errors.New("resolve: size error")
	// ErrLineOptionTypeNotAllowed indicates the product does not accept the option type.
	ErrLineOptionTypeNotAllowed = errors.New("resolve: type error")
	// ErrLineOptionValueNotFound indicates the answer is not a value of the option type.
	ErrLineOptionValueNotFound = errors.New("resolve: option error")
	// ErrLineDuplicateSelection indicates the same option type was answered twice.
	ErrLineDuplicateSelection = errors.New("resolve: duplicate answer")
)

// resolvedLine captures the catalog snapshot and unit pricing for one order line.
type resolvedLine struct {
	ProductName string
	SizeID      string
	SizeName    string
	SizePrice   int64
	Selections  []domain.OptionSelection
	ExtrasSum   int64
	UnitPrice   int64
}

// resolveLineItem prices a single requested item against the supplied product
// snapshot and option types. It is deterministic: identical inputs always
// produce identical snapshots and prices. When allowInactive is false,
// inactive sizes and option values resolve as missing.
func resolveLineItem(product domain.Product, optionTypes map[string]domain.OptionType, sizeID string, selections []SelectionInput, allowInactive bool) (resolvedLine, error) {
	sizeID = strings.TrimSpace(sizeID)
	size, ok := product.Size(sizeID)
	if !ok || (!allowInactive && !size.Active) {
		return resolvedLine{}, fmt.Errorf("%w: product %s size %s", ErrLineSizeNotFound, product.ID, sizeID)
	}

	line := resolvedLine{
		ProductName: product.Name,
		SizeID:      size.ID,
		SizeName:    size.Name,
		SizePrice:   size.Price,
	}

	seen := make(map[string]bool, len(selections))
	for _, selection := range selections {
		typeID := strings.TrimSpace(selection.OptionTypeID)
		valueID := strings.TrimSpace(selection.OptionValueID)

		if seen[typeID] {
			return resolvedLine{}, fmt.Errorf("%w: option type %s", ErrLineDuplicateSelection, typeID)
		}
		seen[typeID] = true

		if !product.AllowsOptionType(typeID) {
			return resolvedLine{}, fmt.Errorf("%w: product %s option type %s", ErrLineOptionTypeNotAllowed, product.ID, typeID)
		}
		optionType, ok := optionTypes[typeID]
		if !ok {
			return resolvedLine{}, fmt.Errorf("%w: option type %s", ErrLineOptionTypeNotAllowed, typeID)
		}

		value, ok := optionType.Value(valueID)
		if !ok || (!allowInactive && !value.Active) {
			return resolvedLine{}, fmt.Errorf("%w: option type %s value %s", ErrLineOptionValueNotFound, typeID, valueID)
		}

		line.Selections = append(line.Selections, domain.OptionSelection{
			OptionTypeID:   optionType.ID,
			OptionTypeName: optionType.Name,
			OptionValueID:  value.ID,
			OptionValue:    value.Name,
			ExtraPrice:     value.ExtraPrice,
		})
		line.ExtrasSum += value.ExtraPrice
	}

	line.UnitPrice = line.SizePrice + line.ExtrasSum
	return line, nil
}
