package pagination

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits page_size.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported page_size to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

// ErrInvalidPageSize indicates page_size was present but not an integer.
var ErrInvalidPageSize = errors.New("pagination: invalid page_size")

// Page bundles the normalised paging values extracted from a list request.
type Page struct {
	Size  int
	Token string
}

// Options control the per-handler page size bounds.
type Options struct {
	DefaultSize int
	MaxSize     int
}

// PageFromQuery parses page_size and page_token from the supplied query values.
// An omitted or non-positive page_size falls back to the default; values over
// the maximum are clamped rather than rejected.
func PageFromQuery(values url.Values, opts Options) (Page, error) {
	defaultSize := opts.DefaultSize
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}

	page := Page{Size: defaultSize}
	if values == nil {
		return page, nil
	}

	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return Page{}, ErrInvalidPageSize
		}
		switch {
		case size <= 0:
			page.Size = defaultSize
		case size > maxSize:
			page.Size = maxSize
		default:
			page.Size = size
		}
	}

	page.Token = strings.TrimSpace(values.Get("page_token"))
	return page, nil
}
