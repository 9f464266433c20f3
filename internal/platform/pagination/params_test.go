package pagination

import (
	"errors"
	"net/url"
	"reflect"
	"testing"
)

func TestPageFromQueryDefaults(t *testing.T) {
	page, err := PageFromQuery(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("PageFromQuery returned error: %v", err)
	}
	if page.Size != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, page.Size)
	}
	if page.Token != "" {
		t.Fatalf("expected empty page token got %q", page.Token)
	}
}

func TestPageFromQuerySizes(t *testing.T) {
	opts := Options{DefaultSize: 25, MaxSize: 40}

	cases := []struct {
		name string
		raw  string
		want int
	}{
		{name: "explicit", raw: "30", want: 30},
		{name: "clamped to max", raw: "400", want: 40},
		{name: "zero falls back", raw: "0", want: 25},
		{name: "negative falls back", raw: "-5", want: 25},
		{name: "omitted", raw: "", want: 25},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values := url.Values{}
			if tc.raw != "" {
				values.Set("page_size", tc.raw)
			}
			page, err := PageFromQuery(values, opts)
			if err != nil {
				t.Fatalf("PageFromQuery returned error: %v", err)
			}
			if page.Size != tc.want {
				t.Fatalf("expected page size %d got %d", tc.want, page.Size)
			}
		})
	}
}

func TestPageFromQueryInvalidSize(t *testing.T) {
	values := url.Values{}
	values.Set("page_size", "abc")

	if _, err := PageFromQuery(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}
}

func TestPageFromQueryTrimsToken(t *testing.T) {
	values := url.Values{}
	values.Set("page_token", "  tok-next  ")

	page, err := PageFromQuery(values, Options{})
	if err != nil {
		t.Fatalf("PageFromQuery returned error: %v", err)
	}
	if page.Token != "tok-next" {
		t.Fatalf("expected trimmed token, got %q", page.Token)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{StartAfter: []any{"2025-05-06T09:00:00Z", "ord_1"}}

	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if !reflect.DeepEqual(decoded, cursor) {
		t.Fatalf("expected %#v got %#v", cursor, decoded)
	}
}

func TestTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for empty cursor, got %q", token)
	}

	cursor, err := DecodeToken("   ")
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if !reflect.DeepEqual(cursor, Cursor{}) {
		t.Fatalf("expected zero cursor, got %#v", cursor)
	}
}

func TestDecodeTokenInvalid(t *testing.T) {
	for _, token := range []string{"!!!", "bm90LWpzb24"} {
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("expected ErrInvalidPageToken for %q, got %v", token, err)
		}
	}
}
