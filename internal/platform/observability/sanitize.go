package observability

import "unicode"

// cleanLogValue strips control characters and caps the length so request
// supplied values cannot inject extra log lines.
func cleanLogValue(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	kept := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		kept = append(kept, r)
		if len(kept) == limit {
			break
		}
	}
	return string(kept)
}
