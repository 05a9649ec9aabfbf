// Package phonelist splits operator-entered number lists.
package phonelist

import "strings"

// Split breaks raw on commas and newlines, trims each entry and drops
// blanks. Order and duplicates are preserved.
func Split(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
