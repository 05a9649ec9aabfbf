package phonelist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", []string{}},
		{"commas", "+15550001111, 5550002222", []string{"+15550001111", "5550002222"}},
		{"newlines", "5550001111\r\n5550002222\n", []string{"5550001111", "5550002222"}},
		{"mixed with blanks", " a ,\n, b ,,c\n", []string{"a", "b", "c"}},
		{"duplicates kept", "1,1", []string{"1", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Split(tt.raw)); diff != "" {
				t.Errorf("Split mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
