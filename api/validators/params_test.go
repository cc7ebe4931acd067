package validators

import (
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 25, false},
		{"?limit=10", 10, false},
		{"?limit=abc", 0, true},
		{"?limit=0", 0, true},
		{"?limit=101", 0, true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/api/v1/points/transactions"+tt.query, nil)
		got, err := ParseQueryInt(r, "limit", 25, 1, 100)
		if tt.wantErr {
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("%q: expected validation error, got %v", tt.query, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: expected %d, got %d (%v)", tt.query, tt.want, got, err)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := map[string]struct {
		in   string
		max  int
		want string
	}{
		"trims":      {"  1Z999  ", 0, "1Z999"},
		"collapses":  {"manual \t top-up\n\nfor Q1", 0, "manual top-up for Q1"},
		"controls":   {"ab\x00c\x1bd", 0, "abcd"},
		"runes":      {"주문번호-12345", 4, "주문번호"},
		"trim after": {"abc def", 4, "abc"},
	}
	for name, tt := range tests {
		if got := SanitizeString(tt.in, tt.max); got != tt.want {
			t.Fatalf("%s: expected %q, got %q", name, tt.want, got)
		}
	}
}
