package engine

import (
	"errors"
	"testing"
)

func TestExtract(t *testing.T) {
	data := map[string]any{
		"status": "success",
		"data": []any{
			map[string]any{"id": 1, "Имя": "первый"},
			map[string]any{"id": 2, "Имя": "второй"},
		},
		"count": 2,
	}

	tests := []struct {
		name     string
		query    string
		expected any
	}{
		{"top-level key", "status", "success"},
		{"nested index", "data[0].id", 1},
		{"quoted key", "data[1]['Имя']", "второй"},
		{"number", "count", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Extract(tt.query, data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, v)
			}
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	data := map[string]any{"data": []any{1}}

	tests := []struct {
		name  string
		query string
	}{
		{"missing key", "ghost"},
		{"index out of range", "data[3]"},
		{"subscript on scalar", "data[0].field"},
		{"empty query", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.query, data)
			if !errors.Is(err, ErrExtraction) {
				t.Errorf("expected ErrExtraction, got %v", err)
			}
		})
	}
}
