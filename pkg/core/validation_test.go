package core

import (
	"math"
	"strings"
	"testing"
)

func TestValidateCount(t *testing.T) {
	if err := ValidateCount("conditions", MaxConditions, MaxConditions); err != nil {
		t.Fatalf("at limit: %v", err)
	}
	err := ValidateCount("conditions", MaxConditions+1, MaxConditions)
	if !HasCode(err, ErrInvalidParameter) {
		t.Fatalf("over limit: got %v", err)
	}
}

func TestValidateTag(t *testing.T) {
	if err := ValidateTag("name", strings.Repeat("ä", MaxTagLength)); err != nil {
		t.Fatalf("multibyte value at limit: %v", err)
	}
	if err := ValidateTag(strings.Repeat("k", MaxTagLength+1), ""); err == nil {
		t.Fatal("expected error for long key")
	}
	if err := ValidateTag("k", strings.Repeat("v", MaxTagLength+1)); err == nil {
		t.Fatal("expected error for long value")
	}
}

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  ErrorCode
	}{
		{"ok", "node(1);out;", ""},
		{"empty", "", ErrEmptyParameter},
		{"blank", " \n\t", ErrEmptyParameter},
		{"huge", strings.Repeat("x", MaxQueryLength+1), ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(ValidateQuery(tt.query)); got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestValidateCoords(t *testing.T) {
	tests := []struct {
		lat, lon float64
		ok       bool
	}{
		{48.2, 16.37, true},
		{-90, -180, true},
		{90.1, 0, false},
		{0, 180.5, false},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		err := ValidateCoords(tt.lat, tt.lon)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateCoords(%v, %v) = %v", tt.lat, tt.lon, err)
		}
	}
}
