package queries

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClampTimeout(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, 30},
		{0, 30},
		{1, 1},
		{25, 25},
		{1800, 1800},
		{1801, 1800},
	}
	for _, tt := range tests {
		if got := ClampTimeout(tt.in); got != tt.want {
			t.Errorf("ClampTimeout(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseTimeout(t *testing.T) {
	tests := map[string]int{
		"":      30,
		"abc":   30,
		"12.5":  30,
		" 90 ":  90,
		"99999": 1800,
		"-1":    30,
	}
	for in, want := range tests {
		if got := ParseTimeout(in); got != want {
			t.Errorf("ParseTimeout(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat(" CSV ") != FormatCSV {
		t.Error("CSV should parse as csv")
	}
	if ParseFormat("xml") != FormatJSON {
		t.Error("unknown formats should fall back to json")
	}
}

func TestParseColumns(t *testing.T) {
	got := ParseColumns(" @id, name ,,@lat,::lon,@")
	want := []string{"::id", "name", "::lat", "::lon", "@"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseColumns mismatch (-want +got):\n%s", diff)
	}
}

func TestOptionsSettings(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"json default", Options{}, "[out:json][timeout:30];"},
		{"json ignores columns", Options{Timeout: 10, Columns: []string{"name"}}, "[out:json][timeout:10];"},
		{"csv default columns", Options{Format: FormatCSV}, "[out:csv(::id,::type,::lat,::lon)][timeout:30];"},
		{"csv quoted column", Options{Format: FormatCSV, Columns: []string{"name:en", "@type"}}, `[out:csv("name:en",::type)][timeout:30];`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.settings(); got != tt.want {
				t.Errorf("settings() = %s, want %s", got, tt.want)
			}
		})
	}
}
