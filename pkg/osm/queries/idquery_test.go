package queries

import (
	"net/url"
	"strings"
	"testing"
)

func TestBuildIDQuery(t *testing.T) {
	q, err := BuildIDQuery(Way, 4567, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := "[out:json][timeout:30];\nway(4567);\nout body;\n>;\nout skel qt;"
	if q != want {
		t.Errorf("unexpected query:\n%s", q)
	}

	q, err = BuildIDQuery(Relation, 62422, true, 120)
	if err != nil {
		t.Fatal(err)
	}
	want = "[out:json][timeout:120];\n(\n  relation(62422);\n  >;\n);\nout body;\n>;\nout skel qt;"
	if q != want {
		t.Errorf("unexpected recursive query:\n%s", q)
	}
}

func TestBuildIDQuery_Invalid(t *testing.T) {
	if _, err := BuildIDQuery(NWR, 1, false, 30); err == nil {
		t.Error("nwr lookups should be rejected")
	}
	if _, err := BuildIDQuery(Node, 0, false, 30); err == nil {
		t.Error("zero id should be rejected")
	}
}

func TestEncodeURIComponent(t *testing.T) {
	tests := map[string]string{
		"abc-_.!~*'()":     "abc-_.!~*'()",
		"a b":              "a%20b",
		`["name"="x"];`:    "%5B%22name%22%3D%22x%22%5D%3B",
		"\n":               "%0A",
		"é":                "%C3%A9",
		"{{bbox}}/?#&+:,@": "%7B%7Bbbox%7D%7D%2F%3F%23%26%2B%3A%2C%40",
	}
	for in, want := range tests {
		if got := EncodeURIComponent(in); got != want {
			t.Errorf("EncodeURIComponent(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestViewerLinks(t *testing.T) {
	q, err := Build([]Condition{{Key: "amenity", Value: "cafe"}}, "Paris", BBoxFields{}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	turbo := TurboURL(q)
	if !strings.HasPrefix(turbo, TurboBaseURL) {
		t.Fatalf("unexpected turbo link %s", turbo)
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(turbo, TurboBaseURL))
	if err != nil {
		t.Fatal(err)
	}
	if decoded != q {
		t.Errorf("turbo link does not round trip")
	}

	ultra := UltraURL(q)
	if !strings.HasPrefix(ultra, UltraBaseURL) || strings.Contains(ultra[len(UltraBaseURL):], "#") {
		t.Errorf("unexpected ultra link %s", ultra)
	}
}
