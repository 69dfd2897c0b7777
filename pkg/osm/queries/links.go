package queries

import "strings"

const (
	// TurboBaseURL opens a query in Overpass Turbo
	TurboBaseURL = "https://overpass-turbo.eu/?Q="
	// UltraBaseURL opens a query in Overpass Ultra; the query lives in the fragment
	UltraBaseURL = "https://overpass-ultra.us/#query="
)

// TurboURL returns a link that loads query into Overpass Turbo.
func TurboURL(query string) string {
	return TurboBaseURL + EncodeURIComponent(query)
}

// UltraURL returns a link that loads query into Overpass Ultra.
func UltraURL(query string) string {
	return UltraBaseURL + EncodeURIComponent(query)
}

// EncodeURIComponent percent-encodes s exactly like the browser function of
// the same name, which both viewers decode. Only A-Z a-z 0-9 and
// - _ . ! ~ * ' ( ) are left as is.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
