package core

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Request limits applied by the tool and REST layers before any work is
// done.
const (
	MaxConditions  = 64
	MaxColumns     = 64
	MaxTagLength   = 255 // OSM limit for keys and values
	MaxQueryLength = 64 << 10
	MaxAreaLength  = 255
)

// ValidateCount rejects lists longer than max.
func ValidateCount(name string, n, max int) error {
	if n > max {
		return NewValidationError(ErrInvalidParameter,
			fmt.Sprintf("Too many %s: %d (maximum %d)", name, n, max))
	}
	return nil
}

// ValidateLength rejects text longer than max characters.
func ValidateLength(name, s string, max int) error {
	if n := utf8.RuneCountInString(s); n > max {
		return NewValidationError(ErrInvalidParameter,
			fmt.Sprintf("%s is too long: %d characters (maximum %d)", name, n, max))
	}
	return nil
}

// ValidateTag checks a condition's key and value against the OSM limits.
func ValidateTag(key, value string) error {
	if err := ValidateLength("Tag key", key, MaxTagLength); err != nil {
		return err
	}
	return ValidateLength("Tag value", value, MaxTagLength)
}

// ValidateQuery checks raw query text before it is sent to Overpass.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return NewError(ErrEmptyParameter, "Query cannot be empty").
			WithGuidance("Build a query first or pass Overpass QL text.")
	}
	if len(query) > MaxQueryLength {
		return NewValidationError(ErrInvalidParameter,
			fmt.Sprintf("Query is too long: %d bytes (maximum %d)", len(query), MaxQueryLength))
	}
	return nil
}

// ValidateCoords checks that lat and lon are finite and in range.
func ValidateCoords(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return NewError(ErrInvalidParameter, fmt.Sprintf("Latitude must be between -90 and 90, got %v", lat)).
			WithGuidance("Ensure latitude is in decimal degrees")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return NewError(ErrInvalidParameter, fmt.Sprintf("Longitude must be between -180 and 180, got %v", lon)).
			WithGuidance("Ensure longitude is in decimal degrees")
	}
	return nil
}
