// Package queries turns structured filter input into Overpass QL programs.
//
// The package is pure: every function recomputes its output from its
// arguments, so the same input always produces byte-identical query text.
package queries

import (
	"fmt"
	"strings"

	"github.com/NERVsystems/overpassqb/pkg/core"
)

// ElementType selects which OSM elements a statement matches.
type ElementType string

// Supported element types, in the order statements are emitted.
const (
	Node     ElementType = "node"
	Way      ElementType = "way"
	Relation ElementType = "relation"
	NWR      ElementType = "nwr"
)

// elementOrder fixes the statement order regardless of input order.
var elementOrder = []ElementType{Node, Way, Relation, NWR}

// ParseElementType converts user input into an ElementType.
// An empty string defaults to nwr.
func ParseElementType(s string) (ElementType, error) {
	switch ElementType(strings.ToLower(strings.TrimSpace(s))) {
	case Node:
		return Node, nil
	case Way:
		return Way, nil
	case Relation:
		return Relation, nil
	case NWR, "":
		return NWR, nil
	}
	return "", core.NewValidationError(core.ErrInvalidParameter,
		fmt.Sprintf("unknown element type %q", s)).
		WithSuggestions(string(Node), string(Way), string(Relation), string(NWR))
}

// Operator is an Overpass tag comparison operator.
type Operator string

// Supported operators.
const (
	Equals         Operator = "="
	NotEquals      Operator = "!="
	Matches        Operator = "~"
	NotMatches     Operator = "!~"
	PrefixMatch    Operator = "^~"
	NotPrefixMatch Operator = "!^~"
)

// ParseOperator validates an operator. An empty string defaults to "=".
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case "":
		return Equals, nil
	case Equals, NotEquals, Matches, NotMatches, PrefixMatch, NotPrefixMatch:
		return op, nil
	}
	return "", core.NewValidationError(core.ErrInvalidParameter,
		fmt.Sprintf("unknown operator %q", s)).
		WithSuggestions("=", "!=", "~", "!~", "^~", "!^~")
}

// Condition is one tag filter row.
type Condition struct {
	ElementType ElementType `json:"element_type" yaml:"element_type"`
	Key         string      `json:"key" yaml:"key"`
	Operator    Operator    `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value       string      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Fragment renders the condition as an Overpass tag filter.
// It returns false when the key is empty; such conditions never reach
// the builder.
func (c Condition) Fragment() (string, bool) {
	key := strings.TrimSpace(c.Key)
	if key == "" {
		return "", false
	}
	if c.Value == "" {
		return "[" + quote(key) + "]", true
	}
	op := c.Operator
	if op == "" {
		op = Equals
	}
	return "[" + quote(key) + string(op) + quote(c.Value) + "]", true
}

// Validate checks the enum fields of a condition.
func (c Condition) Validate() error {
	if _, err := ParseElementType(string(c.ElementType)); err != nil {
		return err
	}
	_, err := ParseOperator(string(c.Operator))
	return err
}

// quote wraps s in double quotes, escaping backslashes and quotes.
func quote(s string) string {
	return `"` + escape(s) + `"`
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escape(s string) string {
	return escaper.Replace(s)
}
