package queries

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NERVsystems/overpassqb/pkg/core"
)

// BuildIDQuery builds a lookup for a single OSM element. With recurseDown
// the member ways and nodes of the element are fetched as well.
func BuildIDQuery(elementType ElementType, id int64, recurseDown bool, timeout int) (string, error) {
	switch elementType {
	case Node, Way, Relation:
	default:
		return "", core.NewValidationError(core.ErrInvalidParameter,
			fmt.Sprintf("element type %q cannot be looked up by id", elementType)).
			WithSuggestions(string(Node), string(Way), string(Relation))
	}
	if id <= 0 {
		return "", core.NewValidationError(core.ErrInvalidParameter,
			fmt.Sprintf("OSM id must be positive, got %d", id))
	}

	stmt := string(elementType) + "(" + strconv.FormatInt(id, 10) + ");"

	var b strings.Builder
	b.WriteString("[out:json][timeout:" + strconv.Itoa(ClampTimeout(timeout)) + "];\n")
	if recurseDown {
		b.WriteString("(\n  " + stmt + "\n  >;\n);\n")
	} else {
		b.WriteString(stmt + "\n")
	}
	b.WriteString("out body;\n>;\nout skel qt;")
	return b.String(), nil
}
