// internal/condition/fieldpath.go
package condition

import (
	"strconv"
	"strings"

	"github.com/ledgerline/autoflow/internal/types"
)

/*
 * Field path parsing and resolution for JSON payloads.
 *
 * Paths are dotted strings ("customer.address.city"). Purely numeric
 * segments index into arrays ("items.0.price"). There are no wildcards: a
 * leaf addresses at most one value, which keeps evaluation cost linear in
 * tree size. MaxFieldPathDepth is enforced at parse time.
 */

// Segment is one component of a parsed field path.
type Segment struct {
	Key     string // object key (unset when IsIndex)
	Index   int    // array index
	IsIndex bool   // disambiguates Index=0 from unset
}

// ParsePath splits a dotted field path into segments.
// Returns ErrMalformedCondition for empty paths or empty segments and
// ErrFieldPathTooDeep past MaxFieldPathDepth.
func ParsePath(field string) ([]Segment, error) {
	if field == "" {
		return nil, types.ErrMalformedCondition
	}

	parts := strings.Split(field, ".")
	if len(parts) > types.MaxFieldPathDepth {
		return nil, types.ErrFieldPathTooDeep
	}

	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, types.ErrMalformedCondition
		}
		if idx, err := strconv.Atoi(part); err == nil && idx >= 0 {
			segments = append(segments, Segment{Index: idx, IsIndex: true})
			continue
		}
		segments = append(segments, Segment{Key: part})
	}
	return segments, nil
}

// Resolve traverses parsed payload data following path segments.
// Returns the addressed value and whether the full path exists. A missing
// field is not an error; leaves treat it as a non-match (present excepted).
func Resolve(path []Segment, data any) (any, bool) {
	current := data
	for _, seg := range path {
		switch v := current.(type) {
		case map[string]any:
			if seg.IsIndex {
				// Integer segment cannot index into an object.
				return nil, false
			}
			val, ok := v[seg.Key]
			if !ok {
				return nil, false
			}
			current = val

		case []any:
			if !seg.IsIndex {
				return nil, false
			}
			if seg.Index < 0 || seg.Index >= len(v) {
				return nil, false
			}
			current = v[seg.Index]

		default:
			// Scalar or null at an intermediate position.
			return nil, false
		}
	}
	return current, true
}
