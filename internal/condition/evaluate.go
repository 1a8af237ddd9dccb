// internal/condition/evaluate.go
package condition

import (
	"encoding/json"
	"fmt"

	"github.com/ledgerline/autoflow/internal/types"
)

/*
 * Condition tree evaluation.
 *
 * Evaluate checks a parsed tree against one event payload. Pure and
 * deterministic: no I/O, no clock, no randomness. Errors are possible only
 * for unparseable payloads or trees that bypassed Parse; callers must treat
 * an evaluation error exactly like a disabled rule, never as a match.
 *
 * Leaf semantics:
 *   - missing field -> false for every operator except present
 *   - present -> true iff the field exists and is non-null
 *   - string operators compare exact, case-sensitive
 *   - combinators: all = AND (vacuously true), any = OR (vacuously false)
 */

// Evaluate checks whether the tree matches the payload.
func Evaluate(tree *Node, payload json.RawMessage) (bool, error) {
	if tree == nil {
		return false, types.ErrMalformedCondition
	}

	var doc any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &doc); err != nil {
			return false, fmt.Errorf("payload not valid JSON: %w", err)
		}
	}

	return evaluateNode(tree, doc)
}

// evaluateNode recursively evaluates one node against the parsed payload.
func evaluateNode(n *Node, doc any) (bool, error) {
	switch {
	case n.All != nil:
		for _, child := range n.All {
			matched, err := evaluateNode(child, doc)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
		}
		return true, nil

	case n.Any != nil:
		for _, child := range n.Any {
			matched, err := evaluateNode(child, doc)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil

	default:
		return evaluateLeaf(n, doc)
	}
}

// evaluateLeaf resolves the field path and applies the operator.
func evaluateLeaf(n *Node, doc any) (bool, error) {
	if !knownOperators[n.Op] {
		// Unreachable for trees built by Parse; defensive for hand-built ones.
		return false, fmt.Errorf("%w: %q", types.ErrUnknownOperator, n.Op)
	}

	value, found := Resolve(n.Path, doc)

	if n.Op == OpPresent {
		return found && value != nil, nil
	}
	if !found || value == nil {
		return false, nil
	}
	return compare(n.Op, value, n.Value), nil
}
