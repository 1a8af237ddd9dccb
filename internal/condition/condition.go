// Package condition implements the closed condition-tree grammar evaluated
// against event payloads.
//
// A tree is either a combinator node ({"all": [...]}, {"any": [...]}) or a
// leaf ({"op": ..., "field": ..., "value": ...}) with an allow-listed
// operator. Nothing outside this grammar is representable: Parse rejects
// unknown keys, unknown operators, and malformed shapes, so there is no
// regular-expression or arbitrary-code operator by construction. Evaluation
// is total, deterministic, and side-effect-free.
package condition

import (
	"encoding/json"
	"fmt"

	"github.com/ledgerline/autoflow/internal/types"
)

// Operator is an allow-listed leaf comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpPresent     Operator = "present"
)

// knownOperators is the operator allow-list. Parse rejects anything else.
var knownOperators = map[Operator]bool{
	OpEquals:      true,
	OpNotEquals:   true,
	OpContains:    true,
	OpNotContains: true,
	OpStartsWith:  true,
	OpEndsWith:    true,
	OpPresent:     true,
}

// Node is one parsed condition-tree node. Exactly one of All, Any, or the
// leaf fields (Op/Path/Value) is populated.
type Node struct {
	All []*Node
	Any []*Node

	Op    Operator
	Field string
	Path  []Segment
	Value any
}

// IsLeaf reports whether the node is a comparison leaf.
func (n *Node) IsLeaf() bool {
	return n.All == nil && n.Any == nil
}

// Parse validates raw JSON against the closed grammar and returns the tree.
// Enforces MaxConditionDepth and MaxConditionNodes. An empty or null document
// parses to an empty "all" node, which matches every event (vacuous truth).
func Parse(raw json.RawMessage) (*Node, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &Node{All: []*Node{}}, nil
	}

	nodeCount := 0
	return parseNode(raw, 1, &nodeCount)
}

// parseNode parses one node, tracking depth and total node count.
func parseNode(raw json.RawMessage, depth int, nodeCount *int) (*Node, error) {
	if depth > types.MaxConditionDepth {
		return nil, types.ErrConditionTooDeep
	}
	*nodeCount++
	if *nodeCount > types.MaxConditionNodes {
		return nil, types.ErrConditionTooLarge
	}

	// Decode into a key map first so unknown keys are detectable. A closed
	// grammar must reject what it does not understand, not ignore it.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedCondition, err)
	}

	allRaw, hasAll := fields["all"]
	anyRaw, hasAny := fields["any"]
	_, hasOp := fields["op"]

	switch {
	case hasAll && !hasAny && !hasOp:
		if len(fields) != 1 {
			return nil, fmt.Errorf("%w: combinator node has extra keys", types.ErrMalformedCondition)
		}
		children, err := parseChildren(allRaw, depth, nodeCount)
		if err != nil {
			return nil, err
		}
		return &Node{All: children}, nil

	case hasAny && !hasAll && !hasOp:
		if len(fields) != 1 {
			return nil, fmt.Errorf("%w: combinator node has extra keys", types.ErrMalformedCondition)
		}
		children, err := parseChildren(anyRaw, depth, nodeCount)
		if err != nil {
			return nil, err
		}
		return &Node{Any: children}, nil

	case hasOp && !hasAll && !hasAny:
		return parseLeaf(fields)

	default:
		return nil, fmt.Errorf("%w: node must be exactly one of all/any/leaf", types.ErrMalformedCondition)
	}
}

// parseChildren parses an ordered combinator child list.
// Empty lists are valid: "all" of nothing is vacuously true, "any" of
// nothing is vacuously false.
func parseChildren(raw json.RawMessage, depth int, nodeCount *int) ([]*Node, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: combinator children must be an array", types.ErrMalformedCondition)
	}

	children := make([]*Node, 0, len(items))
	for _, item := range items {
		child, err := parseNode(item, depth+1, nodeCount)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// parseLeaf validates a comparison leaf: allow-listed operator, parseable
// field path, and a value of the type the operator requires.
func parseLeaf(fields map[string]json.RawMessage) (*Node, error) {
	for key := range fields {
		if key != "op" && key != "field" && key != "value" {
			return nil, fmt.Errorf("%w: unknown leaf key %q", types.ErrMalformedCondition, key)
		}
	}

	var op string
	if err := json.Unmarshal(fields["op"], &op); err != nil {
		return nil, fmt.Errorf("%w: op must be a string", types.ErrMalformedCondition)
	}
	if !knownOperators[Operator(op)] {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownOperator, op)
	}

	fieldRaw, ok := fields["field"]
	if !ok {
		return nil, fmt.Errorf("%w: leaf requires field", types.ErrMalformedCondition)
	}
	var field string
	if err := json.Unmarshal(fieldRaw, &field); err != nil {
		return nil, fmt.Errorf("%w: field must be a string", types.ErrMalformedCondition)
	}
	path, err := ParsePath(field)
	if err != nil {
		return nil, err
	}

	node := &Node{Op: Operator(op), Field: field, Path: path}

	valueRaw, hasValue := fields["value"]
	if Operator(op) == OpPresent {
		if hasValue {
			return nil, fmt.Errorf("%w: present takes no value", types.ErrMalformedCondition)
		}
		return node, nil
	}

	if !hasValue {
		return nil, fmt.Errorf("%w: operator %q requires value", types.ErrMalformedCondition, op)
	}
	var value any
	if err := json.Unmarshal(valueRaw, &value); err != nil {
		return nil, fmt.Errorf("%w: invalid value", types.ErrMalformedCondition)
	}

	switch value.(type) {
	case string:
	case float64, bool:
		// String-only operators require string literals.
		switch Operator(op) {
		case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
			return nil, fmt.Errorf("%w: operator %q requires a string value", types.ErrMalformedCondition, op)
		}
	default:
		// null, arrays, and objects are not comparable literals.
		return nil, fmt.Errorf("%w: value must be a scalar", types.ErrMalformedCondition)
	}
	node.Value = value

	return node, nil
}
