package condition

import (
	"errors"
	"fmt"
)

// Operator is a leaf comparison operator.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
)

// BoolOp combines the results of a node's children.
type BoolOp string

const (
	OpAnd BoolOp = "AND"
	OpOr  BoolOp = "OR"
)

// ErrMalformed marks structural problems in a condition tree (node with no
// children, unknown operator). It is a configuration error: rule writes are
// rejected with it, and a corrupt stored tree fails closed at evaluation time.
var ErrMalformed = errors.New("malformed condition")

// Condition is a tagged union. A leaf sets Field/Operator/Value; a node sets
// Op/Children. A nil *Condition means "always match".
type Condition struct {
	// Leaf fields.
	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`

	// Node fields.
	Op       BoolOp       `json:"op,omitempty"`
	Children []*Condition `json:"children,omitempty"`
}

// IsLeaf reports whether c carries a comparison rather than a boolean node.
func (c *Condition) IsLeaf() bool {
	return c.Op == ""
}

var validOperators = map[Operator]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpContains: {}, OpIn: {},
}

// Validate checks the tree structurally. It is run at rule save time so that
// malformed trees are rejected before they can reach a worker.
func Validate(root *Condition) error {
	if root == nil {
		return nil
	}
	return validate(root, "conditions")
}

func validate(c *Condition, path string) error {
	if c.IsLeaf() {
		if c.Field == "" {
			return fmt.Errorf("%w: %s: leaf field is required", ErrMalformed, path)
		}
		if _, ok := validOperators[c.Operator]; !ok {
			return fmt.Errorf("%w: %s: unknown operator %q", ErrMalformed, path, c.Operator)
		}
		if c.Operator == OpIn {
			if _, ok := asSlice(c.Value); !ok {
				return fmt.Errorf("%w: %s: operator %q requires a list value", ErrMalformed, path, OpIn)
			}
		}
		if len(c.Children) > 0 {
			return fmt.Errorf("%w: %s: leaf must not have children", ErrMalformed, path)
		}
		return nil
	}
	if c.Op != OpAnd && c.Op != OpOr {
		return fmt.Errorf("%w: %s: unknown boolean operator %q", ErrMalformed, path, c.Op)
	}
	if len(c.Children) == 0 {
		return fmt.Errorf("%w: %s: %s node has no children", ErrMalformed, path, c.Op)
	}
	if c.Field != "" || c.Operator != "" {
		return fmt.Errorf("%w: %s: node must not carry leaf fields", ErrMalformed, path)
	}
	for i, child := range c.Children {
		if err := validate(child, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}
