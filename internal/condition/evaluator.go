package condition

import (
	"fmt"
	"strings"
)

// Evaluate walks the tree against an event payload. It is pure: no I/O, no
// side effects, deterministic for the same inputs (the dry-run service depends
// on this). Data problems such as missing fields or uncastable values are
// never errors, only non-matches. Only structural corruption returns ErrMalformed,
// and callers are expected to treat that as non-match after logging.
func Evaluate(root *Condition, payload map[string]any) (bool, error) {
	if root == nil {
		return true, nil
	}
	return eval(root, payload)
}

func eval(c *Condition, payload map[string]any) (bool, error) {
	if c.IsLeaf() {
		return evalLeaf(c, payload)
	}
	if len(c.Children) == 0 {
		return false, fmt.Errorf("%w: %s node has no children", ErrMalformed, c.Op)
	}
	switch c.Op {
	case OpAnd:
		for _, child := range c.Children {
			ok, err := eval(child, payload)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil // short-circuit
			}
		}
		return true, nil
	case OpOr:
		for _, child := range c.Children {
			ok, err := eval(child, payload)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil // short-circuit
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown boolean operator %q", ErrMalformed, c.Op)
	}
}

func evalLeaf(c *Condition, payload map[string]any) (bool, error) {
	fieldValue, found := resolve(payload, strings.Split(c.Field, "."))
	if !found {
		// Absence is not an error, only a non-match.
		return false, nil
	}
	switch c.Operator {
	case OpEq:
		return looseEqual(fieldValue, c.Value), nil
	case OpNeq:
		return !looseEqual(fieldValue, c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		return orderedCompare(c.Operator, fieldValue, c.Value), nil
	case OpContains:
		return containsOp(fieldValue, c.Value), nil
	case OpIn:
		return inOp(fieldValue, c.Value), nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrMalformed, c.Operator)
	}
}

// resolve walks a dotted path into nested maps.
func resolve(m map[string]any, path []string) (any, bool) {
	if len(path) == 0 || m == nil {
		return nil, false
	}
	val, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return val, true
	}
	sub, ok := val.(map[string]any)
	if !ok {
		return nil, false
	}
	return resolve(sub, path[1:])
}
