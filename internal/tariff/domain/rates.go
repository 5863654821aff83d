package tariff

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// RateTree is the nested `types` mapping of a charge: keys are voltage
// classes, seasons or rate periods depending on the charge kind, leaves are
// numeric rates.
type RateTree struct {
	leaf     bool
	value    float64
	children map[string]RateTree
}

// RateLeaf returns a tree holding one rate.
func RateLeaf(v float64) RateTree {
	return RateTree{leaf: true, value: v}
}

// RateBranch returns a tree keyed by the given children. The map is copied.
func RateBranch(children map[string]RateTree) RateTree {
	copied := make(map[string]RateTree, len(children))
	for k, v := range children {
		copied[k] = v
	}
	return RateTree{children: copied}
}

// RateTreeFromValue converts a decoded YAML/JSON value into a RateTree.
func RateTreeFromValue(v any) (RateTree, error) {
	switch typed := v.(type) {
	case float64:
		return leafFromFloat(typed)
	case float32:
		return leafFromFloat(float64(typed))
	case int:
		return leafFromFloat(float64(typed))
	case int64:
		return leafFromFloat(float64(typed))
	case uint64:
		return leafFromFloat(float64(typed))
	case map[string]any:
		children := make(map[string]RateTree, len(typed))
		for k, child := range typed {
			tree, err := RateTreeFromValue(child)
			if err != nil {
				return RateTree{}, fmt.Errorf("%s: %w", k, err)
			}
			children[k] = tree
		}
		return RateTree{children: children}, nil
	case map[any]any:
		children := make(map[string]RateTree, len(typed))
		for k, child := range typed {
			key := fmt.Sprint(k)
			tree, err := RateTreeFromValue(child)
			if err != nil {
				return RateTree{}, fmt.Errorf("%s: %w", key, err)
			}
			children[key] = tree
		}
		return RateTree{children: children}, nil
	case nil:
		return RateTree{}, fmt.Errorf("missing rate")
	default:
		return RateTree{}, fmt.Errorf("unsupported rate value %T", v)
	}
}

func leafFromFloat(v float64) (RateTree, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return RateTree{}, fmt.Errorf("rate is not a finite number")
	}
	if v < 0 {
		return RateTree{}, fmt.Errorf("negative rate %v", v)
	}
	return RateLeaf(v), nil
}

// IsLeaf reports whether the tree holds a single rate.
func (t RateTree) IsLeaf() bool { return t.leaf }

// Keys returns the sorted child keys.
func (t RateTree) Keys() []string {
	keys := make([]string, 0, len(t.children))
	for k := range t.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Child returns the subtree under key.
func (t RateTree) Child(key string) (RateTree, bool) {
	child, ok := t.children[key]
	return child, ok
}

// Depth returns the uniform number of keys from root to every leaf, or -1
// when leaves sit at different depths or a branch is empty.
func (t RateTree) Depth() int {
	if t.leaf {
		return 0
	}
	if len(t.children) == 0 {
		return -1
	}
	depth := -2
	for _, child := range t.children {
		d := child.Depth()
		if d < 0 {
			return -1
		}
		if depth == -2 {
			depth = d
			continue
		}
		if d != depth {
			return -1
		}
	}
	return depth + 1
}

// Lookup walks the tree along path and returns the rate at its end.
func (t RateTree) Lookup(path ...string) (float64, error) {
	node := t
	for i, key := range path {
		if node.leaf {
			return 0, &RateNotFoundError{Path: slices.Clone(path[:i+1])}
		}
		child, ok := node.children[key]
		if !ok {
			return 0, &RateNotFoundError{Path: slices.Clone(path[:i+1])}
		}
		node = child
	}
	if !node.leaf {
		return 0, &RateNotFoundError{Path: slices.Clone(path)}
	}
	return node.value, nil
}
