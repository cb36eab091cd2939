// ABOUTME: Structural verification sweep over every reachable page
// ABOUTME: Checks ordering, fill bounds, child counts, and separator correctness

package btree

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrTreeInvalid indicates a structural invariant does not hold.
var ErrTreeInvalid = errors.New("btree: invariant violated")

// verifyFrame carries the key window a subtree's keys must fall in:
// lower inclusive, upper exclusive, nil for unbounded.
type verifyFrame struct {
	id     uint64
	lower  []byte
	upper  []byte
	isRoot bool
}

// Verify walks every reachable page and checks node-level invariants.
// It returns the set of reachable page IDs so the caller can check
// store-level accounting against it.
func (t *Tree) Verify() (map[uint64]struct{}, error) {
	reachable := make(map[uint64]struct{})
	rootID := t.pager.Root()
	if rootID == 0 {
		return reachable, nil
	}

	stack := []verifyFrame{{id: rootID, isRoot: true}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := reachable[f.id]; seen {
			return nil, fmt.Errorf("%w: page %d reachable twice", ErrTreeInvalid, f.id)
		}
		reachable[f.id] = struct{}{}

		node, err := t.pager.Load(f.id)
		if err != nil {
			return nil, err
		}

		if node.Kind == KindEmptyRoot {
			if !f.isRoot {
				return nil, fmt.Errorf("%w: empty-root sentinel below the root at page %d", ErrTreeInvalid, f.id)
			}
			continue
		}

		if err := t.verifyKeys(node, f); err != nil {
			return nil, err
		}

		switch node.Kind {
		case KindLeaf:
			if len(node.Values) != len(node.Keys) {
				return nil, fmt.Errorf("%w: leaf %d has %d keys but %d values",
					ErrTreeInvalid, f.id, len(node.Keys), len(node.Values))
			}
		case KindInternal:
			if len(node.Children) != len(node.Keys)+1 {
				return nil, fmt.Errorf("%w: internal %d has %d keys but %d children",
					ErrTreeInvalid, f.id, len(node.Keys), len(node.Children))
			}
			for i, child := range node.Children {
				cf := verifyFrame{id: child, lower: f.lower, upper: f.upper}
				if i > 0 {
					cf.lower = node.Keys[i-1]
				}
				if i < len(node.Keys) {
					cf.upper = node.Keys[i]
				}
				stack = append(stack, cf)
			}
		default:
			return nil, fmt.Errorf("%w: page %d has unknown node kind %d", ErrTreeInvalid, f.id, node.Kind)
		}
	}
	return reachable, nil
}

// verifyKeys checks ordering, the fill bounds, and the key window
// inherited from ancestor separators.
func (t *Tree) verifyKeys(node *Node, f verifyFrame) error {
	n := len(node.Keys)
	if !f.isRoot {
		if n < t.minKeys() || n > t.keysPerNode {
			return fmt.Errorf("%w: page %d holds %d keys, outside [%d, %d]",
				ErrTreeInvalid, f.id, n, t.minKeys(), t.keysPerNode)
		}
	} else {
		if n < 1 || n > t.keysPerNode {
			return fmt.Errorf("%w: root page %d holds %d keys", ErrTreeInvalid, f.id, n)
		}
	}

	for i, key := range node.Keys {
		if i > 0 && bytes.Compare(node.Keys[i-1], key) >= 0 {
			return fmt.Errorf("%w: page %d keys out of order at index %d", ErrTreeInvalid, f.id, i)
		}
		if f.lower != nil && bytes.Compare(key, f.lower) < 0 {
			return fmt.Errorf("%w: page %d key below ancestor separator", ErrTreeInvalid, f.id)
		}
		if f.upper != nil && bytes.Compare(key, f.upper) >= 0 {
			return fmt.Errorf("%w: page %d key at or above ancestor separator", ErrTreeInvalid, f.id)
		}
	}
	return nil
}
