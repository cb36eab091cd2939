// ABOUTME: In-memory node model for the B+ tree
// ABOUTME: Tagged variant {EmptyRoot, Internal, Leaf} with ordered-slice operations

package btree

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// NodeKind discriminates the node variants.
type NodeKind int

const (
	// KindEmptyRoot marks a tree that has no entries yet.
	KindEmptyRoot NodeKind = iota
	// KindInternal is a routing node holding keys and child page IDs.
	KindInternal
	// KindLeaf holds the key-value entries.
	KindLeaf
)

const emptyRootTag = "empty_root"

// Node is one B+ tree node. Internal nodes use Keys and Children
// (len(Children) == len(Keys)+1); leaves use Keys and Values in
// parallel, keys strictly ascending.
type Node struct {
	Kind     NodeKind
	Keys     [][]byte
	Values   [][]byte
	Children []uint64
}

// NewEmptyRoot returns the sentinel for a tree without entries.
func NewEmptyRoot() *Node {
	return &Node{Kind: KindEmptyRoot}
}

// NewLeaf returns a leaf with the given parallel entries.
func NewLeaf(keys, values [][]byte) *Node {
	return &Node{Kind: KindLeaf, Keys: keys, Values: values}
}

// NewInternal returns an internal node with the given keys and children.
func NewInternal(keys [][]byte, children []uint64) *Node {
	return &Node{Kind: KindInternal, Keys: keys, Children: children}
}

// SearchLeaf binary-searches a leaf. It returns the entry index and
// true on an exact match, otherwise the insertion index and false.
func (n *Node) SearchLeaf(key []byte) (int, bool) {
	idx := sort.Search(len(n.Keys), func(i int) bool {
		return bytes.Compare(n.Keys[i], key) >= 0
	})
	if idx < len(n.Keys) && bytes.Equal(n.Keys[idx], key) {
		return idx, true
	}
	return idx, false
}

// ChildIndex returns the child to descend into for key. Keys equal to
// a separator route to the right of it.
func (n *Node) ChildIndex(key []byte) int {
	return sort.Search(len(n.Keys), func(i int) bool {
		return bytes.Compare(n.Keys[i], key) > 0
	})
}

// InsertEntry inserts a key-value pair into a leaf at index i.
func (n *Node) InsertEntry(i int, key, value []byte) {
	n.Keys = append(n.Keys, nil)
	copy(n.Keys[i+1:], n.Keys[i:])
	n.Keys[i] = key

	n.Values = append(n.Values, nil)
	copy(n.Values[i+1:], n.Values[i:])
	n.Values[i] = value
}

// RemoveEntry removes the leaf entry at index i.
func (n *Node) RemoveEntry(i int) {
	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Values = append(n.Values[:i], n.Values[i+1:]...)
}

// SplitLeaf splits an overflowing leaf in place. The receiver keeps the
// lower half; the returned right node takes the rest. The separator to
// promote is the right node's first key, which stays in the leaf.
func (n *Node) SplitLeaf() (*Node, []byte) {
	mid := (len(n.Keys) + 1) / 2
	right := &Node{
		Kind:   KindLeaf,
		Keys:   append([][]byte(nil), n.Keys[mid:]...),
		Values: append([][]byte(nil), n.Values[mid:]...),
	}
	n.Keys = n.Keys[:mid:mid]
	n.Values = n.Values[:mid:mid]
	return right, right.Keys[0]
}

// SplitInternal splits an overflowing internal node in place. The
// median key is promoted and kept by neither half.
func (n *Node) SplitInternal() (*Node, []byte) {
	mid := len(n.Keys) / 2
	sep := n.Keys[mid]
	right := &Node{
		Kind:     KindInternal,
		Keys:     append([][]byte(nil), n.Keys[mid+1:]...),
		Children: append([]uint64(nil), n.Children[mid+1:]...),
	}
	n.Keys = n.Keys[:mid:mid]
	n.Children = n.Children[:mid+1 : mid+1]
	return right, sep
}

// InsertChild inserts a separator at key index i and the page ID of the
// child that follows it.
func (n *Node) InsertChild(i int, sep []byte, child uint64) {
	n.Keys = append(n.Keys, nil)
	copy(n.Keys[i+1:], n.Keys[i:])
	n.Keys[i] = sep

	n.Children = append(n.Children, 0)
	copy(n.Children[i+2:], n.Children[i+1:])
	n.Children[i+1] = child
}

// RemoveChild removes separator i and the child to its right.
func (n *Node) RemoveChild(i int) {
	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Children = append(n.Children[:i+1], n.Children[i+2:]...)
}

// EncodeMsgpack writes the node wire form: the bare string
// "empty_root", or a single-entry map tagged "internal" or "leaf".
func (n *Node) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch n.Kind {
	case KindEmptyRoot:
		return enc.EncodeString(emptyRootTag)
	case KindInternal:
		if err := enc.EncodeMapLen(1); err != nil {
			return err
		}
		if err := enc.EncodeString("internal"); err != nil {
			return err
		}
		if err := enc.EncodeMapLen(2); err != nil {
			return err
		}
		if err := enc.EncodeString("keys"); err != nil {
			return err
		}
		if err := encodeBinArray(enc, n.Keys); err != nil {
			return err
		}
		if err := enc.EncodeString("children"); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(n.Children)); err != nil {
			return err
		}
		for _, child := range n.Children {
			if err := enc.EncodeUint64(child); err != nil {
				return err
			}
		}
		return nil
	case KindLeaf:
		if err := enc.EncodeMapLen(1); err != nil {
			return err
		}
		if err := enc.EncodeString("leaf"); err != nil {
			return err
		}
		if err := enc.EncodeMapLen(2); err != nil {
			return err
		}
		if err := enc.EncodeString("keys"); err != nil {
			return err
		}
		if err := encodeBinArray(enc, n.Keys); err != nil {
			return err
		}
		if err := enc.EncodeString("values"); err != nil {
			return err
		}
		return encodeBinArray(enc, n.Values)
	default:
		return fmt.Errorf("unknown node kind %d", n.Kind)
	}
}

// DecodeMsgpack reads the node wire form written by EncodeMsgpack.
func (n *Node) DecodeMsgpack(dec *msgpack.Decoder) error {
	code, err := dec.PeekCode()
	if err != nil {
		return err
	}

	if msgpcode.IsString(code) {
		tag, err := dec.DecodeString()
		if err != nil {
			return err
		}
		if tag != emptyRootTag {
			return fmt.Errorf("unknown node tag %q", tag)
		}
		*n = Node{Kind: KindEmptyRoot}
		return nil
	}

	entries, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if entries != 1 {
		return fmt.Errorf("node map has %d entries", entries)
	}

	tag, err := dec.DecodeString()
	if err != nil {
		return err
	}
	switch tag {
	case "internal":
		*n = Node{Kind: KindInternal}
		return n.decodeFields(dec, "children")
	case "leaf":
		*n = Node{Kind: KindLeaf}
		return n.decodeFields(dec, "values")
	default:
		return fmt.Errorf("unknown node tag %q", tag)
	}
}

// decodeFields reads the inner {keys, children|values} map.
func (n *Node) decodeFields(dec *msgpack.Decoder, second string) error {
	entries, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < entries; i++ {
		field, err := dec.DecodeString()
		if err != nil {
			return err
		}
		switch {
		case field == "keys":
			if n.Keys, err = decodeBinArray(dec); err != nil {
				return err
			}
		case field == "values" && field == second:
			if n.Values, err = decodeBinArray(dec); err != nil {
				return err
			}
		case field == "children" && field == second:
			count, err := dec.DecodeArrayLen()
			if err != nil {
				return err
			}
			n.Children = make([]uint64, count)
			for j := 0; j < count; j++ {
				if n.Children[j], err = dec.DecodeUint64(); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("unexpected node field %q", field)
		}
	}
	return nil
}

func encodeBinArray(enc *msgpack.Encoder, items [][]byte) error {
	if err := enc.EncodeArrayLen(len(items)); err != nil {
		return err
	}
	for _, item := range items {
		if item == nil {
			item = []byte{}
		}
		if err := enc.EncodeBytes(item); err != nil {
			return err
		}
	}
	return nil
}

func decodeBinArray(dec *msgpack.Decoder) ([][]byte, error) {
	count, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	items := make([][]byte, count)
	for i := 0; i < count; i++ {
		data, err := dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		if data == nil {
			data = []byte{}
		}
		items[i] = data
	}
	return items, nil
}
