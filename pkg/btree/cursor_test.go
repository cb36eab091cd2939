// ABOUTME: Cursor tests: ranges, bounds, and invalidation

package btree

import (
	"fmt"
	"testing"
)

func seedTree(t *testing.T, keys ...string) *Tree {
	t.Helper()
	tree := New(newMemPager(), 5)
	for _, key := range keys {
		if err := tree.Put([]byte(key), []byte("v-"+key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	return tree
}

func drain(t *testing.T, cursor *Cursor) []string {
	t.Helper()
	var out []string
	for {
		ok, err := cursor.Next()
		if err != nil {
			t.Fatalf("cursor failed: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, string(cursor.Key()))
	}
}

func assertKeys(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d keys %v, want %d keys %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCursorFullScan(t *testing.T) {
	tree := seedTree(t, "d", "a", "c", "b")
	assertKeys(t, drain(t, tree.Cursor()), []string{"a", "b", "c", "d"})
}

func TestCursorEmptyTree(t *testing.T) {
	tree := New(newMemPager(), 5)
	if keys := drain(t, tree.Cursor()); len(keys) != 0 {
		t.Fatalf("empty tree yielded %v", keys)
	}

	// The empty-root sentinel also yields nothing
	if err := tree.Put([]byte("x"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := tree.Remove([]byte("x")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if keys := drain(t, tree.Cursor()); len(keys) != 0 {
		t.Fatalf("emptied tree yielded %v", keys)
	}
}

func TestCursorHalfOpenRange(t *testing.T) {
	tree := seedTree(t, "a", "b", "c", "d")
	cursor := tree.CursorRange(Range{
		Lower: &Bound{Key: []byte("b"), Inclusive: true},
		Upper: &Bound{Key: []byte("d")},
	})
	assertKeys(t, drain(t, cursor), []string{"b", "c"})
}

func TestCursorBoundVariants(t *testing.T) {
	tests := []struct {
		name   string
		bounds Range
		want   []string
	}{
		{
			name:   "lower exclusive",
			bounds: Range{Lower: &Bound{Key: []byte("b")}},
			want:   []string{"c", "d"},
		},
		{
			name:   "upper inclusive",
			bounds: Range{Upper: &Bound{Key: []byte("c"), Inclusive: true}},
			want:   []string{"a", "b", "c"},
		},
		{
			name: "closed range",
			bounds: Range{
				Lower: &Bound{Key: []byte("b"), Inclusive: true},
				Upper: &Bound{Key: []byte("c"), Inclusive: true},
			},
			want: []string{"b", "c"},
		},
		{
			name:   "lower between keys",
			bounds: Range{Lower: &Bound{Key: []byte("bb"), Inclusive: true}},
			want:   []string{"c", "d"},
		},
		{
			name: "empty range",
			bounds: Range{
				Lower: &Bound{Key: []byte("x"), Inclusive: true},
			},
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tree := seedTree(t, "a", "b", "c", "d")
			assertKeys(t, drain(t, tree.CursorRange(tc.bounds)), tc.want)
		})
	}
}

func TestCursorRangeAcrossLeaves(t *testing.T) {
	tree := New(newMemPager(), 5)
	var want []string
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("%03d", i)
		if err := tree.Put([]byte(key), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
		if i >= 25 && i < 75 {
			want = append(want, key)
		}
	}

	cursor := tree.CursorRange(Range{
		Lower: &Bound{Key: []byte("025"), Inclusive: true},
		Upper: &Bound{Key: []byte("075")},
	})
	assertKeys(t, drain(t, cursor), want)
}

func TestCursorInvalidatedByMutation(t *testing.T) {
	tree := seedTree(t, "a", "b", "c")
	cursor := tree.Cursor()

	if ok, err := cursor.Next(); !ok || err != nil {
		t.Fatalf("first advance = %v, %v", ok, err)
	}

	if err := tree.Put([]byte("d"), []byte("4")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := cursor.Next(); err != ErrCursorInvalidated {
		t.Fatalf("expected ErrCursorInvalidated, got %v", err)
	}
	// A dead cursor stays dead
	if ok, err := cursor.Next(); ok || err != nil {
		t.Fatalf("re-advance after invalidation = %v, %v", ok, err)
	}
}

func TestCursorInvalidatedByRemove(t *testing.T) {
	tree := seedTree(t, "a", "b")
	cursor := tree.Cursor()

	if _, err := tree.Remove([]byte("a")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := cursor.Next(); err != ErrCursorInvalidated {
		t.Fatalf("expected ErrCursorInvalidated, got %v", err)
	}
}
