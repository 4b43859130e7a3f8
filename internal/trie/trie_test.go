package trie_test

import (
	"testing"

	"github.com/kdsmith18542/baals/internal/core"
	"github.com/kdsmith18542/baals/internal/trie"
)

type memStore struct {
	nodes map[core.Hash][]byte
}

func newMemStore() *memStore { return &memStore{nodes: map[core.Hash][]byte{}} }

func (m *memStore) GetNode(h core.Hash) ([]byte, bool, error) {
	v, ok := m.nodes[h]
	return v, ok, nil
}

func (m *memStore) PutNode(h core.Hash, value []byte) error {
	m.nodes[h] = value
	return nil
}

func TestEmptyTrieLookupMisses(t *testing.T) {
	store := newMemStore()
	key := core.HashBytes([]byte("alice"))
	_, ok, err := trie.Get(store, trie.EmptyRoot(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected empty trie to have no entries")
	}
}

func TestPutThenGet(t *testing.T) {
	store := newMemStore()
	key := core.HashBytes([]byte("alice"))
	val := []byte("account-bytes")

	root, err := trie.Put(store, trie.EmptyRoot(), key, val)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := trie.Get(store, root, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be present")
	}
	if string(got) != string(val) {
		t.Fatalf("got %q, want %q", got, val)
	}
}

func TestDistinctKeysDoNotCollide(t *testing.T) {
	store := newMemStore()
	keyA := core.HashBytes([]byte("alice"))
	keyB := core.HashBytes([]byte("bob"))

	root, err := trie.Put(store, trie.EmptyRoot(), keyA, []byte("a"))
	if err != nil {
		t.Fatalf("put a: %v", err)
	}
	root, err = trie.Put(store, root, keyB, []byte("b"))
	if err != nil {
		t.Fatalf("put b: %v", err)
	}

	gotA, _, err := trie.Get(store, root, keyA)
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	gotB, _, err := trie.Get(store, root, keyB)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if string(gotA) != "a" || string(gotB) != "b" {
		t.Fatalf("got a=%q b=%q", gotA, gotB)
	}
}

func TestUpdateChangesRoot(t *testing.T) {
	store := newMemStore()
	key := core.HashBytes([]byte("alice"))

	root1, err := trie.Put(store, trie.EmptyRoot(), key, []byte("v1"))
	if err != nil {
		t.Fatalf("put v1: %v", err)
	}
	root2, err := trie.Put(store, root1, key, []byte("v2"))
	if err != nil {
		t.Fatalf("put v2: %v", err)
	}
	if root1 == root2 {
		t.Fatal("expected updating a key to change the root")
	}

	v1, _, err := trie.Get(store, root1, key)
	if err != nil {
		t.Fatalf("get root1: %v", err)
	}
	if string(v1) != "v1" {
		t.Fatalf("root1 should still resolve to v1, got %q", v1)
	}

	v2, _, err := trie.Get(store, root2, key)
	if err != nil {
		t.Fatalf("get root2: %v", err)
	}
	if string(v2) != "v2" {
		t.Fatalf("root2 should resolve to v2, got %q", v2)
	}
}

func TestDeterministicRootAcrossInsertionOrder(t *testing.T) {
	keyA := core.HashBytes([]byte("alice"))
	keyB := core.HashBytes([]byte("bob"))

	storeAB := newMemStore()
	rootAB, err := trie.Put(storeAB, trie.EmptyRoot(), keyA, []byte("a"))
	if err != nil {
		t.Fatalf("put a: %v", err)
	}
	rootAB, err = trie.Put(storeAB, rootAB, keyB, []byte("b"))
	if err != nil {
		t.Fatalf("put b: %v", err)
	}

	storeBA := newMemStore()
	rootBA, err := trie.Put(storeBA, trie.EmptyRoot(), keyB, []byte("b"))
	if err != nil {
		t.Fatalf("put b: %v", err)
	}
	rootBA, err = trie.Put(storeBA, rootBA, keyA, []byte("a"))
	if err != nil {
		t.Fatalf("put a: %v", err)
	}

	if rootAB != rootBA {
		t.Fatal("expected trie root to be independent of insertion order")
	}
}
