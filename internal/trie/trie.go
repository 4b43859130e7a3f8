// Package trie implements a sparse Merkle trie over fixed-width 32-byte
// keys, used for both the accounts root and each contract's storage root.
// Fixing the key width lets the trie walk a constant-depth path per key
// instead of branching on variable-length prefixes.
package trie

import (
	"github.com/kdsmith18542/baals/internal/core"
)

const depth = 256 // one level per bit of a 32-byte key

// emptyHashes[i] is the root hash of an empty subtree of height i (i=0 is a
// single empty leaf, i=depth is the whole empty trie). Precomputing this
// chain means an all-absent trie never needs to touch storage to know its
// root, emptyHashes[depth].
var emptyHashes [depth + 1]core.Hash

func init() {
	emptyHashes[0] = core.Hash{}
	for i := 1; i <= depth; i++ {
		emptyHashes[i] = hashPair(emptyHashes[i-1], emptyHashes[i-1])
	}
}

func hashPair(left, right core.Hash) core.Hash {
	buf := make([]byte, 0, core.HashSize*2)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return core.HashBytes(buf)
}

// EmptyRoot is the root hash of a trie with no entries.
func EmptyRoot() core.Hash { return emptyHashes[depth] }

// NodeStore is the minimal persistence surface the trie needs: addressing
// nodes by their own hash. Storage implements this directly over the
// trie_nodes namespace.
type NodeStore interface {
	GetNode(hash core.Hash) ([]byte, bool, error)
	PutNode(hash core.Hash, value []byte) error
}

// node is either an internal branch (Left, Right) or a leaf (Value). Nodes
// are content-addressed: a node's storage key is its own hash, so identical
// subtrees across different accounts' tries are stored once.
type node struct {
	isLeaf bool
	value  []byte // leaf only
	left   core.Hash
	right  core.Hash
}

func (n *node) encode() []byte {
	if n.isLeaf {
		out := make([]byte, 1+len(n.value))
		out[0] = 1
		copy(out[1:], n.value)
		return out
	}
	out := make([]byte, 1+core.HashSize*2)
	out[0] = 0
	copy(out[1:], n.left[:])
	copy(out[1+core.HashSize:], n.right[:])
	return out
}

func decodeNode(b []byte) *node {
	if len(b) == 0 {
		return nil
	}
	if b[0] == 1 {
		return &node{isLeaf: true, value: append([]byte(nil), b[1:]...)}
	}
	n := &node{isLeaf: false}
	copy(n.left[:], b[1:1+core.HashSize])
	copy(n.right[:], b[1+core.HashSize:1+core.HashSize*2])
	return n
}

func bit(key core.Hash, i int) bool {
	return key[i/8]&(1<<(7-uint(i%8))) != 0
}

// Get walks from root following key's bits and returns the leaf value
// stored there, if any.
func Get(store NodeStore, root core.Hash, key core.Hash) ([]byte, bool, error) {
	cur := root
	for i := 0; i < depth; i++ {
		if cur == emptyHashes[depth-i] {
			return nil, false, nil
		}
		raw, ok, err := store.GetNode(cur)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		n := decodeNode(raw)
		if n.isLeaf {
			return n.value, true, nil
		}
		if bit(key, i) {
			cur = n.right
		} else {
			cur = n.left
		}
	}
	raw, ok, err := store.GetNode(cur)
	if err != nil || !ok {
		return nil, false, err
	}
	n := decodeNode(raw)
	if !n.isLeaf {
		return nil, false, nil
	}
	return n.value, true, nil
}

// Put returns the new root after inserting or overwriting key -> value,
// writing every node it creates along the path through store.
func Put(store NodeStore, root core.Hash, key core.Hash, value []byte) (core.Hash, error) {
	return putAt(store, root, key, value, 0)
}

func putAt(store NodeStore, cur core.Hash, key core.Hash, value []byte, i int) (core.Hash, error) {
	if i == depth {
		leaf := &node{isLeaf: true, value: value}
		h := core.HashBytes(leaf.encode())
		if err := store.PutNode(h, leaf.encode()); err != nil {
			return core.Hash{}, err
		}
		return h, nil
	}

	var left, right core.Hash
	if cur != emptyHashes[depth-i] {
		raw, ok, err := store.GetNode(cur)
		if err != nil {
			return core.Hash{}, err
		}
		if ok {
			n := decodeNode(raw)
			left, right = n.left, n.right
		}
	} else {
		left, right = emptyHashes[depth-i-1], emptyHashes[depth-i-1]
	}

	var err error
	if bit(key, i) {
		right, err = putAt(store, right, key, value, i+1)
	} else {
		left, err = putAt(store, left, key, value, i+1)
	}
	if err != nil {
		return core.Hash{}, err
	}

	branch := &node{left: left, right: right}
	h := core.HashBytes(branch.encode())
	if err := store.PutNode(h, branch.encode()); err != nil {
		return core.Hash{}, err
	}
	return h, nil
}
