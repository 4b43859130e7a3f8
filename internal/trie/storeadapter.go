package trie

import (
	"errors"

	"github.com/kdsmith18542/baals/internal/core"
	internalerrors "github.com/kdsmith18542/baals/internal/errors"
	"github.com/kdsmith18542/baals/internal/storage"
)

// StorageNodeStore adapts the shared storage.Store's trie_nodes namespace
// to the NodeStore interface this package operates against.
type StorageNodeStore struct {
	Store *storage.Store
}

func (s StorageNodeStore) GetNode(hash core.Hash) ([]byte, bool, error) {
	v, err := s.Store.Get(storage.NamespaceTrieNodes, hash[:])
	if errors.Is(err, internalerrors.ErrStorageNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s StorageNodeStore) PutNode(hash core.Hash, value []byte) error {
	return s.Store.Put(storage.NamespaceTrieNodes, hash[:], value)
}
