// Package storage is the single persistence layer BaaLS components share: a
// namespaced key-value store atop bbolt, one bucket per logical concern.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	internalerrors "github.com/kdsmith18542/baals/internal/errors"
)

// Namespace names one bolt bucket; each bucket holds one kind of record.
type Namespace []byte

var (
	NamespaceBlocksByHash   Namespace = []byte("blocks_by_hash")
	NamespaceBlocksByHeight Namespace = []byte("blocks_by_height")
	NamespaceTxIndex        Namespace = []byte("tx_index")
	NamespaceMempool        Namespace = []byte("mempool")
	NamespaceAccounts       Namespace = []byte("accounts")
	NamespaceContractCode   Namespace = []byte("contract_code")
	NamespaceContractStore  Namespace = []byte("contract_storage")
	NamespaceChainState     Namespace = []byte("chain_state")
	NamespaceTrieNodes      Namespace = []byte("trie_nodes")
)

var allNamespaces = []Namespace{
	NamespaceBlocksByHash,
	NamespaceBlocksByHeight,
	NamespaceTxIndex,
	NamespaceMempool,
	NamespaceAccounts,
	NamespaceContractCode,
	NamespaceContractStore,
	NamespaceChainState,
	NamespaceTrieNodes,
}

// Store wraps a single bbolt database file holding every BaaLS namespace.
type Store struct {
	db   *bolt.DB
	path string
}

// Open creates (if needed) and opens the node's data directory and database
// file, and ensures every namespace bucket exists.
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("storage: dataDir required")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerrors.ErrStorageIO, err)
	}

	path := filepath.Join(dataDir, "baals.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", internalerrors.ErrStorageIO, path, err)
	}

	s := &Store{db: db, path: path}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, ns := range allNamespaces {
			if _, err := tx.CreateBucketIfNotExists(ns); err != nil {
				return fmt.Errorf("create bucket %s: %w", ns, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", internalerrors.ErrStorageIO, err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string { return s.path }

// Get reads a single key from a namespace. A missing key is reported via
// ErrStorageNotFound, not a nil/false pair, so callers can use errors.Is
// uniformly across the whole storage surface.
func (s *Store) Get(ns Namespace, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(ns).Get(key)
		if v == nil {
			return internalerrors.ErrStorageNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Has reports whether key is present in ns without copying its value.
func (s *Store) Has(ns Namespace, key []byte) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(ns).Get(key) != nil
		return nil
	})
	return found, err
}

// Put writes a single key in a single bolt transaction.
func (s *Store) Put(ns Namespace, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ns).Put(key, value)
	})
}

// Delete removes a single key.
func (s *Store) Delete(ns Namespace, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ns).Delete(key)
	})
}

// Write is a single key/value/namespace triple applied as part of a Batch.
type Write struct {
	Namespace Namespace
	Key       []byte
	Value     []byte // nil Value means delete
}

// Batch applies every write atomically in one bolt transaction: either all
// of them land, or (on error) none do. This is how the ledger commits a
// block's account/contract/chain-state updates alongside each other.
func (s *Store) Batch(writes []Write) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, w := range writes {
			b := tx.Bucket(w.Namespace)
			if b == nil {
				return fmt.Errorf("storage: unknown namespace %s", w.Namespace)
			}
			if w.Value == nil {
				if err := b.Delete(w.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(w.Key, w.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot is a consistent, read-only view obtained from bbolt's MVCC
// transactions: readers never block writers and never see partial writes.
type Snapshot struct {
	tx *bolt.Tx
}

// View opens a read-only snapshot and runs fn against it. The snapshot is
// released when fn returns.
func (s *Store) View(fn func(*Snapshot) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&Snapshot{tx: tx})
	})
}

func (sn *Snapshot) Get(ns Namespace, key []byte) ([]byte, error) {
	v := sn.tx.Bucket(ns).Get(key)
	if v == nil {
		return nil, internalerrors.ErrStorageNotFound
	}
	return append([]byte(nil), v...), nil
}

// ForEach iterates every key/value pair in ns in bolt's byte-sorted key
// order, stopping early if fn returns an error.
func (sn *Snapshot) ForEach(ns Namespace, fn func(key, value []byte) error) error {
	return sn.tx.Bucket(ns).ForEach(fn)
}
