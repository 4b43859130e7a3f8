package storage_test

import (
	"errors"
	"testing"

	internalerrors "github.com/kdsmith18542/baals/internal/errors"
	"github.com/kdsmith18542/baals/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	key := []byte("alice")
	val := []byte("balance:100")

	if err := s.Put(storage.NamespaceAccounts, key, val); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(storage.NamespaceAccounts, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(val) {
		t.Fatalf("got %q, want %q", got, val)
	}
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(storage.NamespaceAccounts, []byte("nobody"))
	if !errors.Is(err, internalerrors.ErrStorageNotFound) {
		t.Fatalf("expected ErrStorageNotFound, got %v", err)
	}
}

func TestBatchIsAtomic(t *testing.T) {
	s := openTestStore(t)
	writes := []storage.Write{
		{Namespace: storage.NamespaceAccounts, Key: []byte("alice"), Value: []byte("1")},
		{Namespace: storage.NamespaceAccounts, Key: []byte("bob"), Value: []byte("2")},
	}
	if err := s.Batch(writes); err != nil {
		t.Fatalf("batch: %v", err)
	}
	for _, w := range writes {
		got, err := s.Get(w.Namespace, w.Key)
		if err != nil {
			t.Fatalf("get %s: %v", w.Key, err)
		}
		if string(got) != string(w.Value) {
			t.Fatalf("got %q, want %q", got, w.Value)
		}
	}
}

func TestBatchDeleteWithNilValue(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put(storage.NamespaceAccounts, []byte("alice"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := s.Batch([]storage.Write{{Namespace: storage.NamespaceAccounts, Key: []byte("alice"), Value: nil}})
	if err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	if _, err := s.Get(storage.NamespaceAccounts, []byte("alice")); !errors.Is(err, internalerrors.ErrStorageNotFound) {
		t.Fatalf("expected deleted key to be not found, got %v", err)
	}
}

func TestSnapshotForEach(t *testing.T) {
	s := openTestStore(t)
	s.Put(storage.NamespaceAccounts, []byte("a"), []byte("1"))
	s.Put(storage.NamespaceAccounts, []byte("b"), []byte("2"))

	seen := map[string]string{}
	err := s.View(func(sn *storage.Snapshot) error {
		return sn.ForEach(storage.NamespaceAccounts, func(k, v []byte) error {
			seen[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if seen["a"] != "1" || seen["b"] != "2" {
		t.Fatalf("unexpected contents: %+v", seen)
	}
}

func TestHeightKeyOrdering(t *testing.T) {
	if string(storage.HeightKey(1)) >= string(storage.HeightKey(2)) {
		t.Fatal("expected HeightKey(1) to sort before HeightKey(2)")
	}
	if string(storage.HeightKey(255)) >= string(storage.HeightKey(256)) {
		t.Fatal("expected HeightKey(255) to sort before HeightKey(256) under big-endian encoding")
	}
}
