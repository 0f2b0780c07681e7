/*
Package blob provides an embedded blob store for uploaded contract
documents.

PURPOSE:
  Contract-document bytes (PDFs, scanned agreements, rate confirmations)
  are kept out of SQLite and stored in an embedded BadgerDB key-value
  store. SQLite holds the metadata row; this package holds the bytes.

WHY EMBEDDED:
  The engine is a single-operator deployment. An embedded store keeps
  the whole system a single process with two data directories - no
  object-storage service to run alongside it.

FAILURE ISOLATION:
  Blob writes are best-effort from the caller's point of view: a failed
  Put must never abort the surrounding business operation. Callers
  record the failure on the metadata row instead.

USAGE:
  store, err := blob.Open("./data/blobs")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/sqlite/sqlite.go: document metadata rows
*/
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// ErrBlobNotFound is returned when no blob exists for a key.
var ErrBlobNotFound = errors.New("blob not found")

// Store is a BadgerDB-backed blob store.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a persistent blob store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("path is required for persistent blob store")
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory blob store for testing. Data is lost
// on Close.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores data under key, overwriting any existing blob.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("blob key is required")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	return nil
}

// Get retrieves the blob stored under key, or ErrBlobNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob under key. Deleting a missing key is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// RunGC triggers a single value-log garbage collection pass. Callers
// typically run this on a timer.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}
