// Package kvengine defines the seam between the entity store core and
// the backing ordered key-value engine (spec.md §6, "Backing store
// dependency"). The core treats the engine as an external
// collaborator: open-at-path, named sub-stores, get/put/delete by byte
// key, ordered prefix scans, and last-entry query.
//
// The interfaces here are grounded on andreyvit/edb's storage seam
// (storage.go: storage/storageTx/storageBucket/storageCursor), which
// pairs the same three building blocks — an engine, a transaction, and
// a cursor-bearing bucket — around go.etcd.io/bbolt. Bolt and Memory
// below are two concrete adapters; a Badger or Pebble adapter would
// implement the same three interfaces.
package kvengine

import "errors"

// ErrBucketNotFound reports a missing bucket. The adapters in this
// package do not return it: Tx.Bucket signals a missing bucket by
// returning nil.
var ErrBucketNotFound = errors.New("kvengine: bucket not found")

// Database is an opened backing store. It is safe for concurrent use
// by multiple goroutines (spec.md §5).
type Database interface {
	// Begin starts a new transaction. Only one writable transaction
	// may be open at a time. In the bbolt adapter read transactions
	// run concurrently with it (bbolt's MVCC model); the memory
	// adapter makes them wait until it ends.
	Begin(writable bool) (Tx, error)
	// Close releases the underlying file or memory resources.
	Close() error
}

// Tx is a single transaction against the backing store.
type Tx interface {
	// Writable reports whether this transaction may mutate state.
	Writable() bool

	// Bucket returns the named store, or nil if it doesn't exist.
	Bucket(name string) Bucket

	// CreateBucketIfNotExists returns the named store, creating it if
	// necessary. Only valid in a writable transaction.
	CreateBucketIfNotExists(name string) (Bucket, error)

	// Commit applies all writes made in this transaction.
	Commit() error

	// Rollback discards this transaction. Safe to call after Commit.
	// The memory adapter applies writes immediately, so there Rollback
	// only ends the transaction and does not undo its writes.
	Rollback() error
}

// Bucket is one named, ordered key-value namespace (spec.md §6,
// "one sub-store per registered entity").
type Bucket interface {
	// Get retrieves a value by key, or nil if absent.
	Get(key []byte) []byte

	// Put stores or overwrites a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key. No error if it was already absent.
	Delete(key []byte) error

	// Cursor returns a cursor over this bucket's keys in byte order.
	Cursor() Cursor
}

// Cursor iterates a Bucket's entries in ascending key order.
type Cursor interface {
	// First moves to the first key-value pair, or returns nil, nil if
	// the bucket is empty.
	First() (key, value []byte)

	// Last moves to the last key-value pair, or returns nil, nil if
	// the bucket is empty. This is the O(1) "last entry" operation
	// §4.7's auto-increment allocator relies on.
	Last() (key, value []byte)

	// Seek moves to the first key >= seek, or returns nil, nil if
	// there is none.
	Seek(seek []byte) (key, value []byte)

	// Next advances to the next key-value pair after the cursor's
	// current position, or returns nil, nil at the end.
	Next() (key, value []byte)

	// Prev moves to the previous key-value pair before the cursor's
	// current position, or returns nil, nil at the start. Used by the
	// child auto-increment allocator (spec.md §4.7) to find the
	// highest existing child key under a parent prefix without a full
	// forward scan.
	Prev() (key, value []byte)
}
