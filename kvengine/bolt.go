package kvengine

import (
	"time"

	"go.etcd.io/bbolt"
)

// boltDatabase adapts a go.etcd.io/bbolt database to the Database
// interface. bbolt's bucket-per-name plus ordered-cursor model is a
// near-exact physical match for spec.md §6's requirements, including
// the O(1) last-entry lookup via Cursor.Last() that §4.7 relies on.
type boltDatabase struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt-backed Database at
// path.
func OpenBolt(path string) (Database, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return &boltDatabase{db: db}, nil
}

func (d *boltDatabase) Begin(writable bool) (Tx, error) {
	tx, err := d.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTx{tx: tx}, nil
}

func (d *boltDatabase) Close() error { return d.db.Close() }

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) Writable() bool { return t.tx.Writable() }

func (t *boltTx) Bucket(name string) Bucket {
	b := t.tx.Bucket([]byte(name))
	if b == nil {
		return nil
	}
	return &boltBucket{b: b}
}

func (t *boltTx) CreateBucketIfNotExists(name string) (Bucket, error) {
	b, err := t.tx.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, err
	}
	return &boltBucket{b: b}, nil
}

func (t *boltTx) Commit() error { return t.tx.Commit() }

func (t *boltTx) Rollback() error { return t.tx.Rollback() }

type boltBucket struct {
	b *bbolt.Bucket
}

func (b *boltBucket) Get(key []byte) []byte { return b.b.Get(key) }

func (b *boltBucket) Put(key, value []byte) error { return b.b.Put(key, value) }

func (b *boltBucket) Delete(key []byte) error { return b.b.Delete(key) }

func (b *boltBucket) Cursor() Cursor { return &boltCursor{c: b.b.Cursor()} }

type boltCursor struct {
	c *bbolt.Cursor
}

func (c *boltCursor) First() (key, value []byte) { return c.c.First() }
func (c *boltCursor) Last() (key, value []byte)  { return c.c.Last() }
func (c *boltCursor) Seek(seek []byte) (key, value []byte) { return c.c.Seek(seek) }
func (c *boltCursor) Next() (key, value []byte)  { return c.c.Next() }
func (c *boltCursor) Prev() (key, value []byte)  { return c.c.Prev() }
