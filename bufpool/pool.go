// Package bufpool provides reusable byte buffers for the
// serialize/msgpack encode path, adapted from the teacher's
// storage/pools/pools.go (trimmed to the buffer pools; the teacher's
// JSON encoder/decoder and string-slice pools served its HTTP layer,
// which this module doesn't have).
package bufpool

import (
	"bytes"
	"sync"
)

// BufferPool supplies general-purpose buffers for small-to-medium
// record encoding.
var BufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// LargeBufferPool supplies buffers for records expected to serialize
// past a few KB, avoiding repeated regrowth of a small buffer.
var LargeBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 65536))
	},
}

// GetBuffer returns a reset buffer from BufferPool.
func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to BufferPool, discarding it instead if it
// grew past 1MB.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1<<20 {
		return
	}
	BufferPool.Put(buf)
}

// GetLargeBuffer returns a reset buffer from LargeBufferPool.
func GetLargeBuffer() *bytes.Buffer {
	buf := LargeBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutLargeBuffer returns buf to LargeBufferPool, discarding it instead
// if it grew past 8MB.
func PutLargeBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 8<<20 {
		return
	}
	LargeBufferPool.Put(buf)
}
