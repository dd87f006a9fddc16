package util

import "sync"

// maxPooledSize caps the capacity of buffers returned to the pool so a
// single full-screen frame does not pin megabytes for the process
// lifetime.
const maxPooledSize = 4 << 20

// BufPool provides reusable, zero-length byte buffers for message
// encoding, reducing GC pressure on the frame and input write paths.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves an empty buffer from the pool.  Callers append to
// it and must return it with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.  Oversized buffers
// are dropped.
func PutBuf(buf *[]byte) {
	if buf == nil || cap(*buf) > maxPooledSize {
		return
	}
	*buf = (*buf)[:0]
	BufPool.Put(buf)
}
