package wire

import (
	"encoding/binary"
	"io"

	dserrors "deskshare/internal/errors"
	"deskshare/util"
)

// ErrNeedMoreData is returned by Decoder.Next when the buffered bytes
// do not yet hold a complete message.  It is not a failure.
var ErrNeedMoreData = dserrors.New("wire: need more data")

// Decoder reassembles messages from a byte stream that may deliver
// partial or coalesced writes.  One Decoder serves one direction of
// one connection; it is not safe for concurrent use.
type Decoder struct {
	codec *Codec
	buf   []byte
	off   int // start of unconsumed bytes in buf
	err   error
}

// NewDecoder returns a Decoder that applies c's limits.
func NewDecoder(c *Codec) *Decoder {
	return &Decoder{codec: c}
}

// Feed appends received bytes to the accumulator.
func (d *Decoder) Feed(p []byte) {
	if d.off > 0 && d.off == len(d.buf) {
		d.buf, d.off = d.buf[:0], 0
	} else if d.off > cap(d.buf)/2 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf, d.off = d.buf[:n], 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered is the number of bytes received but not yet consumed.
func (d *Decoder) Buffered() int { return len(d.buf) - d.off }

// Next returns the next complete message, ErrNeedMoreData, or a
// *errors.ProtocolError.  A protocol error is sticky: the stream is
// desynchronised and every later call returns the same error.
func (d *Decoder) Next() (Message, error) {
	if d.err != nil {
		return nil, d.err
	}
	avail := d.buf[d.off:]
	if len(avail) < 4 {
		return nil, ErrNeedMoreData
	}
	n := binary.BigEndian.Uint32(avail)
	if n == 0 {
		return nil, d.fail(dserrors.Protocol(0, "zero-length message"))
	}
	if int64(n) > int64(d.codec.maxSize()) {
		return nil, d.fail(dserrors.Protocol(0, "message length %d exceeds limit %d", n, d.codec.maxSize()))
	}
	if len(avail) < 4+int(n) {
		return nil, ErrNeedMoreData
	}

	tag := Tag(avail[4])
	// The payload is copied out so decoded messages never alias the
	// accumulator, which is reused by later Feed calls.
	payload := make([]byte, int(n)-1)
	copy(payload, avail[HeaderSize:4+int(n)])
	d.off += 4 + int(n)

	m, err := d.codec.decodePayload(tag, payload)
	if err != nil {
		return nil, d.fail(err)
	}
	return m, nil
}

func (d *Decoder) fail(err error) error {
	d.err = err
	return err
}

// Reader reads whole messages from an io.Reader.
type Reader struct {
	r    io.Reader
	dec  *Decoder
	bufp *[]byte
}

// NewReader returns a Reader decoding r with c's limits.
func NewReader(r io.Reader, c *Codec) *Reader {
	return &Reader{r: r, dec: NewDecoder(c)}
}

// ReadMessage blocks until one message is available.  A clean EOF
// between messages is returned as io.EOF; EOF inside a message is
// io.ErrUnexpectedEOF.  Other read failures are returned unchanged
// for the caller to classify.
func (r *Reader) ReadMessage() (Message, error) {
	for {
		m, err := r.dec.Next()
		if err == nil {
			return m, nil
		}
		if err != ErrNeedMoreData {
			return nil, err
		}
		if r.bufp == nil {
			r.bufp = util.GetBuf()
		}
		buf := (*r.bufp)[:cap(*r.bufp)]
		n, rerr := r.r.Read(buf)
		if n > 0 {
			r.dec.Feed(buf[:n])
		}
		if rerr != nil {
			if n > 0 {
				// Decode what arrived before reporting the error.
				m, err := r.dec.Next()
				if err != ErrNeedMoreData {
					r.release()
					return m, err
				}
			}
			r.release()
			if rerr == io.EOF && r.dec.Buffered() > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, rerr
		}
	}
}

func (r *Reader) release() {
	if r.bufp != nil {
		util.PutBuf(r.bufp)
		r.bufp = nil
	}
}
