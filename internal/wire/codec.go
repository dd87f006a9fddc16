package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"deskshare/internal/compress"
	dserrors "deskshare/internal/errors"
	"deskshare/internal/frame"
)

const (
	// HeaderSize is the length prefix plus the tag byte.
	HeaderSize = 5

	// DefaultMaxMessageSize bounds a single message (tag + payload).
	// A raw 4K frame is about 33 MiB, so the default leaves headroom.
	DefaultMaxMessageSize = 64 << 20
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		MaxArrayElements: 64,
		MaxMapPairs:      64,
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// Codec encodes messages and configures decoders.  It holds only
// policy, so one Codec may be shared by both directions.
type Codec struct {
	// Compression is applied to pixel payloads.  Individual payloads
	// fall back to compress.None when they do not shrink.
	Compression compress.Tag
	// MaxMessageSize bounds tag+payload in both directions.  Zero
	// means DefaultMaxMessageSize.
	MaxMessageSize int
}

// NewCodec returns a Codec with the given compression and size limit.
func NewCodec(c compress.Tag, maxMessageSize int) *Codec {
	return &Codec{Compression: c, MaxMessageSize: maxMessageSize}
}

func (c *Codec) maxSize() int {
	if c == nil || c.MaxMessageSize <= 0 {
		return DefaultMaxMessageSize
	}
	return c.MaxMessageSize
}

// Encode returns the complete wire frame for m.
func (c *Codec) Encode(m Message) ([]byte, error) {
	return c.Append(nil, m)
}

// Append appends the wire frame for m to dst.  On error dst is
// returned unchanged.
func (c *Codec) Append(dst []byte, m Message) ([]byte, error) {
	start := len(dst)
	out := append(dst, 0, 0, 0, 0, byte(m.Tag()))

	var err error
	switch m := m.(type) {
	case *Hello:
		var b []byte
		b, err = cborEnc.Marshal(m)
		out = append(out, b...)
	case *Auth:
		out = append(out, m.Secret...)
	case *AuthAck:
		out = append(out, byte(m.Status))
		out = append(out, m.Reason...)
	case *FullFrame:
		out, err = c.appendFullFrame(out, m)
	case *RegionDelta:
		out, err = c.appendRegionDelta(out, m)
	case *ResyncRequest:
		out = binary.BigEndian.AppendUint64(out, m.LastSeq)
	case *Resize:
		out = binary.BigEndian.AppendUint32(out, uint32(m.Width))
		out = binary.BigEndian.AppendUint32(out, uint32(m.Height))
	case *InputEvent:
		out = appendInput(out, m)
	case *Ping:
		out = binary.BigEndian.AppendUint64(out, m.Nonce)
		out = binary.BigEndian.AppendUint64(out, uint64(m.Sent))
	case *Pong:
		out = binary.BigEndian.AppendUint64(out, m.Nonce)
		out = binary.BigEndian.AppendUint64(out, uint64(m.Sent))
	case *Bye:
		out = append(out, m.Reason...)
	default:
		err = fmt.Errorf("unsupported message %T", m)
	}
	if err != nil {
		return dst[:start], fmt.Errorf("encode %s: %w", m.Tag(), err)
	}

	n := len(out) - start - 4
	if n > c.maxSize() {
		return dst[:start], fmt.Errorf("encode %s: message of %d bytes exceeds limit %d", m.Tag(), n, c.maxSize())
	}
	binary.BigEndian.PutUint32(out[start:], uint32(n))
	return out, nil
}

func (c *Codec) appendFullFrame(out []byte, m *FullFrame) ([]byte, error) {
	if m.Bitmap == nil {
		return out, fmt.Errorf("nil bitmap")
	}
	if err := m.Bitmap.Validate(); err != nil {
		return out, err
	}
	data, tag, err := compress.Compress(m.Bitmap.Pix, c.compression())
	if err != nil {
		return out, err
	}
	out = binary.BigEndian.AppendUint64(out, m.Seq)
	out = binary.BigEndian.AppendUint32(out, uint32(m.Bitmap.Width))
	out = binary.BigEndian.AppendUint32(out, uint32(m.Bitmap.Height))
	out = append(out, byte(tag))
	out = binary.BigEndian.AppendUint32(out, uint32(len(m.Bitmap.Pix)))
	return append(out, data...), nil
}

func (c *Codec) appendRegionDelta(out []byte, m *RegionDelta) ([]byte, error) {
	out = binary.BigEndian.AppendUint64(out, m.Seq)
	out = binary.BigEndian.AppendUint32(out, uint32(len(m.Regions)))
	raw := 0
	for _, r := range m.Regions {
		if want := r.Rect.Area() * frame.BytesPerPixel; len(r.Pix) != want {
			return out, fmt.Errorf("region %s: %d pixel bytes, need %d", r.Rect, len(r.Pix), want)
		}
		out = binary.BigEndian.AppendUint32(out, uint32(r.Rect.X))
		out = binary.BigEndian.AppendUint32(out, uint32(r.Rect.Y))
		out = binary.BigEndian.AppendUint32(out, uint32(r.Rect.W))
		out = binary.BigEndian.AppendUint32(out, uint32(r.Rect.H))
		raw += len(r.Pix)
	}

	pix := make([]byte, 0, raw)
	for _, r := range m.Regions {
		pix = append(pix, r.Pix...)
	}
	data, tag, err := compress.Compress(pix, c.compression())
	if err != nil {
		return out, err
	}
	out = append(out, byte(tag))
	out = binary.BigEndian.AppendUint32(out, uint32(raw))
	return append(out, data...), nil
}

func (c *Codec) compression() compress.Tag {
	if c == nil {
		return compress.None
	}
	return c.Compression
}

func appendInput(out []byte, m *InputEvent) []byte {
	out = binary.BigEndian.AppendUint64(out, m.Seq)
	out = binary.BigEndian.AppendUint64(out, uint64(m.Timestamp))
	out = append(out, byte(m.Kind))
	switch m.Kind {
	case InputPointerMove:
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(m.X))
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(m.Y))
	case InputPointerButton:
		out = append(out, m.Button, boolByte(m.Pressed))
	case InputKey:
		out = binary.BigEndian.AppendUint32(out, m.Code)
		out = append(out, boolByte(m.Pressed))
	case InputScroll:
		out = binary.BigEndian.AppendUint32(out, uint32(m.Delta))
	}
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ── Decoding ─────────────────────────────────────────────────────────

// decodePayload parses one message body.  payload is owned by the
// caller and may be retained by the returned message.
func (c *Codec) decodePayload(tag Tag, payload []byte) (Message, error) {
	p := &parser{tag: tag, buf: payload}
	var m Message
	switch tag {
	case TagHello:
		h := &Hello{}
		if err := cborDec.Unmarshal(payload, h); err != nil {
			return nil, dserrors.Protocol(byte(tag), "invalid hello: %v", err)
		}
		return h, nil
	case TagAuth:
		return &Auth{Secret: payload}, nil
	case TagAuthAck:
		ack := &AuthAck{Status: AuthStatus(p.u8())}
		ack.Reason = string(p.rest())
		m = ack
	case TagFullFrame:
		return c.decodeFullFrame(p)
	case TagRegionDelta:
		return c.decodeRegionDelta(p)
	case TagResyncRequest:
		m = &ResyncRequest{LastSeq: p.u64()}
	case TagResize:
		m = &Resize{Width: int(p.u32()), Height: int(p.u32())}
	case TagInputEvent:
		m = decodeInput(p)
	case TagPing:
		m = &Ping{Nonce: p.u64(), Sent: int64(p.u64())}
	case TagPong:
		m = &Pong{Nonce: p.u64(), Sent: int64(p.u64())}
	case TagBye:
		return &Bye{Reason: string(payload)}, nil
	default:
		return nil, dserrors.Protocol(byte(tag), "unknown message tag")
	}
	if err := p.done(); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Codec) decodeFullFrame(p *parser) (Message, error) {
	seq := p.u64()
	w, h := int(p.u32()), int(p.u32())
	ctag := compress.Tag(p.u8())
	rawLen := int(p.u32())
	data := p.rest()
	if p.err != nil {
		return nil, p.err
	}
	if w <= 0 || h <= 0 || w > frame.MaxDimension || h > frame.MaxDimension ||
		uint64(w)*uint64(h)*frame.BytesPerPixel != uint64(rawLen) {
		return nil, dserrors.Protocol(byte(TagFullFrame), "frame %dx%d does not match %d pixel bytes", w, h, rawLen)
	}
	pix, err := compress.Decompress(data, ctag, rawLen, c.maxSize())
	if err != nil {
		return nil, dserrors.Protocol(byte(TagFullFrame), "%v", err)
	}
	return &FullFrame{Seq: seq, Bitmap: &frame.Bitmap{Width: w, Height: h, Pix: pix}}, nil
}

func (c *Codec) decodeRegionDelta(p *parser) (Message, error) {
	seq := p.u64()
	count := int(p.u32())
	// Each rectangle header is 16 bytes; a count the payload cannot
	// hold is rejected before allocating.
	if p.err == nil && count > len(p.buf)/16 {
		return nil, dserrors.Protocol(byte(TagRegionDelta), "region count %d exceeds payload", count)
	}
	regions := make([]frame.Region, count)
	need := 0
	for i := range regions {
		r := frame.Rect{X: int(p.u32()), Y: int(p.u32()), W: int(p.u32()), H: int(p.u32())}
		if r.Empty() {
			return nil, dserrors.Protocol(byte(TagRegionDelta), "region %d is empty", i)
		}
		if r.Oversized() {
			return nil, dserrors.Protocol(byte(TagRegionDelta), "region %d is %dx%d", i, r.W, r.H)
		}
		regions[i].Rect = r
		need += r.Area() * frame.BytesPerPixel
		if need > c.maxSize() {
			return nil, dserrors.Protocol(byte(TagRegionDelta), "regions exceed %d bytes", c.maxSize())
		}
	}
	ctag := compress.Tag(p.u8())
	rawLen := int(p.u32())
	data := p.rest()
	if p.err != nil {
		return nil, p.err
	}
	if rawLen != need {
		return nil, dserrors.Protocol(byte(TagRegionDelta), "pixel length %d does not match regions (%d)", rawLen, need)
	}
	pix, err := compress.Decompress(data, ctag, rawLen, c.maxSize())
	if err != nil {
		return nil, dserrors.Protocol(byte(TagRegionDelta), "%v", err)
	}
	off := 0
	for i := range regions {
		n := regions[i].Rect.Area() * frame.BytesPerPixel
		regions[i].Pix = pix[off : off+n : off+n]
		off += n
	}
	return &RegionDelta{Seq: seq, Regions: regions}, nil
}

func decodeInput(p *parser) Message {
	ev := &InputEvent{Seq: p.u64(), Timestamp: int64(p.u64()), Kind: InputKind(p.u8())}
	switch ev.Kind {
	case InputPointerMove:
		ev.X = math.Float64frombits(p.u64())
		ev.Y = math.Float64frombits(p.u64())
		if p.err == nil && !(ev.X >= 0 && ev.X <= 1 && ev.Y >= 0 && ev.Y <= 1) {
			p.fail("pointer (%g,%g) outside [0,1]", ev.X, ev.Y)
		}
	case InputPointerButton:
		ev.Button = p.u8()
		ev.Pressed = p.flag()
		if p.err == nil && (ev.Button < ButtonLeft || ev.Button > ButtonRight) {
			p.fail("unknown pointer button %d", ev.Button)
		}
	case InputKey:
		ev.Code = p.u32()
		ev.Pressed = p.flag()
	case InputScroll:
		ev.Delta = int32(p.u32())
	default:
		p.fail("unknown input kind %d", ev.Kind)
	}
	return ev
}

// parser reads fixed-width big-endian fields.  The first short read
// or invalid value sticks in err and every later read returns zero.
type parser struct {
	tag Tag
	buf []byte
	err error
}

func (p *parser) take(n int) []byte {
	if p.err != nil {
		return nil
	}
	if len(p.buf) < n {
		p.fail("truncated payload: need %d more bytes, have %d", n, len(p.buf))
		return nil
	}
	b := p.buf[:n]
	p.buf = p.buf[n:]
	return b
}

func (p *parser) u8() uint8 {
	if b := p.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (p *parser) flag() bool {
	v := p.u8()
	if v > 1 {
		p.fail("invalid boolean %d", v)
	}
	return v == 1
}

func (p *parser) u32() uint32 {
	if b := p.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (p *parser) u64() uint64 {
	if b := p.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (p *parser) rest() []byte {
	b := p.buf
	p.buf = nil
	return b
}

func (p *parser) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = dserrors.Protocol(byte(p.tag), format, args...)
	}
}

// done rejects trailing bytes.
func (p *parser) done() error {
	if p.err == nil && len(p.buf) > 0 {
		p.fail("%d trailing bytes", len(p.buf))
	}
	return p.err
}
