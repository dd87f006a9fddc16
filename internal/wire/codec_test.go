package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskshare/internal/compress"
	dserrors "deskshare/internal/errors"
	"deskshare/internal/frame"
)

func sampleBitmap() *frame.Bitmap {
	b := frame.NewBitmap(40, 30)
	b.Fill(frame.Rect{X: 5, Y: 5, W: 10, H: 10}, 255, 0, 0, 255)
	return b
}

func sampleMessages() []Message {
	bm := sampleBitmap()
	return []Message{
		&Hello{Version: ProtocolVersion, Role: RoleHost, Width: 1920, Height: 1080,
			Compression: []string{"lz4", "none"}, Name: "office-pc"},
		&Auth{Secret: []byte("hunter2")},
		&AuthAck{Status: AuthRejected, Reason: "wrong password"},
		&FullFrame{Seq: 7, Bitmap: bm},
		&RegionDelta{Seq: 8, Regions: []frame.Region{
			{Rect: frame.Rect{X: 0, Y: 0, W: 2, H: 1}, Pix: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
			{Rect: frame.Rect{X: 10, Y: 3, W: 1, H: 1}, Pix: []byte{9, 9, 9, 9}},
		}},
		&RegionDelta{Seq: 9},
		&ResyncRequest{LastSeq: 42},
		&Resize{Width: 2560, Height: 1440},
		&InputEvent{Seq: 1, Timestamp: 1700000000000000000, Kind: InputPointerMove, X: 0.5, Y: 0.25},
		&InputEvent{Seq: 2, Timestamp: 5, Kind: InputPointerButton, Button: ButtonRight, Pressed: true},
		&InputEvent{Seq: 3, Timestamp: 6, Kind: InputKey, Code: 0x41, Pressed: false},
		&InputEvent{Seq: 4, Timestamp: 7, Kind: InputScroll, Delta: -3},
		&Ping{Nonce: 99, Sent: 123456789},
		&Pong{Nonce: 99, Sent: 123456789},
		&Bye{Reason: "user quit"},
	}
}

func TestRoundTrip_EveryTag(t *testing.T) {
	for _, ctag := range []compress.Tag{compress.None, compress.LZ4, compress.Zstd} {
		c := NewCodec(ctag, 0)
		for _, m := range sampleMessages() {
			t.Run(ctag.String()+"/"+m.Tag().String(), func(t *testing.T) {
				b, err := c.Encode(m)
				require.NoError(t, err)

				d := NewDecoder(c)
				d.Feed(b)
				got, err := d.Next()
				require.NoError(t, err)
				assertMessageEqual(t, m, got)
				assert.Zero(t, d.Buffered(), "decoder must consume exactly one message")
			})
		}
	}
}

// assertMessageEqual compares messages treating nil and empty slices
// as equal, since the wire cannot distinguish them.
func assertMessageEqual(t *testing.T, want, got Message) {
	t.Helper()
	switch w := want.(type) {
	case *RegionDelta:
		g, ok := got.(*RegionDelta)
		require.True(t, ok)
		assert.Equal(t, w.Seq, g.Seq)
		require.Len(t, g.Regions, len(w.Regions))
		for i := range w.Regions {
			assert.Equal(t, w.Regions[i], g.Regions[i])
		}
	case *Auth:
		g, ok := got.(*Auth)
		require.True(t, ok)
		assert.Equal(t, w.Secret, g.Secret)
	default:
		assert.Equal(t, want, got)
	}
}

func TestDecoder_PartialWrites(t *testing.T) {
	c := NewCodec(compress.LZ4, 0)
	var stream []byte
	msgs := sampleMessages()
	for _, m := range msgs {
		var err error
		stream, err = c.Append(stream, m)
		require.NoError(t, err)
	}

	// Feed one byte at a time; each message must appear exactly once.
	d := NewDecoder(c)
	var got []Message
	for _, b := range stream {
		d.Feed([]byte{b})
		for {
			m, err := d.Next()
			if err == ErrNeedMoreData {
				break
			}
			require.NoError(t, err)
			got = append(got, m)
		}
	}
	require.Len(t, got, len(msgs))
	for i := range msgs {
		assert.Equal(t, msgs[i].Tag(), got[i].Tag())
	}
	assert.Zero(t, d.Buffered())
}

func TestDecoder_CoalescedWrites(t *testing.T) {
	c := NewCodec(compress.None, 0)
	a, _ := c.Encode(&Ping{Nonce: 1})
	b, _ := c.Encode(&Pong{Nonce: 1})
	half, _ := c.Encode(&Bye{Reason: "x"})

	d := NewDecoder(c)
	d.Feed(append(append(a, b...), half[:3]...))

	m, err := d.Next()
	require.NoError(t, err)
	assert.IsType(t, &Ping{}, m)
	m, err = d.Next()
	require.NoError(t, err)
	assert.IsType(t, &Pong{}, m)
	_, err = d.Next()
	assert.ErrorIs(t, err, ErrNeedMoreData)

	d.Feed(half[3:])
	m, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, &Bye{Reason: "x"}, m)
}

func frameBytes(tag byte, payload []byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(payload)+1))
	out = append(out, tag)
	return append(out, payload...)
}

func TestDecoder_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"zero length", []byte{0, 0, 0, 0, 0x30}},
		{"over limit", []byte{0x7f, 0, 0, 0, 0x10}},
		{"unknown tag", frameBytes(0x77, nil)},
		{"truncated ping", frameBytes(byte(TagPing), []byte{1, 2, 3})},
		{"trailing bytes", frameBytes(byte(TagResyncRequest), make([]byte, 9))},
		{"bad input kind", frameBytes(byte(TagInputEvent), append(make([]byte, 16), 9))},
		{"pointer out of range", frameBytes(byte(TagInputEvent),
			binary.BigEndian.AppendUint64(binary.BigEndian.AppendUint64(
				append(make([]byte, 16), byte(InputPointerMove)), 0x4000000000000000), 0))},
		{"frame size mismatch", frameBytes(byte(TagFullFrame), func() []byte {
			p := binary.BigEndian.AppendUint64(nil, 1)
			p = binary.BigEndian.AppendUint32(p, 2)
			p = binary.BigEndian.AppendUint32(p, 2)
			p = append(p, byte(compress.None))
			p = binary.BigEndian.AppendUint32(p, 16)
			return append(p, make([]byte, 15)...)
		}())},
		{"region count overflow", frameBytes(byte(TagRegionDelta), func() []byte {
			p := binary.BigEndian.AppendUint64(nil, 1)
			return binary.BigEndian.AppendUint32(p, 1<<30)
		}())},
		{"invalid hello", frameBytes(byte(TagHello), []byte{0xff, 0x00})},
		{"frame dimensions overflow", frameBytes(byte(TagFullFrame), func() []byte {
			// 2^31 x 2^31 x 4 wraps to zero in 64 bits.
			p := binary.BigEndian.AppendUint64(nil, 1)
			p = binary.BigEndian.AppendUint32(p, 1<<31)
			p = binary.BigEndian.AppendUint32(p, 1<<31)
			p = append(p, byte(compress.None))
			return binary.BigEndian.AppendUint32(p, 0)
		}())},
		{"region dimensions overflow", frameBytes(byte(TagRegionDelta), func() []byte {
			p := binary.BigEndian.AppendUint64(nil, 1)
			p = binary.BigEndian.AppendUint32(p, 1)
			for _, v := range []uint32{0, 0, 1 << 31, 1 << 31} {
				p = binary.BigEndian.AppendUint32(p, v)
			}
			p = append(p, byte(compress.None))
			return binary.BigEndian.AppendUint32(p, 0)
		}())},
		{"unknown button", frameBytes(byte(TagInputEvent),
			append(make([]byte, 16), byte(InputPointerButton), 0, 1))},
		{"button past right", frameBytes(byte(TagInputEvent),
			append(make([]byte, 16), byte(InputPointerButton), 4, 0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(NewCodec(compress.None, 1<<20))
			d.Feed(tt.input)
			_, err := d.Next()
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrNeedMoreData)
			assert.True(t, dserrors.IsProtocol(err), "want protocol error, got %v", err)

			// Sticky: the stream cannot be resynchronised.
			d.Feed(frameBytes(byte(TagPing), make([]byte, 16)))
			_, err2 := d.Next()
			assert.Equal(t, err, err2)
		})
	}
}

func TestDecoder_UnknownTagReportsTag(t *testing.T) {
	d := NewDecoder(NewCodec(compress.None, 0))
	d.Feed(frameBytes(0x77, []byte{1}))
	_, err := d.Next()
	var pe *dserrors.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, byte(0x77), pe.Tag)
}

func TestEncode_RejectsOversize(t *testing.T) {
	c := NewCodec(compress.None, 1024)
	_, err := c.Encode(&FullFrame{Seq: 1, Bitmap: frame.NewBitmap(100, 100)})
	require.Error(t, err)

	dst := []byte{0xAA}
	out, err := c.Append(dst, &FullFrame{Seq: 1, Bitmap: frame.NewBitmap(100, 100)})
	require.Error(t, err)
	assert.Equal(t, []byte{0xAA}, out)
}

func TestEncode_RegionPixelMismatch(t *testing.T) {
	c := NewCodec(compress.None, 0)
	_, err := c.Encode(&RegionDelta{Seq: 1, Regions: []frame.Region{
		{Rect: frame.Rect{W: 2, H: 2}, Pix: []byte{1}},
	}})
	assert.Error(t, err)
}

func TestEncode_IncompressibleFallsBack(t *testing.T) {
	c := NewCodec(compress.LZ4, 0)
	bm := frame.NewBitmap(4, 4)
	for i := range bm.Pix {
		bm.Pix[i] = byte(i*131 + 17)
	}
	b, err := c.Encode(&FullFrame{Seq: 1, Bitmap: bm})
	require.NoError(t, err)
	// length(4) tag(1) seq(8) w(4) h(4) -> compression byte at 21.
	assert.Equal(t, byte(compress.None), b[21])
}

func TestReader_Stream(t *testing.T) {
	c := NewCodec(compress.Zstd, 0)
	var buf bytes.Buffer
	for _, m := range sampleMessages() {
		b, err := c.Encode(m)
		require.NoError(t, err)
		buf.Write(b)
	}

	r := NewReader(iotestOneByte{&buf}, c)
	for _, want := range sampleMessages() {
		got, err := r.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want.Tag(), got.Tag())
	}
	_, err := r.ReadMessage()
	assert.Equal(t, io.EOF, err)
}

func TestReader_TruncatedStream(t *testing.T) {
	c := NewCodec(compress.None, 0)
	b, _ := c.Encode(&Bye{Reason: "bye now"})
	r := NewReader(bytes.NewReader(b[:len(b)-2]), c)
	_, err := r.ReadMessage()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestReader_MalformedWithReadError(t *testing.T) {
	// The last Read returns the bad frame together with io.EOF.
	bad := frameBytes(0x77, []byte{1})
	r := NewReader(iotest.DataErrReader(bytes.NewReader(bad)), NewCodec(compress.None, 0))
	_, err := r.ReadMessage()
	require.Error(t, err)
	assert.True(t, dserrors.IsProtocol(err), "want protocol error, got %v", err)
}

// iotestOneByte returns at most one byte per Read.
type iotestOneByte struct{ r io.Reader }

func (o iotestOneByte) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestIsFrameUpdate(t *testing.T) {
	assert.True(t, IsFrameUpdate(&FullFrame{}))
	assert.True(t, IsFrameUpdate(&RegionDelta{}))
	assert.False(t, IsFrameUpdate(&InputEvent{}))
	assert.False(t, IsFrameUpdate(&Ping{}))
}

func TestAuth_StringRedacts(t *testing.T) {
	a := &Auth{Secret: []byte("topsecret")}
	assert.NotContains(t, a.String(), "topsecret")
}
