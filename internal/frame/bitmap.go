// Package frame holds the framebuffer model shared by both ends of a
// session: a packed 32-bit bitmap, rectangles over it, and the tile
// differencer that turns two bitmaps into the smallest update worth
// sending.
package frame

import (
	"fmt"
	"image"
)

// BytesPerPixel is fixed: every bitmap is packed 32-bit RGBA.
const BytesPerPixel = 4

// MaxDimension bounds the width and height of a bitmap or rectangle,
// keeping every pixel-count product well inside an int.
const MaxDimension = 1 << 16

// Bitmap is a packed, row-major 32-bit framebuffer with no row
// padding: len(Pix) == Width*Height*BytesPerPixel.
type Bitmap struct {
	Width  int
	Height int
	Pix    []byte
}

// NewBitmap allocates a zeroed (black, transparent) bitmap.
func NewBitmap(width, height int) *Bitmap {
	return &Bitmap{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// FromRGBA converts an image.RGBA into a packed Bitmap, copying rows
// when the image has a stride wider than its bounds.
func FromRGBA(img *image.RGBA) *Bitmap {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rowLen := w * BytesPerPixel
	if img.Stride == rowLen && len(img.Pix) == rowLen*h {
		return &Bitmap{Width: w, Height: h, Pix: img.Pix}
	}
	bm := NewBitmap(w, h)
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+rowLen]
		copy(bm.Pix[y*rowLen:], src)
	}
	return bm
}

// RGBA exposes the bitmap as an image.RGBA sharing the same pixels.
func (b *Bitmap) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    b.Pix,
		Stride: b.Stride(),
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Stride is the byte length of one row.
func (b *Bitmap) Stride() int { return b.Width * BytesPerPixel }

// Bounds returns the rectangle covering the whole bitmap.
func (b *Bitmap) Bounds() Rect { return Rect{W: b.Width, H: b.Height} }

// SameSize reports whether o has identical dimensions.
func (b *Bitmap) SameSize(o *Bitmap) bool {
	return o != nil && b.Width == o.Width && b.Height == o.Height
}

// Validate checks that the pixel buffer matches the declared size.
func (b *Bitmap) Validate() error {
	if b.Width <= 0 || b.Height <= 0 || b.Width > MaxDimension || b.Height > MaxDimension {
		return fmt.Errorf("invalid dimensions %dx%d", b.Width, b.Height)
	}
	if want := b.Width * b.Height * BytesPerPixel; len(b.Pix) != want {
		return fmt.Errorf("pixel buffer is %d bytes, %dx%d needs %d", len(b.Pix), b.Width, b.Height, want)
	}
	return nil
}

// Clone returns a deep copy.
func (b *Bitmap) Clone() *Bitmap {
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &Bitmap{Width: b.Width, Height: b.Height, Pix: pix}
}

// Extract copies the pixels under r into a new packed buffer of
// r.W*r.H*BytesPerPixel bytes.  r must lie within the bitmap.
func (b *Bitmap) Extract(r Rect) []byte {
	rowLen := r.W * BytesPerPixel
	out := make([]byte, rowLen*r.H)
	stride := b.Stride()
	for y := 0; y < r.H; y++ {
		off := (r.Y+y)*stride + r.X*BytesPerPixel
		copy(out[y*rowLen:], b.Pix[off:off+rowLen])
	}
	return out
}

// Fill paints r with a single colour.  Used by tests and the snapshot
// placeholder.
func (b *Bitmap) Fill(r Rect, red, green, blue, alpha byte) {
	r = r.Intersect(b.Bounds())
	stride := b.Stride()
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			off := y*stride + x*BytesPerPixel
			b.Pix[off] = red
			b.Pix[off+1] = green
			b.Pix[off+2] = blue
			b.Pix[off+3] = alpha
		}
	}
}

// Rect is an axis-aligned pixel rectangle.
type Rect struct {
	X, Y, W, H int
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Area is the pixel count of r.  Sides are clamped to MaxDimension,
// so an oversized rectangle never matches a real pixel buffer.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return min(r.W, MaxDimension) * min(r.H, MaxDimension)
}

// Oversized reports whether either side of r exceeds MaxDimension.
func (r Rect) Oversized() bool { return r.W > MaxDimension || r.H > MaxDimension }

// Within reports whether r lies entirely inside a width×height screen.
func (r Rect) Within(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.W >= 0 && r.H >= 0 &&
		r.X+r.W <= width && r.Y+r.H <= height
}

// Intersect returns the overlap of r and o.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.X+r.W, o.X+o.W), min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.W, r.H, r.X, r.Y)
}
