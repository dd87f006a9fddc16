package frame

import (
	"bytes"
	"fmt"
)

// Kind distinguishes the two shapes of an Update.
type Kind uint8

const (
	// KindRegions carries only changed rectangles (possibly none).
	KindRegions Kind = iota
	// KindFull carries the whole bitmap.
	KindFull
)

func (k Kind) String() string {
	if k == KindFull {
		return "full"
	}
	return "regions"
}

// Region is one changed rectangle and its packed pixels.
type Region struct {
	Rect Rect
	Pix  []byte
}

// Update is the Differencer's output.
type Update struct {
	Kind    Kind
	Full    *Bitmap  // set for KindFull
	Regions []Region // set for KindRegions; empty means "nothing changed"
}

// Empty reports whether the update carries no pixels at all.
func (u Update) Empty() bool {
	return u.Kind == KindRegions && len(u.Regions) == 0
}

// Bytes is the raw pixel volume of the update.
func (u Update) Bytes() int {
	if u.Kind == KindFull {
		return len(u.Full.Pix)
	}
	n := 0
	for _, r := range u.Regions {
		n += len(r.Pix)
	}
	return n
}

// Differ computes updates by comparing fixed-size tiles.
//
// Adjacent changed tiles within one tile row are merged into a single
// wider rectangle.  Rows are never merged with each other, which keeps
// the cost linear in the number of tiles.
type Differ struct {
	// TileSize is the tile edge in pixels.
	TileSize int
	// FullThreshold is the changed-area fraction (0,1] above which a
	// full frame is emitted instead of regions.
	FullThreshold float64
}

// NewDiffer returns a Differ with the given policy.
func NewDiffer(tileSize int, fullThreshold float64) *Differ {
	return &Differ{TileSize: tileSize, FullThreshold: fullThreshold}
}

// Diff compares next against prev.  prev may be nil (first frame) or
// of different dimensions; both yield a full update.  Neither bitmap
// is modified, and returned regions own their pixel slices.
func (d *Differ) Diff(prev, next *Bitmap) Update {
	if prev == nil || !prev.SameSize(next) {
		return Update{Kind: KindFull, Full: next}
	}

	tile := d.TileSize
	if tile <= 0 {
		tile = 64
	}
	stride := next.Stride()
	total := next.Width * next.Height

	var (
		rects   []Rect
		changed int
	)
	for ty := 0; ty < next.Height; ty += tile {
		th := min(tile, next.Height-ty)
		runStart := -1 // x of the first tile in the current run
		for tx := 0; tx < next.Width; tx += tile {
			tw := min(tile, next.Width-tx)
			if tileDiffers(prev.Pix, next.Pix, stride, tx, ty, tw, th) {
				if runStart < 0 {
					runStart = tx
				}
				continue
			}
			if runStart >= 0 {
				rects = append(rects, Rect{X: runStart, Y: ty, W: tx - runStart, H: th})
				runStart = -1
			}
		}
		if runStart >= 0 {
			rects = append(rects, Rect{X: runStart, Y: ty, W: next.Width - runStart, H: th})
		}
	}

	for _, r := range rects {
		changed += r.Area()
	}
	if total > 0 && d.FullThreshold > 0 && float64(changed)/float64(total) > d.FullThreshold {
		return Update{Kind: KindFull, Full: next}
	}

	regions := make([]Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, Region{Rect: r, Pix: next.Extract(r)})
	}
	return Update{Kind: KindRegions, Regions: regions}
}

// tileDiffers compares one tile row by row; any differing byte counts.
func tileDiffers(a, b []byte, stride, x, y, w, h int) bool {
	rowLen := w * BytesPerPixel
	for row := y; row < y+h; row++ {
		off := row*stride + x*BytesPerPixel
		if !bytes.Equal(a[off:off+rowLen], b[off:off+rowLen]) {
			return true
		}
	}
	return false
}

// Apply writes regions into dst.  Every region is bounds-checked
// before any pixel is written, so a rejected update leaves dst intact.
func Apply(dst *Bitmap, regions []Region) error {
	for i, r := range regions {
		if r.Rect.Empty() {
			return fmt.Errorf("region %d: empty rectangle %s", i, r.Rect)
		}
		if !r.Rect.Within(dst.Width, dst.Height) {
			return fmt.Errorf("region %d: %s exceeds %dx%d", i, r.Rect, dst.Width, dst.Height)
		}
		if want := r.Rect.Area() * BytesPerPixel; len(r.Pix) != want {
			return fmt.Errorf("region %d: %d pixel bytes, %s needs %d", i, len(r.Pix), r.Rect, want)
		}
	}

	stride := dst.Stride()
	for _, r := range regions {
		rowLen := r.Rect.W * BytesPerPixel
		for y := 0; y < r.Rect.H; y++ {
			off := (r.Rect.Y+y)*stride + r.Rect.X*BytesPerPixel
			copy(dst.Pix[off:off+rowLen], r.Pix[y*rowLen:(y+1)*rowLen])
		}
	}
	return nil
}
