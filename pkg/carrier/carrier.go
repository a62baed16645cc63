// Package carrier lays transcoded text out as the pixel byte stream of a
// square raster: the text, one zero terminator, then random filler up to
// the last pixel. It knows nothing about encryption or image formats.
package carrier

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"sonopix/pkg/models"
)

// Terminator marks the end of the meaningful bytes.
const Terminator byte = 0

// Layout controls how large a carrier is for a given amount of text.
type Layout struct {
	// MinSide is the smallest side length in pixels.
	MinSide int `mapstructure:"min_side"`
	// RowAlignment rounds the byte count up to whole rows of this many
	// bytes before the square root is taken.
	RowAlignment int `mapstructure:"row_alignment"`
	// SideMultiplier scales the minimal side so the text occupies only a
	// small share of the image.
	SideMultiplier int `mapstructure:"side_multiplier"`
	// MaxPixels caps the carrier area in both directions: Embed refuses
	// text that would need more, and Admits rejects images larger than
	// this before their pixels are decoded. Zero means no cap.
	MaxPixels int `mapstructure:"max_pixels"`
}

// DefaultLayout returns the layout used unless configured otherwise.
func DefaultLayout() Layout {
	return Layout{MinSide: 256, RowAlignment: 64, SideMultiplier: 4, MaxPixels: 1 << 27}
}

// Validate checks every sizing field is positive and that the pixel cap,
// when set, leaves room for the smallest carrier.
func (l Layout) Validate() error {
	if l.MinSide < 1 || l.RowAlignment < 1 || l.SideMultiplier < 1 {
		return models.NewError(models.ErrCodeInvalidConfig,
			fmt.Sprintf("carrier layout fields must be positive: %+v", l), nil)
	}
	if l.MaxPixels < 0 {
		return models.NewError(models.ErrCodeInvalidConfig,
			fmt.Sprintf("carrier max_pixels must not be negative: %d", l.MaxPixels), nil)
	}
	if l.MaxPixels > 0 && int64(l.MinSide)*int64(l.MinSide) > int64(l.MaxPixels) {
		return models.NewError(models.ErrCodeInvalidConfig,
			fmt.Sprintf("carrier max_pixels %d is below min_side squared (%d)", l.MaxPixels, l.MinSide*l.MinSide), nil)
	}
	return nil
}

// Admits reports whether a width x height raster fits under MaxPixels. The
// error carries CARRIER_FAILED.
func (l Layout) Admits(width, height int) error {
	if width < 0 || height < 0 {
		return models.NewError(models.ErrCodeCarrierFailed,
			fmt.Sprintf("invalid image dimensions %dx%d", width, height), nil)
	}
	if l.MaxPixels > 0 && int64(width)*int64(height) > int64(l.MaxPixels) {
		return models.NewError(models.ErrCodeCarrierFailed,
			fmt.Sprintf("image is %dx%d, larger than %d pixels", width, height, l.MaxPixels), nil)
	}
	return nil
}

// Side returns the side length of a square carrier for n meaningful bytes,
// terminator included. The result always holds at least n pixels.
func (l Layout) Side(n int) int {
	rows := (n + l.RowAlignment - 1) / l.RowAlignment
	side := int(math.Ceil(math.Sqrt(float64(rows*l.RowAlignment)))) * l.SideMultiplier
	for side*side < n {
		side++
	}
	if side < l.MinSide {
		side = l.MinSide
	}
	return side
}

// Carrier is the pixel byte stream of a square raster, one byte per pixel in
// row-major order.
type Carrier struct {
	Pixels []byte
	Width  int
	Height int
}

// Embed builds a carrier for text. Filler bytes after the terminator come
// from rng.
func Embed(text []byte, layout Layout, rng io.Reader) (*Carrier, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if bytes.IndexByte(text, Terminator) >= 0 {
		return nil, models.NewError(models.ErrCodeCarrierFailed, "text contains the terminator byte", nil)
	}

	side := layout.Side(len(text) + 1)
	if layout.MaxPixels > 0 && int64(side)*int64(side) > int64(layout.MaxPixels) {
		return nil, models.NewError(models.ErrCodePayloadTooLarge,
			fmt.Sprintf("payload needs a %dx%d carrier, larger than %d pixels", side, side, layout.MaxPixels), nil)
	}
	pixels := make([]byte, side*side)
	n := copy(pixels, text)
	pixels[n] = Terminator

	if _, err := io.ReadFull(rng, pixels[n+1:]); err != nil {
		return nil, models.NewError(models.ErrCodeCarrierFailed, "failed to generate filler", err)
	}

	return &Carrier{Pixels: pixels, Width: side, Height: side}, nil
}

// Extract returns the bytes before the first terminator. When no terminator
// exists the whole stream is returned and terminated is false; callers
// should treat that as a malformed artifact.
func Extract(pixels []byte) (text []byte, terminated bool) {
	if i := bytes.IndexByte(pixels, Terminator); i >= 0 {
		return pixels[:i], true
	}
	return pixels, false
}
