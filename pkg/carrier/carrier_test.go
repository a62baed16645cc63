package carrier

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonopix/pkg/models"
)

func TestLayout_Side(t *testing.T) {
	layout := DefaultLayout()

	tests := []struct {
		name string
		n    int
		want int
	}{
		{name: "tiny payload uses the floor", n: 1, want: 256},
		{name: "exactly one row", n: 64, want: 256},
		{name: "one full floor", n: 4096, want: 256},
		{name: "just over the floor", n: 4097, want: 260},
		{name: "large", n: 1 << 20, want: 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side := layout.Side(tt.n)
			assert.Equal(t, tt.want, side)
			assert.GreaterOrEqual(t, side*side, tt.n)
		})
	}
}

func TestLayout_SideAlwaysFits(t *testing.T) {
	layout := Layout{MinSide: 1, RowAlignment: 7, SideMultiplier: 1}
	for n := 1; n < 5000; n += 13 {
		side := layout.Side(n)
		assert.GreaterOrEqual(t, side*side, n, "n=%d", n)
	}
}

func TestLayout_Validate(t *testing.T) {
	assert.NoError(t, DefaultLayout().Validate())
	err := Layout{MinSide: 0, RowAlignment: 64, SideMultiplier: 4}.Validate()
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidConfig))

	err = Layout{MinSide: 16, RowAlignment: 1, SideMultiplier: 1, MaxPixels: -1}.Validate()
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidConfig))

	err = Layout{MinSide: 16, RowAlignment: 1, SideMultiplier: 1, MaxPixels: 255}.Validate()
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidConfig))

	assert.NoError(t, Layout{MinSide: 16, RowAlignment: 1, SideMultiplier: 1, MaxPixels: 256}.Validate())
}

func TestLayout_Admits(t *testing.T) {
	capped := Layout{MinSide: 16, RowAlignment: 1, SideMultiplier: 1, MaxPixels: 1 << 20}

	assert.NoError(t, capped.Admits(1024, 1024))
	assert.NoError(t, capped.Admits(0, 0))

	err := capped.Admits(8000, 8000)
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))
	assert.Contains(t, err.Error(), "8000x8000")

	// the product does not overflow on 32-bit dimensions
	err = capped.Admits(1<<31-1, 1<<31-1)
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))

	err = capped.Admits(-1, 4)
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))

	uncapped := capped
	uncapped.MaxPixels = 0
	assert.NoError(t, uncapped.Admits(8000, 8000))
}

func TestEmbed_PixelCap(t *testing.T) {
	layout := Layout{MinSide: 16, RowAlignment: 1, SideMultiplier: 1, MaxPixels: 400}

	c, err := Embed(bytes.Repeat([]byte{'a'}, 399), layout, rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, 20, c.Width)

	_, err = Embed(bytes.Repeat([]byte{'a'}, 400), layout, rand.Reader)
	assert.True(t, models.IsCode(err, models.ErrCodePayloadTooLarge))
}

func TestEmbedExtract(t *testing.T) {
	text := []byte(strings.Repeat("Hello, carrier!", 100))

	c, err := Embed(text, DefaultLayout(), rand.Reader)
	require.NoError(t, err)

	assert.Equal(t, c.Width, c.Height)
	assert.Len(t, c.Pixels, c.Width*c.Height)
	assert.Equal(t, text, c.Pixels[:len(text)])
	assert.Equal(t, Terminator, c.Pixels[len(text)])

	got, terminated := Extract(c.Pixels)
	assert.True(t, terminated)
	assert.Equal(t, text, got)
}

func TestEmbed_FillerIsRandom(t *testing.T) {
	a, err := Embed([]byte("abc"), DefaultLayout(), rand.Reader)
	require.NoError(t, err)
	b, err := Embed([]byte("abc"), DefaultLayout(), rand.Reader)
	require.NoError(t, err)

	assert.NotEqual(t, a.Pixels[4:], b.Pixels[4:])
	assert.False(t, bytes.Equal(a.Pixels[4:], make([]byte, len(a.Pixels)-4)))
}

func TestEmbed_Empty(t *testing.T) {
	c, err := Embed(nil, DefaultLayout(), rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, Terminator, c.Pixels[0])

	got, terminated := Extract(c.Pixels)
	assert.True(t, terminated)
	assert.Empty(t, got)
}

func TestEmbed_Errors(t *testing.T) {
	_, err := Embed([]byte{'a', 0, 'b'}, DefaultLayout(), rand.Reader)
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))

	_, err = Embed([]byte("abc"), DefaultLayout(), bytes.NewReader(nil))
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))

	_, err = Embed([]byte("abc"), Layout{}, rand.Reader)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidConfig))
}

func TestExtract_NoTerminator(t *testing.T) {
	got, terminated := Extract([]byte("abc"))
	assert.False(t, terminated)
	assert.Equal(t, []byte("abc"), got)
}
