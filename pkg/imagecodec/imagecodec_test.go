package imagecodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonopix/pkg/models"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatPNG},
		{in: "PNG", want: FormatPNG},
		{in: ".bmp", want: FormatBMP},
		{in: " qoi ", want: FormatQOI},
		{in: "jpeg", wantErr: true},
		{in: "gif", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_Metadata(t *testing.T) {
	assert.Equal(t, "image/png", FormatPNG.ContentType())
	assert.Equal(t, "image/bmp", FormatBMP.ContentType())
	assert.Equal(t, "image/qoi", FormatQOI.ContentType())
	assert.Equal(t, ".qoi", FormatQOI.Extension())
	assert.Equal(t, FormatPNG, Formats()[0])
}

func TestBytesToRaster(t *testing.T) {
	img, err := BytesToRaster([]byte{10, 20, 30}, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	assert.Equal(t, color.NRGBA{10, 10, 10, 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{20, 20, 20, 255}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{30, 30, 30, 255}, img.NRGBAAt(0, 1))
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, img.NRGBAAt(1, 1))

	assert.Equal(t, []byte{10, 20, 30, 0}, RasterToBytes(img))
}

func TestBytesToRaster_Errors(t *testing.T) {
	_, err := BytesToRaster(make([]byte, 5), 2, 2)
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))

	_, err = BytesToRaster(nil, 0, 4)
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))
}

func TestRasterToBytes_ImageKinds(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	nrgba, err := BytesToRaster(data, 3, 2)
	require.NoError(t, err)

	rgba := image.NewRGBA(nrgba.Bounds())
	gray := image.NewGray(nrgba.Bounds())
	for i, v := range data {
		x, y := i%3, i/3
		rgba.Set(x, y, color.RGBA{v, v, v, 255})
		gray.SetGray(x, y, color.Gray{Y: v})
	}

	assert.Equal(t, data, RasterToBytes(nrgba))
	assert.Equal(t, data, RasterToBytes(rgba))
	assert.Equal(t, data, RasterToBytes(gray))

	sub := nrgba.SubImage(image.Rect(1, 0, 3, 2))
	assert.Equal(t, []byte{2, 3, 5, 6}, RasterToBytes(sub))
}

func TestEncodeDecode_AllFormats(t *testing.T) {
	data := make([]byte, 64*48)
	rand.New(rand.NewSource(11)).Read(data)
	img, err := BytesToRaster(data, 64, 48)
	require.NoError(t, err)

	for _, f := range Formats() {
		t.Run(string(f), func(t *testing.T) {
			encoded, err := EncodeBytes(img, f)
			require.NoError(t, err)

			sniffed, ok := Sniff(encoded)
			require.True(t, ok)
			assert.Equal(t, f, sniffed)

			cfg, cfgFormat, err := DecodeConfig(bytes.NewReader(encoded))
			require.NoError(t, err)
			assert.Equal(t, f, cfgFormat)
			assert.Equal(t, 64, cfg.Width)
			assert.Equal(t, 48, cfg.Height)

			decoded, decodedFormat, err := Decode(bytes.NewReader(encoded))
			require.NoError(t, err)
			assert.Equal(t, f, decodedFormat)
			assert.Equal(t, data, RasterToBytes(decoded))
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("GIF89a...")))
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))

	_, _, err = Decode(bytes.NewReader([]byte("\x89PNG\r\n\x1a\ntruncated")))
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))

	err = Encode(&bytes.Buffer{}, image.NewNRGBA(image.Rect(0, 0, 1, 1)), Format("jpeg"))
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))
}

// pngClaiming returns a well-formed PNG signature and IHDR chunk that
// announce a width x height greyscale image, with no pixel data behind them.
func pngClaiming(t *testing.T, width, height uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	header := append([]byte(nil), buf.Bytes()[:33]...)
	binary.BigEndian.PutUint32(header[16:20], width)
	binary.BigEndian.PutUint32(header[20:24], height)
	binary.BigEndian.PutUint32(header[29:33], crc32.ChecksumIEEE(header[12:29]))
	return header
}

func TestDecodeChecked_RejectsFromHeader(t *testing.T) {
	errTooBig := errors.New("too big")
	var seen image.Config
	check := func(cfg image.Config) error {
		seen = cfg
		if cfg.Width*cfg.Height > 1<<20 {
			return errTooBig
		}
		return nil
	}

	img, f, err := DecodeChecked(bytes.NewReader(pngClaiming(t, 8000, 8000)), check)
	assert.ErrorIs(t, err, errTooBig)
	assert.Nil(t, img)
	assert.Equal(t, FormatPNG, f)
	assert.Equal(t, 8000, seen.Width)
	assert.Equal(t, 8000, seen.Height)

	// Under the limit the same header passes the check and decoding fails on
	// the missing pixel data instead
	_, _, err = DecodeChecked(bytes.NewReader(pngClaiming(t, 100, 100)), check)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errTooBig)
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))
}

func TestDecodeChecked_AllFormats(t *testing.T) {
	data := make([]byte, 24*10)
	rand.New(rand.NewSource(5)).Read(data)
	raster, err := BytesToRaster(data, 24, 10)
	require.NoError(t, err)

	for _, f := range Formats() {
		t.Run(string(f), func(t *testing.T) {
			var encoded bytes.Buffer
			require.NoError(t, Encode(&encoded, raster, f))

			var seen image.Config
			img, got, err := DecodeChecked(&encoded, func(cfg image.Config) error {
				seen = cfg
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, f, got)
			assert.Equal(t, 24, seen.Width)
			assert.Equal(t, 10, seen.Height)
			assert.Equal(t, data, RasterToBytes(img))
		})
	}
}

func TestDecodeChecked_UnreadableHeader(t *testing.T) {
	called := false
	_, _, err := DecodeChecked(bytes.NewReader([]byte("\x89PNG\r\n\x1a\n")), func(image.Config) error {
		called = true
		return nil
	})
	assert.True(t, models.IsCode(err, models.ErrCodeCarrierFailed))
	assert.False(t, called)
}
