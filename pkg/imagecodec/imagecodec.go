// Package imagecodec moves bytes in and out of raster images. Each byte is
// one pixel: the value is written to R, G and B with full opacity, in
// row-major order, and read back from the R channel.
package imagecodec

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"

	"github.com/xfmoulet/qoi"
	"golang.org/x/image/bmp"

	"sonopix/pkg/models"
)

// Format is a lossless container the artifact can be written as.
type Format string

const (
	FormatPNG Format = "png"
	FormatBMP Format = "bmp"
	FormatQOI Format = "qoi"
)

// Formats lists the supported formats, default first.
func Formats() []Format {
	return []Format{FormatPNG, FormatBMP, FormatQOI}
}

// ParseFormat accepts a format name or file extension, case-insensitively.
// Lossy formats are refused because they would destroy the payload.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "", "png":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	case "qoi":
		return FormatQOI, nil
	}
	return "", models.NewError(models.ErrCodeCarrierFailed, fmt.Sprintf("unsupported image format %q", s), nil)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatBMP:
		return "image/bmp"
	case FormatQOI:
		return "image/qoi"
	default:
		return "image/png"
	}
}

// Extension returns the file extension for f including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// BytesToRaster lays data out over a width x height image. Pixels past the
// end of data are left opaque black.
func BytesToRaster(data []byte, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, models.NewError(models.ErrCodeCarrierFailed,
			fmt.Sprintf("invalid raster size %dx%d", width, height), nil)
	}
	if len(data) > width*height {
		return nil, models.NewError(models.ErrCodeCarrierFailed,
			fmt.Sprintf("%d bytes do not fit in %dx%d pixels", len(data), width, height), nil)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		var v byte
		if i < len(data) {
			v = data[i]
		}
		p := img.Pix[i*4 : i*4+4 : i*4+4]
		p[0], p[1], p[2], p[3] = v, v, v, 0xFF
	}
	return img, nil
}

// RasterToBytes returns the R channel of every pixel in row-major order.
func RasterToBytes(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy())

	switch src := img.(type) {
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				out = append(out, row[x*4])
			}
		}
	case *image.RGBA:
		// opaque pixels carry the same values premultiplied or not
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				out = append(out, row[x*4])
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out = append(out, color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA).R)
			}
		}
	}
	return out
}

// Encode writes img in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	var err error
	switch f {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(w, img)
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatQOI:
		err = qoi.Encode(w, img)
	default:
		return models.NewError(models.ErrCodeCarrierFailed, fmt.Sprintf("unsupported image format %q", f), nil)
	}
	if err != nil {
		return models.NewError(models.ErrCodeCarrierFailed, "failed to encode image", err)
	}
	return nil
}

// EncodeBytes is Encode into a fresh buffer.
func EncodeBytes(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var magic = []struct {
	prefix []byte
	format Format
}{
	{[]byte("\x89PNG\r\n\x1a\n"), FormatPNG},
	{[]byte("qoif"), FormatQOI},
	{[]byte("BM"), FormatBMP},
}

// Sniff identifies the format of an encoded image from its header.
func Sniff(header []byte) (Format, bool) {
	for _, m := range magic {
		if bytes.HasPrefix(header, m.prefix) {
			return m.format, true
		}
	}
	return "", false
}

// Decode reads an image in any supported format.
func Decode(r io.Reader) (image.Image, Format, error) {
	return DecodeChecked(r, nil)
}

// headerSize covers what DecodeConfig reads for every supported format,
// including a BMP or PNG colour palette.
const headerSize = 4096

// DecodeChecked is Decode with check run against the dimensions in the
// image header before any pixel data is read. An error from check is
// returned as is and nothing is allocated for the raster.
func DecodeChecked(r io.Reader, check func(image.Config) error) (image.Image, Format, error) {
	br := bufio.NewReaderSize(r, headerSize)
	header, _ := br.Peek(headerSize)
	f, ok := Sniff(header)
	if !ok {
		return nil, "", models.NewError(models.ErrCodeCarrierFailed, "unrecognised image format", nil)
	}

	if check != nil {
		cfg, err := decodeConfig(bytes.NewReader(header), f)
		if err != nil {
			return nil, f, models.NewError(models.ErrCodeCarrierFailed, "failed to decode image header", err)
		}
		if err := check(cfg); err != nil {
			return nil, f, err
		}
	}

	var (
		img image.Image
		err error
	)
	switch f {
	case FormatPNG:
		img, err = png.Decode(br)
	case FormatBMP:
		img, err = bmp.Decode(br)
	case FormatQOI:
		img, err = qoi.Decode(br)
	}
	if err != nil {
		return nil, f, models.NewError(models.ErrCodeCarrierFailed, "failed to decode image", err)
	}
	return img, f, nil
}

// DecodeConfig returns dimensions and format without decoding pixel data.
func DecodeConfig(r io.Reader) (image.Config, Format, error) {
	br := bufio.NewReader(r)
	header, _ := br.Peek(8)
	f, ok := Sniff(header)
	if !ok {
		return image.Config{}, "", models.NewError(models.ErrCodeCarrierFailed, "unrecognised image format", nil)
	}

	cfg, err := decodeConfig(br, f)
	if err != nil {
		return image.Config{}, f, models.NewError(models.ErrCodeCarrierFailed, "failed to decode image header", err)
	}
	return cfg, f, nil
}

func decodeConfig(r io.Reader, f Format) (image.Config, error) {
	switch f {
	case FormatPNG:
		return png.DecodeConfig(r)
	case FormatBMP:
		return bmp.DecodeConfig(r)
	case FormatQOI:
		return qoi.DecodeConfig(r)
	}
	return image.Config{}, fmt.Errorf("unsupported format %q", f)
}
