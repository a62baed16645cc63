// Package radix85 converts bytes to text over a fixed 85-symbol alphabet,
// five symbols per four input bytes, big-endian. The final partial group is
// zero-padded, so decoding returns the input rounded up to a multiple of
// four bytes. Callers that need the exact length must carry it separately.
package radix85

import (
	"fmt"

	"sonopix/pkg/models"
)

// Alphabet holds the 85 symbols in value order. It never contains a zero
// byte, which lets encoded text be terminated by one.
const Alphabet = "!#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuv"

const (
	groupBytes   = 4
	groupSymbols = 5
	base         = 85
	invalid      = 0xFF
)

var decodeMap [256]byte

func init() {
	if len(Alphabet) != base {
		panic(fmt.Sprintf("radix85: alphabet has %d symbols", len(Alphabet)))
	}
	for i := range decodeMap {
		decodeMap[i] = invalid
	}
	for i := 0; i < len(Alphabet); i++ {
		decodeMap[Alphabet[i]] = byte(i)
	}
}

// EncodedLen returns the length of the encoding of n bytes.
func EncodedLen(n int) int {
	return (n + groupBytes - 1) / groupBytes * groupSymbols
}

// DecodedLen returns the number of bytes n symbols decode to.
func DecodedLen(n int) int {
	return n / groupSymbols * groupBytes
}

// Encode returns the text form of src.
func Encode(src []byte) string {
	dst := make([]byte, EncodedLen(len(src)))
	for g := 0; g*groupBytes < len(src); g++ {
		var group [groupBytes]byte
		copy(group[:], src[g*groupBytes:])
		v := uint32(group[0])<<24 | uint32(group[1])<<16 | uint32(group[2])<<8 | uint32(group[3])

		out := dst[g*groupSymbols : (g+1)*groupSymbols]
		for i := groupSymbols - 1; i >= 0; i-- {
			out[i] = Alphabet[v%base]
			v /= base
		}
	}
	return string(dst)
}

// Decode reverses Encode. It fails with TRANSCODE_FAILED on a symbol outside
// the alphabet, on a trailing partial group and on a group whose value does
// not fit in 32 bits.
func Decode(text string) ([]byte, error) {
	if len(text)%groupSymbols != 0 {
		return nil, models.NewError(models.ErrCodeTranscodeFailed,
			fmt.Sprintf("length %d is not a multiple of %d", len(text), groupSymbols), nil)
	}

	dst := make([]byte, DecodedLen(len(text)))
	for g := 0; g*groupSymbols < len(text); g++ {
		var v uint64
		for i := 0; i < groupSymbols; i++ {
			pos := g*groupSymbols + i
			d := decodeMap[text[pos]]
			if d == invalid {
				return nil, models.NewError(models.ErrCodeTranscodeFailed,
					fmt.Sprintf("invalid symbol at offset %d", pos), nil)
			}
			v = v*base + uint64(d)
		}
		if v > 0xFFFFFFFF {
			return nil, models.NewError(models.ErrCodeTranscodeFailed,
				fmt.Sprintf("group %d overflows 32 bits", g), nil)
		}

		out := dst[g*groupBytes : (g+1)*groupBytes]
		out[0] = byte(v >> 24)
		out[1] = byte(v >> 16)
		out[2] = byte(v >> 8)
		out[3] = byte(v)
	}
	return dst, nil
}
