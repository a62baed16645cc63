// Package rle implements the byte-oriented run-length codec used before
// encryption. A compressed stream is a sequence of tokens:
//
//	b                      literal byte, b != Sentinel
//	Sentinel Sentinel      one literal Sentinel byte
//	Sentinel v n           n copies of v, MinRun <= n <= MaxRun, v != Sentinel
//
// Runs of the sentinel value itself are always written as escapes so the
// two-byte escape and the three-byte run token can never be confused.
package rle

import (
	"context"

	"sonopix/pkg/models"
)

const (
	// Sentinel introduces a run token or an escaped literal.
	Sentinel byte = 0xFF

	// MinRun is the shortest run stored as a token.
	MinRun = 4

	// MaxRun is the longest run one token can describe.
	MaxRun = 255

	// progressChunk bounds the number of bytes processed between two
	// progress callbacks.
	progressChunk = 1 << 20
)

// ProgressFunc receives the fraction of input processed, in [0, 1].
type ProgressFunc func(fraction float64)

// Compress encodes data. It returns a CANCELED error, and no output, when ctx
// is done before the whole input has been consumed.
func Compress(ctx context.Context, data []byte, onProgress ProgressFunc) ([]byte, error) {
	done := ctx.Done()
	progress := newReporter(len(data), onProgress)
	out := make([]byte, 0, len(data)+len(data)/16+1)

	for i := 0; i < len(data); {
		select {
		case <-done:
			return nil, models.NewCanceledError(ctx.Err())
		default:
		}

		b := data[i]
		run := 1
		for i+run < len(data) && data[i+run] == b && run < MaxRun {
			run++
		}

		switch {
		case run >= MinRun && b != Sentinel:
			out = append(out, Sentinel, b, byte(run))
		case b == Sentinel:
			for j := 0; j < run; j++ {
				out = append(out, Sentinel, Sentinel)
			}
		default:
			for j := 0; j < run; j++ {
				out = append(out, b)
			}
		}

		i += run
		progress.update(i)
	}

	progress.finish()
	return out, nil
}

// Decompress decodes a stream produced by Compress. A trailing token cut
// short by the end of input ends the stream instead of failing.
func Decompress(ctx context.Context, data []byte, onProgress ProgressFunc) ([]byte, error) {
	return decompress(ctx, data, onProgress, false)
}

// DecompressStrict is Decompress but rejects truncated tokens and run
// tokens shorter than MinRun with a CODEC_FAILED error.
func DecompressStrict(ctx context.Context, data []byte, onProgress ProgressFunc) ([]byte, error) {
	return decompress(ctx, data, onProgress, true)
}

func decompress(ctx context.Context, data []byte, onProgress ProgressFunc, strict bool) ([]byte, error) {
	done := ctx.Done()
	progress := newReporter(len(data), onProgress)
	out := make([]byte, 0, len(data)+len(data)/2)

	i := 0
	for i < len(data) {
		select {
		case <-done:
			return nil, models.NewCanceledError(ctx.Err())
		default:
		}

		if data[i] != Sentinel {
			out = append(out, data[i])
			i++
			progress.update(i)
			continue
		}

		if i+1 < len(data) && data[i+1] == Sentinel {
			out = append(out, Sentinel)
			i += 2
			progress.update(i)
			continue
		}

		if i+2 >= len(data) {
			if strict {
				return nil, models.NewError(models.ErrCodeCodecFailed, "truncated run token", nil)
			}
			break
		}

		value, count := data[i+1], int(data[i+2])
		if strict && count < MinRun {
			return nil, models.NewError(models.ErrCodeCodecFailed, "run token shorter than minimum run", nil)
		}
		for j := 0; j < count; j++ {
			out = append(out, value)
		}
		i += 3
		progress.update(i)
	}

	progress.finish()
	return out, nil
}

// MaxCompressedLen is the worst-case size of Compress output for n input
// bytes: every byte an escaped sentinel.
func MaxCompressedLen(n int) int {
	return 2 * n
}
