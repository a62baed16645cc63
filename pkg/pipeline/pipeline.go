// Package pipeline turns a payload into a disguised image and back.
//
// Encrypt: derive key -> RLE compress -> AES-256-GCM -> envelope
// (salt ∥ nonce ∥ ciphertext‖tag) -> radix-85 text -> carrier pixels -> image.
// Decrypt runs the same stages in reverse. Every stage is preceded by a
// cancellation check, and a failed or canceled run never returns partial
// output.
package pipeline

import (
	"context"
	"image"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sonopix/config"
	"sonopix/logging"
	"sonopix/pkg/carrier"
	"sonopix/pkg/crypto"
	"sonopix/pkg/imagecodec"
	"sonopix/pkg/models"
	"sonopix/pkg/passphrase"
	"sonopix/pkg/progress"
	"sonopix/pkg/radix85"
	"sonopix/pkg/rle"
)

const (
	saltOffset  = 0
	nonceOffset = saltOffset + crypto.SaltSize
	dataOffset  = nonceOffset + crypto.NonceSize

	// MinEnvelopeSize is salt, nonce and an empty message's tag.
	MinEnvelopeSize = dataOffset + crypto.TagSize

	// maxPadding is the most trailing zero bytes radix-85 decoding can add.
	maxPadding = 3
)

// Options tune an Engine.
type Options struct {
	EncryptPlan progress.Plan
	DecryptPlan progress.Plan
	Layout      carrier.Layout
	// StrictDecode rejects malformed compressed streams instead of
	// stopping at the first truncated token.
	StrictDecode bool
	Logger       *logging.Logger
}

// DefaultOptions returns the production weighting and carrier layout.
func DefaultOptions() Options {
	return Options{
		EncryptPlan: progress.DefaultEncryptPlan(),
		DecryptPlan: progress.DefaultDecryptPlan(),
		Layout:      carrier.DefaultLayout(),
	}
}

// Engine runs pipeline operations. It holds no per-operation state and is
// safe for concurrent use.
type Engine struct {
	provider crypto.Provider
	opts     Options
	logger   *logging.Logger
}

// New returns an Engine using provider for all cryptography.
func New(provider crypto.Provider, opts Options) (*Engine, error) {
	if provider == nil {
		return nil, models.NewError(models.ErrCodeInvalidConfig, "crypto provider is required", nil)
	}
	for name, plan := range map[string]progress.Plan{"encrypt": opts.EncryptPlan, "decrypt": opts.DecryptPlan} {
		if err := plan.Validate(); err != nil {
			return nil, models.NewError(models.ErrCodeInvalidConfig, name+" progress plan", err)
		}
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Engine{provider: provider, opts: opts, logger: logger}, nil
}

// Encrypt hides payload in a new image protected by pass.
func (e *Engine) Encrypt(ctx context.Context, payload []byte, pass passphrase.Passphrase, onProgress progress.Func) (image.Image, error) {
	img, err := e.encrypt(ctx, payload, pass, onProgress, nil)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// EncryptTo is Encrypt followed by writing the image to w in format f. The
// image encoding is part of the final stage, so progress reaches 100 only
// after the artifact has been written.
func (e *Engine) EncryptTo(ctx context.Context, w io.Writer, f imagecodec.Format, payload []byte, pass passphrase.Passphrase, onProgress progress.Func) error {
	_, err := e.encrypt(ctx, payload, pass, onProgress, func(img image.Image) error {
		return imagecodec.Encode(w, img, f)
	})
	return err
}

// Decrypt recovers the payload hidden in img.
func (e *Engine) Decrypt(ctx context.Context, img image.Image, pass passphrase.Passphrase, onProgress progress.Func) ([]byte, error) {
	return e.decrypt(ctx, func() (image.Image, error) {
		b := img.Bounds()
		if err := e.opts.Layout.Admits(b.Dx(), b.Dy()); err != nil {
			return nil, err
		}
		return img, nil
	}, pass, onProgress)
}

// DecryptFrom reads an encoded image from r and decrypts it. Images larger
// than the layout's pixel cap are rejected from their header alone.
func (e *Engine) DecryptFrom(ctx context.Context, r io.Reader, pass passphrase.Passphrase, onProgress progress.Func) ([]byte, error) {
	return e.decrypt(ctx, func() (image.Image, error) {
		img, _, err := imagecodec.DecodeChecked(r, func(cfg image.Config) error {
			return e.opts.Layout.Admits(cfg.Width, cfg.Height)
		})
		return img, err
	}, pass, onProgress)
}

func (e *Engine) encrypt(ctx context.Context, payload []byte, pass passphrase.Passphrase, onProgress progress.Func, sink func(image.Image) error) (result image.Image, err error) {
	start := time.Now()
	ctx, span := tracer().Start(ctx, "pipeline.Encrypt",
		trace.WithAttributes(attribute.Int("payload.bytes", len(payload))))
	var produced int
	defer func() {
		finishSpan(span, err)
		recordOperation(ctx, models.DirectionEncrypt, time.Since(start), len(payload), produced, err)
	}()

	if err := pass.Err(); err != nil {
		return nil, err
	}

	tracker := progress.NewTracker(e.opts.EncryptPlan, onProgress)
	rng := e.provider.Random()

	var (
		salt, nonce []byte
		key         *crypto.Key
		compressed  []byte
		sealed      []byte
		img         *image.NRGBA
	)
	defer func() { key.Destroy() }()

	err = e.stage(ctx, models.DirectionEncrypt, progress.StageKeyDerivation, func(ctx context.Context) error {
		var err error
		if salt, err = crypto.RandomBytes(rng, crypto.SaltSize); err != nil {
			return err
		}
		if nonce, err = crypto.RandomBytes(rng, crypto.NonceSize); err != nil {
			return err
		}
		key, err = e.provider.DeriveKey(pass.Bytes(), salt)
		if err != nil {
			return err
		}
		tracker.Report(progress.StageKeyDerivation, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, models.DirectionEncrypt, progress.StageCompression, func(ctx context.Context) error {
		var err error
		compressed, err = rle.Compress(ctx, payload, tracker.Stage(progress.StageCompression))
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("compressed %d bytes to %d", len(payload), len(compressed))

	err = e.stage(ctx, models.DirectionEncrypt, progress.StageEncryption, func(ctx context.Context) error {
		var err error
		if sealed, err = e.provider.Seal(key, nonce, compressed); err != nil {
			return err
		}
		tracker.Report(progress.StageEncryption, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, models.DirectionEncrypt, progress.StageEncoding, func(ctx context.Context) error {
		envelope := make([]byte, 0, dataOffset+len(sealed))
		envelope = append(envelope, salt...)
		envelope = append(envelope, nonce...)
		envelope = append(envelope, sealed...)

		text := radix85.Encode(envelope)
		tracker.Report(progress.StageEncoding, 0.25)

		c, err := carrier.Embed([]byte(text), e.opts.Layout, rng)
		if err != nil {
			return err
		}
		tracker.Report(progress.StageEncoding, 0.5)

		if img, err = imagecodec.BytesToRaster(c.Pixels, c.Width, c.Height); err != nil {
			return err
		}
		produced = len(c.Pixels)
		e.logger.Debug("embedded %d envelope bytes as %d symbols in a %dx%d carrier", len(envelope), len(text), c.Width, c.Height)

		if sink != nil {
			tracker.Report(progress.StageEncoding, 0.75)
			if err := ctx.Err(); err != nil {
				return models.NewCanceledError(err)
			}
			return sink(img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tracker.Complete()
	return img, nil
}

func (e *Engine) decrypt(ctx context.Context, source func() (image.Image, error), pass passphrase.Passphrase, onProgress progress.Func) (result []byte, err error) {
	start := time.Now()
	ctx, span := tracer().Start(ctx, "pipeline.Decrypt")
	var consumed int
	defer func() {
		finishSpan(span, err)
		recordOperation(ctx, models.DirectionDecrypt, time.Since(start), consumed, len(result), err)
	}()

	if err := pass.Err(); err != nil {
		return nil, err
	}

	tracker := progress.NewTracker(e.opts.DecryptPlan, onProgress)

	var (
		envelope  []byte
		key       *crypto.Key
		plaintext []byte
		payload   []byte
	)
	defer func() { key.Destroy() }()

	err = e.stage(ctx, models.DirectionDecrypt, progress.StageExtraction, func(ctx context.Context) error {
		img, err := source()
		if err != nil {
			return err
		}
		tracker.Report(progress.StageExtraction, 0.5)

		pixels := imagecodec.RasterToBytes(img)
		consumed = len(pixels)
		text, terminated := carrier.Extract(pixels)
		if !terminated {
			e.logger.Warn("carrier has no terminator, decoding all %d pixels", len(pixels))
		}

		if envelope, err = radix85.Decode(string(text)); err != nil {
			return err
		}
		if len(envelope) < MinEnvelopeSize {
			return models.NewError(models.ErrCodeTranscodeFailed, "envelope too short", nil)
		}
		tracker.Report(progress.StageExtraction, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, models.DirectionDecrypt, progress.StageKeyDerivation, func(ctx context.Context) error {
		var err error
		key, err = e.provider.DeriveKey(pass.Bytes(), envelope[saltOffset:nonceOffset])
		if err != nil {
			return err
		}
		tracker.Report(progress.StageKeyDerivation, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, models.DirectionDecrypt, progress.StageDecryption, func(ctx context.Context) error {
		var err error
		if plaintext, err = e.open(key, envelope[nonceOffset:dataOffset], envelope[dataOffset:]); err != nil {
			return err
		}
		tracker.Report(progress.StageDecryption, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, models.DirectionDecrypt, progress.StageDecompression, func(ctx context.Context) error {
		decompress := rle.Decompress
		if e.opts.StrictDecode {
			decompress = rle.DecompressStrict
		}
		var err error
		payload, err = decompress(ctx, plaintext, tracker.Stage(progress.StageDecompression))
		return err
	})
	if err != nil {
		return nil, err
	}

	tracker.Complete()
	return payload, nil
}

// open authenticates and decrypts sealed. Radix-85 decoding may have left up
// to three zero bytes of group padding after the tag; each candidate length
// is tried and only a tag that verifies is accepted.
func (e *Engine) open(key *crypto.Key, nonce, sealed []byte) ([]byte, error) {
	for trim := 0; trim <= maxPadding && len(sealed)-trim >= crypto.TagSize; trim++ {
		if trim > 0 && sealed[len(sealed)-trim] != 0 {
			break
		}
		plaintext, err := e.provider.Open(key, nonce, sealed[:len(sealed)-trim])
		if err == nil {
			return plaintext, nil
		}
	}
	return nil, models.NewDecryptionError()
}

// stage runs fn in its own span after checking for cancellation.
func (e *Engine) stage(ctx context.Context, direction models.Direction, stage progress.Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return models.NewCanceledError(err)
	}

	ctx, span := tracer().Start(ctx, "pipeline."+string(stage))
	start := time.Now()
	err := fn(ctx)
	if err == nil && ctx.Err() != nil {
		// the stage finished but the caller gave up meanwhile
		err = models.NewCanceledError(ctx.Err())
	}
	recordStage(ctx, direction, stage, time.Since(start), err)
	finishSpan(span, err)

	if err != nil {
		e.logger.Debug("%s stage %s failed: %s", direction, stage, models.CodeOf(err))
	}
	return err
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, models.CodeOf(err))
		span.SetAttributes(attribute.String("error.code", models.CodeOf(err)))
	}
	span.End()
}

// OptionsFromConfig builds engine options from loaded configuration.
func OptionsFromConfig(cfg *config.Config, logger *logging.Logger) Options {
	return Options{
		EncryptPlan:  cfg.Pipeline.EncryptWeights,
		DecryptPlan:  cfg.Pipeline.DecryptWeights,
		Layout:       cfg.Carrier,
		StrictDecode: cfg.Pipeline.StrictDecode,
		Logger:       logger,
	}
}
