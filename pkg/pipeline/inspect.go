package pipeline

import (
	"image"

	"sonopix/pkg/carrier"
	"sonopix/pkg/crypto"
	"sonopix/pkg/imagecodec"
	"sonopix/pkg/models"
	"sonopix/pkg/radix85"
)

// Inspection describes the structure of an artifact without touching any
// key material.
type Inspection struct {
	Width            int    `json:"width" yaml:"width"`
	Height           int    `json:"height" yaml:"height"`
	Pixels           int    `json:"pixels" yaml:"pixels"`
	Terminated       bool   `json:"terminated" yaml:"terminated"`
	TextLength       int    `json:"text_length" yaml:"text_length"`
	EnvelopeLength   int    `json:"envelope_length" yaml:"envelope_length"`
	CiphertextLength int    `json:"ciphertext_length" yaml:"ciphertext_length"`
	WellFormed       bool   `json:"well_formed" yaml:"well_formed"`
	Problem          string `json:"problem,omitempty" yaml:"problem,omitempty"`
}

// Inspect reports how img is laid out. WellFormed means the carrier is
// terminated and holds a decodable envelope of plausible size; it says
// nothing about whether any passphrase will open it.
func Inspect(img image.Image) *Inspection {
	b := img.Bounds()
	pixels := imagecodec.RasterToBytes(img)
	text, terminated := carrier.Extract(pixels)

	in := &Inspection{
		Width:      b.Dx(),
		Height:     b.Dy(),
		Pixels:     len(pixels),
		Terminated: terminated,
		TextLength: len(text),
	}
	if !terminated {
		in.Problem = "no terminator"
		return in
	}

	envelope, err := radix85.Decode(string(text))
	if err != nil {
		in.Problem = models.CodeOf(err)
		return in
	}
	in.EnvelopeLength = len(envelope)
	if len(envelope) < MinEnvelopeSize {
		in.Problem = "envelope too short"
		return in
	}
	in.CiphertextLength = len(envelope) - crypto.SaltSize - crypto.NonceSize
	in.WellFormed = true
	return in
}
