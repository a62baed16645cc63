package models

import "errors"

// Error is the error type surfaced by every sonopix package. Code is one of
// the ErrCode constants below and is the only part callers should branch on.
type Error struct {
	Code    string
	Message string
	Err     error

	// Segments names the failing passphrase segments for ErrCodeValidation.
	Segments []string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeValidation       = "VALIDATION_FAILED"
	ErrCodeCanceled         = "CANCELED"
	ErrCodeDecryptionFailed = "DECRYPTION_FAILED"
	ErrCodeEncryptionFailed = "ENCRYPTION_FAILED"
	ErrCodeTranscodeFailed  = "TRANSCODE_FAILED"
	ErrCodeCodecFailed      = "CODEC_FAILED"
	ErrCodeCarrierFailed    = "CARRIER_FAILED"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
	ErrCodeJobsBusy         = "JOBS_BUSY"
	ErrCodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
)

// DecryptionFailedMessage is the only message ever attached to
// ErrCodeDecryptionFailed, whatever the underlying cause.
const DecryptionFailedMessage = "cannot decrypt"

// NewError builds an *Error.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewValidationError reports which passphrase segments failed validation.
func NewValidationError(segments []string) *Error {
	return &Error{
		Code:     ErrCodeValidation,
		Message:  "invalid passphrase segments",
		Segments: append([]string(nil), segments...),
	}
}

// NewCanceledError wraps the context error that stopped an operation.
func NewCanceledError(cause error) *Error {
	return &Error{Code: ErrCodeCanceled, Message: "operation canceled", Err: cause}
}

// NewDecryptionError never carries a cause so nothing about the failure
// leaks to the caller.
func NewDecryptionError() *Error {
	return &Error{Code: ErrCodeDecryptionFailed, Message: DecryptionFailedMessage}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// OpaqueCode reports whether failures with code reach clients only as a
// generic message. These are the failures a wrong passphrase or a foreign
// image can produce.
func OpaqueCode(code string) bool {
	switch code {
	case ErrCodeDecryptionFailed, ErrCodeTranscodeFailed, ErrCodeCodecFailed, ErrCodeCarrierFailed:
		return true
	}
	return false
}

// PublicCode is the code a client may see for a failure with code. Opaque
// codes collapse into the failure code of the direction so a response never
// tells which stage rejected the input.
func PublicCode(d Direction, code string) string {
	if !OpaqueCode(code) {
		return code
	}
	if d == DirectionDecrypt {
		return ErrCodeDecryptionFailed
	}
	return ErrCodeEncryptionFailed
}

// GenericFailureMessage is the client-facing text for an opaque failure.
func GenericFailureMessage(d Direction) string {
	if d == DirectionDecrypt {
		return DecryptionFailedMessage
	}
	return "cannot encrypt"
}
