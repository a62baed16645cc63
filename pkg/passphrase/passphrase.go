// Package passphrase models the three-segment secret that protects an
// artifact: four letters, four digits and four special characters.
package passphrase

import (
	"regexp"

	"github.com/samber/lo"

	"sonopix/pkg/models"
)

// SegmentLength is the required length of every segment.
const SegmentLength = 4

// Length is the length of a combined passphrase.
const Length = 3 * SegmentLength

// SpecialCharacters is the set a special segment may draw from.
const SpecialCharacters = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// Segment identifies one part of a passphrase.
type Segment string

const (
	SegmentLetters Segment = "letters"
	SegmentDigits  Segment = "digits"
	SegmentSpecial Segment = "special"
)

var (
	lettersPattern = regexp.MustCompile(`^[A-Za-z]{4}$`)
	digitsPattern  = regexp.MustCompile(`^[0-9]{4}$`)
	specialPattern = regexp.MustCompile(`^[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]{4}$`)
)

type segmentCheck struct {
	segment Segment
	value   string
	pattern *regexp.Regexp
}

// Passphrase is a structured secret. It is built per request and never stored.
type Passphrase struct {
	Letters string
	Digits  string
	Special string
}

// Result is the outcome of Validate.
type Result struct {
	Valid   bool      `json:"valid"`
	Failing []Segment `json:"failing"`
}

// Validate checks each segment independently against its class and length.
// Failing lists the bad segments in letters, digits, special order.
func Validate(letters, digits, special string) Result {
	checks := []segmentCheck{
		{SegmentLetters, letters, lettersPattern},
		{SegmentDigits, digits, digitsPattern},
		{SegmentSpecial, special, specialPattern},
	}

	failing := lo.FilterMap(checks, func(c segmentCheck, _ int) (Segment, bool) {
		return c.segment, !c.pattern.MatchString(c.value)
	})

	return Result{Valid: len(failing) == 0, Failing: failing}
}

// Combine concatenates the segments verbatim: letters, digits, special.
func Combine(letters, digits, special string) string {
	return letters + digits + special
}

// Split cuts a combined passphrase back into its segments. A string that is
// not exactly Length characters yields a validation error naming every
// segment.
func Split(combined string) (Passphrase, error) {
	runes := []rune(combined)
	if len(runes) != Length {
		return Passphrase{}, models.NewValidationError(segmentNames(AllSegments()))
	}
	return Passphrase{
		Letters: string(runes[:SegmentLength]),
		Digits:  string(runes[SegmentLength : 2*SegmentLength]),
		Special: string(runes[2*SegmentLength:]),
	}, nil
}

// AllSegments returns the segments in their canonical order.
func AllSegments() []Segment {
	return []Segment{SegmentLetters, SegmentDigits, SegmentSpecial}
}

// Validate checks p.
func (p Passphrase) Validate() Result {
	return Validate(p.Letters, p.Digits, p.Special)
}

// Combined returns the key-derivation input for p.
func (p Passphrase) Combined() string {
	return Combine(p.Letters, p.Digits, p.Special)
}

// Err returns a validation error naming the failing segments, or nil.
func (p Passphrase) Err() error {
	res := p.Validate()
	if res.Valid {
		return nil
	}
	return models.NewValidationError(segmentNames(res.Failing))
}

// Bytes returns the combined passphrase as UTF-8 bytes.
func (p Passphrase) Bytes() []byte {
	return []byte(p.Combined())
}

// String masks the secret so it never ends up in logs.
func (p Passphrase) String() string {
	return "****-****-****"
}

func segmentNames(segments []Segment) []string {
	return lo.Map(segments, func(s Segment, _ int) string { return string(s) })
}
