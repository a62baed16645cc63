package passphrase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonopix/pkg/models"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		letters     string
		digits      string
		special     string
		wantValid   bool
		wantFailing []Segment
	}{
		{
			name:        "valid",
			letters:     "abcd",
			digits:      "1234",
			special:     "!@#$",
			wantValid:   true,
			wantFailing: []Segment{},
		},
		{
			name:        "letters contain a digit",
			letters:     "ab1!",
			digits:      "1234",
			special:     "!@#$",
			wantFailing: []Segment{SegmentLetters},
		},
		{
			name:        "mixed case letters",
			letters:     "AbCd",
			digits:      "0000",
			special:     `\|"'`,
			wantValid:   true,
			wantFailing: []Segment{},
		},
		{
			name:        "digits too short",
			letters:     "abcd",
			digits:      "123",
			special:     "!@#$",
			wantFailing: []Segment{SegmentDigits},
		},
		{
			name:        "special outside the set",
			letters:     "abcd",
			digits:      "1234",
			special:     "!@#~",
			wantFailing: []Segment{SegmentSpecial},
		},
		{
			name:        "backtick is not special",
			letters:     "abcd",
			digits:      "1234",
			special:     "!@#`",
			wantFailing: []Segment{SegmentSpecial},
		},
		{
			name:        "hyphen is a literal not a range",
			letters:     "abcd",
			digits:      "1234",
			special:     "----",
			wantValid:   true,
			wantFailing: []Segment{},
		},
		{
			name:        "characters between plus and equals are rejected",
			letters:     "abcd",
			digits:      "1234",
			special:     "!@#9",
			wantFailing: []Segment{SegmentSpecial},
		},
		{
			name:        "non ascii letters rejected",
			letters:     "abcé",
			digits:      "1234",
			special:     "!@#$",
			wantFailing: []Segment{SegmentLetters},
		},
		{
			name:        "everything wrong",
			letters:     "",
			digits:      "abcd",
			special:     "12345",
			wantFailing: []Segment{SegmentLetters, SegmentDigits, SegmentSpecial},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.letters, tt.digits, tt.special)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantFailing, res.Failing)
		})
	}
}

func TestValidate_EverySpecialCharacterAccepted(t *testing.T) {
	for _, r := range SpecialCharacters {
		seg := strings.Repeat(string(r), SegmentLength)
		res := Validate("abcd", "1234", seg)
		assert.True(t, res.Valid, "special character %q should be accepted", r)
	}
}

func TestCombine(t *testing.T) {
	assert.Equal(t, "abcd1234!@#$", Combine("abcd", "1234", "!@#$"))
	assert.Len(t, Combine("abcd", "1234", "!@#$"), Length)
	// no trimming or normalisation
	assert.Equal(t, " bcd1234!@#$", Combine(" bcd", "1234", "!@#$"))
}

func TestSplit(t *testing.T) {
	p, err := Split("Wxyz9876&*()")
	require.NoError(t, err)
	assert.Equal(t, Passphrase{Letters: "Wxyz", Digits: "9876", Special: "&*()"}, p)
	assert.NoError(t, p.Err())
	assert.Equal(t, "Wxyz9876&*()", p.Combined())

	_, err = Split("short")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeValidation))
}

func TestPassphrase_Err(t *testing.T) {
	p := Passphrase{Letters: "ab1!", Digits: "1234", Special: "!@#$"}

	err := p.Err()
	require.Error(t, err)

	var modelErr *models.Error
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, []string{"letters"}, modelErr.Segments)
	assert.NotContains(t, err.Error(), "ab1!")
}

func TestPassphrase_StringMasksSecret(t *testing.T) {
	p := Passphrase{Letters: "abcd", Digits: "1234", Special: "!@#$"}
	assert.NotContains(t, p.String(), "abcd")
	assert.Equal(t, []byte("abcd1234!@#$"), p.Bytes())
}
