package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostcodeHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SW1A1AA", NormalizePostcode(" sw1a 1aa "))
	assert.Equal(t, "SW1A 1AA", FormatPostcode("sw1a1aa"))
	assert.Equal(t, "M1 1AE", FormatPostcode("m11ae"))
	assert.Equal(t, "NOT A CODE", FormatPostcode(" not a code "))
	assert.Equal(t, "SW1A", OutwardCode("SW1A 1AA"))
	assert.Equal(t, "LS6", OutwardCode("ls6 2ab"))
}

func TestExtractPostcode(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"12 Hyde Park Road, Leeds, LS6 1AB":    "LS6 1AB",
		"Flat 2, 4 Oak St, Manchester m14 5rt": "M14 5RT",
		"4 Oak Street":                         "",
		"B1 1AA then moved to B15 2TT":         "B15 2TT",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractPostcode(in), in)
	}
}
