package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	valid := [][2]string{
		{"2.5", "2.5"},
		{"₹1,500", "1500"},
		{"1,50,000", "150000"},
		{"  300 ", "300"},
		{"0", "0"},
		{"0.75", "0.75"},
		{"₹ 12.50", "12.5"},
	}
	for _, tc := range valid {
		got, err := ParseAmount("amount", tc[0])
		require.NoError(t, err, tc[0])
		assert.Equal(t, tc[1], got.String(), tc[0])
	}

	for _, in := range []string{"", "-1", "1e3", "abc", "1.2.3", ".", "+5"} {
		_, err := ParseAmount("amount", in)
		assert.ErrorIs(t, err, ErrValidation, in)
	}
}

func TestParseOptionalAmount(t *testing.T) {
	d, err := ParseOptionalAmount("paid", "  ")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseOptionalAmount("paid", "x")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "paid", verr.Field)
}

func TestFormatRupees(t *testing.T) {
	cases := [][2]string{
		{"0", "₹0"},
		{"999", "₹999"},
		{"1000", "₹1,000"},
		{"123456", "₹1,23,456"},
		{"12345678", "₹1,23,45,678"},
		{"1500.5", "₹1,500.5"},
		{"1500.256", "₹1,500.26"},
		{"-2500", "-₹2,500"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc[1], FormatRupees(MustDecimal(tc[0])), tc[0])
	}
}

func TestFormatAcres(t *testing.T) {
	assert.Equal(t, "2.5", FormatAcres(MustDecimal("2.5")))
	assert.Equal(t, "3.0", FormatAcres(MustDecimal("3")))
	assert.Equal(t, "1.3", FormatAcres(MustDecimal("1.25")))
}
