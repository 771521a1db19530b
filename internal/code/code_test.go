package code_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"wormhole/internal/code"
	"wormhole/internal/domain"
)

func TestGenerateParse_RoundTrip(t *testing.T) {
	for _, words := range []int{2, 3, 5} {
		c, err := code.Generate("7", words)
		require.NoError(t, err)
		require.Len(t, c.Words, words)

		parsed, err := code.Parse(c.String())
		require.NoError(t, err)
		require.Equal(t, c, parsed)
		for _, w := range c.Words {
			require.True(t, code.Known(w), "generated word %q not in lists", w)
		}
	}
}

func TestGenerate_RejectsTooFewWords(t *testing.T) {
	_, err := code.Generate("7", 1)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = code.Generate("x", 2)
	require.ErrorIs(t, err, domain.ErrMalformedCode)
}

func TestParse_NormalisesInput(t *testing.T) {
	c, err := code.Parse("  7-CrossWord-Clockwork \n")
	require.NoError(t, err)
	require.Equal(t, domain.Nameplate("7"), c.Nameplate)
	require.Equal(t, []string{"crossword", "clockwork"}, c.Words)
	require.Equal(t, "7-crossword-clockwork", c.String())

	spaced, err := code.Parse("7 crossword clockwork")
	require.NoError(t, err)
	require.Equal(t, c, spaced)
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		"",
		"7",
		"7-",
		"crossword-clockwork",
		"0-crossword-clockwork",
		"+7-crossword",
		"7-cross_word",
		"7-ünïcode",
		"99999999999-crossword",
		"7-" + strings.Repeat("a-", code.MaxWords+1) + "a",
	}
	for _, in := range cases {
		_, err := code.Parse(in)
		require.ErrorIs(t, err, domain.ErrMalformedCode, "input %q", in)
	}
}

func TestPassword_CoversNameplate(t *testing.T) {
	a, err := code.Parse("7-crossword-clockwork")
	require.NoError(t, err)
	b, err := code.Parse("8-crossword-clockwork")
	require.NoError(t, err)

	require.Equal(t, a.Passphrase(), b.Passphrase())
	require.NotEqual(t, a.Password(), b.Password())
}

func TestEntropy(t *testing.T) {
	require.InDelta(t, 16.0, code.Entropy(2), 0.001)
	require.Zero(t, code.Entropy(0))
}
