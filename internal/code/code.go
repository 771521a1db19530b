package code

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"wormhole/internal/domain"
)

const (
	// DefaultWords is how many words a generated code carries.
	DefaultWords = 2
	// MinWords is the fewest words Generate accepts.
	MinWords = 2
	// MaxWords bounds both generation and parsing.
	MaxWords = 16
)

// Generate returns a fresh code for nameplate with the given number of words.
// The nameplate comes from the rendezvous server; only the words are chosen
// here.
func Generate(nameplate domain.Nameplate, words int) (domain.Code, error) {
	if words < MinWords || words > MaxWords {
		return domain.Code{}, fmt.Errorf("%w: word count %d outside [%d, %d]",
			domain.ErrInvalidInput, words, MinWords, MaxWords)
	}
	if !validNameplate(string(nameplate)) {
		return domain.Code{}, fmt.Errorf("%w: nameplate %q", domain.ErrMalformedCode, nameplate)
	}

	out := make([]string, words)
	for i := range out {
		list := evenWords[:]
		if i%2 == 1 {
			list = oddWords[:]
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
		if err != nil {
			return domain.Code{}, err
		}
		out[i] = list[n.Int64()]
	}
	return domain.Code{Nameplate: nameplate, Words: out}, nil
}

// Parse splits human input into nameplate and words. Separators may be
// dashes or whitespace and case is ignored.
func Parse(text string) (domain.Code, error) {
	norm := strings.ToLower(strings.TrimSpace(text))
	fields := strings.FieldsFunc(norm, func(r rune) bool {
		return r == '-' || unicode.IsSpace(r)
	})
	if len(fields) < 2 {
		return domain.Code{}, fmt.Errorf("%w: %q needs a nameplate and at least one word",
			domain.ErrMalformedCode, text)
	}
	if len(fields)-1 > MaxWords {
		return domain.Code{}, fmt.Errorf("%w: too many words", domain.ErrMalformedCode)
	}
	if !validNameplate(fields[0]) {
		return domain.Code{}, fmt.Errorf("%w: nameplate %q is not a positive number",
			domain.ErrMalformedCode, fields[0])
	}
	for _, w := range fields[1:] {
		if !validWord(w) {
			return domain.Code{}, fmt.Errorf("%w: word %q", domain.ErrMalformedCode, w)
		}
	}
	return domain.Code{
		Nameplate: domain.Nameplate(fields[0]),
		Words:     append([]string(nil), fields[1:]...),
	}, nil
}

// Entropy returns the bits of passphrase entropy a generated code with the
// given number of words carries.
func Entropy(words int) float64 {
	if words <= 0 {
		return 0
	}
	return float64(words) * math.Log2(float64(len(evenWords)))
}

// Known reports whether w appears in the word lists. Parse does not require
// it; the CLI uses it to warn about likely typos.
func Known(w string) bool {
	_, ok := wordIndex[strings.ToLower(w)]
	return ok
}

var wordIndex = func() map[string]struct{} {
	idx := make(map[string]struct{}, len(evenWords)+len(oddWords))
	for _, w := range evenWords {
		idx[w] = struct{}{}
	}
	for _, w := range oddWords {
		idx[w] = struct{}{}
	}
	return idx
}()

func validNameplate(s string) bool {
	n, err := strconv.ParseUint(s, 10, 32)
	return err == nil && n > 0
}

func validWord(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
