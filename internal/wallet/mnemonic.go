// Package wallet holds the keyring's persistent model: BIP39 mnemonics, the
// account table and network registry (VaultState), the encrypted vault
// record, and the storage backends that persist them.
package wallet

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/tyler-smith/go-bip39"

	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

var (
	// ErrInvalidWordCount is returned when asked for a phrase length BIP39
	// does not define.
	ErrInvalidWordCount = errors.New("word count must be 12, 15, 18, 21 or 24")

	// ErrInvalidMnemonic aliases the seed sentinel so callers can match either.
	ErrInvalidMnemonic = sigilerr.ErrInvalidSeed
)

// maxSuggestDistance bounds how far a typed word may be from a list word
// before no suggestion is offered.
const maxSuggestDistance = 2

// GenerateMnemonic returns a fresh English phrase of the given length.
func GenerateMnemonic(words int) (string, error) {
	if !isPhraseLength(words) {
		return "", ErrInvalidWordCount
	}
	// every 3 words encode 32 bits of entropy
	entropy, err := bip39.NewEntropy(words / 3 * 32)
	if err != nil {
		return "", fmt.Errorf("generating entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic reports ErrInvalidMnemonic unless the phrase has a BIP39
// length, only list words and a correct checksum.
func ValidateMnemonic(phrase string) error {
	normalized := NormalizeMnemonicInput(phrase)
	if !isPhraseLength(len(strings.Fields(normalized))) {
		return ErrInvalidMnemonic
	}
	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return ErrInvalidMnemonic
	}
	return nil
}

// NormalizeMnemonicInput turns pasted text into a single-spaced lowercase
// phrase. Line prefixes such as "3." "4)" "5:" or list bullets are dropped and
// commas count as separators.
func NormalizeMnemonicInput(input string) string {
	var words []string
	for line := range strings.Lines(strings.ToLower(input)) {
		line = stripListMarker(strings.TrimSpace(line))
		words = append(words, strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})...)
	}
	return strings.Join(words, " ")
}

// stripListMarker removes one leading "12." style number or bullet.
func stripListMarker(line string) string {
	if rest, ok := strings.CutPrefix(line, "•"); ok {
		return rest
	}
	if line != "" && (line[0] == '-' || line[0] == '*') {
		return line[1:]
	}
	digits := 0
	for digits < len(line) && line[digits] >= '0' && line[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(line) && strings.ContainsRune(".):", rune(line[digits])) {
		return line[digits+1:]
	}
	return line
}

// MnemonicToSeed stretches a phrase and optional passphrase into the 64-byte
// BIP39 seed. Callers own the returned slice and should wipe it.
func MnemonicToSeed(phrase, passphrase string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(NormalizeMnemonicInput(phrase), passphrase)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	return seed, nil
}

func isPhraseLength(n int) bool {
	switch n {
	case 12, 15, 18, 21, 24:
		return true
	}
	return false
}

// IsValidWord reports whether word is on the English list.
func IsValidWord(word string) bool {
	_, ok := bip39.GetWordIndex(strings.ToLower(word))
	return ok
}

// NearestWord returns the list word closest to word by edit distance. It
// reports false when nothing lies within two edits.
func NearestWord(word string) (string, bool) {
	word = strings.ToLower(word)
	if IsValidWord(word) {
		return word, true
	}
	best, bestDist := "", maxSuggestDistance+1
	for _, candidate := range bip39.GetWordList() {
		if d := levenshtein.ComputeDistance(word, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best, best != ""
}

// Typo is a phrase word missing from the list.
type Typo struct {
	// Position is 1-based.
	Position   int
	Word       string
	Suggestion string
}

func (t Typo) String() string {
	if t.Suggestion == "" {
		return fmt.Sprintf("Word %d: '%s' is not a valid BIP39 word", t.Position, t.Word)
	}
	return fmt.Sprintf("Word %d: '%s' - did you mean '%s'?", t.Position, t.Word, t.Suggestion)
}

// FindTypos lists every word of the phrase that is not on the list, in order.
func FindTypos(phrase string) []Typo {
	var typos []Typo
	for i, w := range strings.Fields(NormalizeMnemonicInput(phrase)) {
		if IsValidWord(w) {
			continue
		}
		suggestion, _ := NearestWord(w)
		typos = append(typos, Typo{Position: i + 1, Word: w, Suggestion: suggestion})
	}
	return typos
}

// CheckMnemonic explains why a phrase is not a valid mnemonic. It returns an
// empty message for a valid phrase and never fails.
func CheckMnemonic(phrase string) (bool, string) {
	normalized := NormalizeMnemonicInput(phrase)
	if normalized == "" {
		return false, "Seed phrase is empty"
	}
	if typos := FindTypos(normalized); len(typos) > 0 {
		lines := make([]string, len(typos))
		for i, t := range typos {
			lines[i] = t.String()
		}
		return false, strings.Join(lines, "\n")
	}
	if n := len(strings.Fields(normalized)); !isPhraseLength(n) {
		return false, fmt.Sprintf("Seed phrase must have 12, 15, 18, 21 or 24 words, got %d", n)
	}
	if !bip39.IsMnemonicValid(normalized) {
		return false, "Invalid seed phrase checksum"
	}
	return true, ""
}
