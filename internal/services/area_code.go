package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"
)

// Khmer ordinal number-words as they appear romanized in area names, e.g.
// "Boeng Keng Kang Ti Pir" (Boeng Keng Kang 2nd).
var khmerOrdinals = map[string]string{
	"muoy":     "1",
	"pir":      "2",
	"bei":      "3",
	"buon":     "4",
	"pram":     "5",
	"prammuoy": "6",
	"prampir":  "7",
	"prambei":  "8",
	"prambuon": "9",
}

// Region-type words that carry no identity and are stripped from the tail
// of a name before deriving its code.
var regionTypeSuffixes = map[string]bool{
	"province":     true,
	"district":     true,
	"commune":      true,
	"city":         true,
	"municipality": true,
	"krong":        true,
	"srok":         true,
	"khum":         true,
	"khan":         true,
	"sangkat":      true,
}

// GenerateAreaCode derives a short code (2-3 characters) from an area name.
// Deterministic for a given (name, existing) pair; the returned code is
// never a member of existing, and existing is never mutated. The caller is
// responsible for re-reading assigned codes before each new assignment.
func GenerateAreaCode(name string, existing map[string]bool) string {
	words, numeral := normalizeName(name)

	candidate := baseCode(words, numeral)
	if !existing[candidate] {
		return candidate
	}

	return resolveCollision(candidate, words, name, existing)
}

// normalizeName strips an ordinal suffix ("Ti Pir" -> numeral "2"), drops
// region-type suffix words and non-alphabetic characters, and tokenizes the
// rest into uppercase words.
func normalizeName(name string) (words []string, numeral string) {
	raw := strings.Fields(strings.ToLower(strings.TrimSpace(name)))

	// Ordinal suffix: trailing "ti <number-word>"
	if len(raw) >= 2 {
		if n, ok := khmerOrdinals[cleanWord(raw[len(raw)-1])]; ok && cleanWord(raw[len(raw)-2]) == "ti" {
			numeral = n
			raw = raw[:len(raw)-2]
		}
	}

	// Region-type suffixes: strip from the tail only
	for len(raw) > 1 && regionTypeSuffixes[cleanWord(raw[len(raw)-1])] {
		raw = raw[:len(raw)-1]
	}

	for _, w := range raw {
		cleaned := cleanWord(w)
		if cleaned != "" {
			words = append(words, strings.ToUpper(cleaned))
		}
	}

	return words, numeral
}

func cleanWord(w string) string {
	var b strings.Builder
	for _, r := range w {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// baseCode applies the derivation rules in order.
func baseCode(words []string, numeral string) string {
	if len(words) == 0 {
		return "XXX"
	}

	// Ordinal names: two initials + the numeral
	if numeral != "" {
		if len(words) == 1 {
			return padCode(firstN(words[0], 2), 2) + numeral
		}
		return firstN(words[0], 1) + firstN(words[1], 1) + numeral
	}

	joined := strings.Join(words, "")
	if len(joined) <= 3 {
		return padCode(joined, 3)
	}

	switch len(words) {
	case 1:
		return singleWordCode(words[0])
	case 2:
		return twoWordCode(words[0], words[1])
	default:
		return firstN(words[0], 1) + firstN(words[1], 1) + firstN(words[2], 1)
	}
}

// singleWordCode: first letter, then up to two following consonants, then
// vowels, padded to 3.
func singleWordCode(word string) string {
	code := []byte{word[0]}
	rest := word[1:]

	for i := 0; i < len(rest) && len(code) < 3; i++ {
		if !isVowel(rest[i]) {
			code = append(code, rest[i])
		}
	}
	for i := 0; i < len(rest) && len(code) < 3; i++ {
		if isVowel(rest[i]) {
			code = append(code, rest[i])
		}
	}

	return padCode(string(code), 3)
}

// twoWordCode: both initials plus the last consonant of the second word,
// falling back to its last letter.
func twoWordCode(first, second string) string {
	last := second[len(second)-1]
	for i := len(second) - 1; i >= 0; i-- {
		if !isVowel(second[i]) {
			last = second[i]
			break
		}
	}
	return string(first[0]) + string(second[0]) + string(last)
}

// resolveCollision walks the fallback ladder until a free code appears:
// digit suffixes, pairwise initials, then a hash of the name.
func resolveCollision(candidate string, words []string, name string, existing map[string]bool) string {
	// (a) replace the last character with a digit, scanning upward
	prefix := candidate[:len(candidate)-1]
	for digit := '2'; digit <= '9'; digit++ {
		next := prefix + string(digit)
		if !existing[next] {
			return next
		}
	}

	// (b) pairwise initials across word pairs
	for i := 0; i < len(words); i++ {
		for j := i + 1; j < len(words); j++ {
			next := firstN(words[i], 1) + firstN(words[j], 1)
			if !existing[next] {
				return next
			}
		}
	}

	// (c) sliding windows over a hash of the name
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	for i := 0; i+3 <= len(digest); i++ {
		next := digest[i : i+3]
		if !existing[next] {
			return next
		}
	}

	// Exhausting every window takes thousands of assigned codes; grow a
	// numeric suffix so the result is still unique and deterministic.
	for n := 2; ; n++ {
		next := candidate + strconv.Itoa(n)
		if !existing[next] {
			return next
		}
	}
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

func padCode(s string, size int) string {
	for len(s) < size {
		s += "X"
	}
	return s
}

func isVowel(c byte) bool {
	switch c {
	case 'A', 'E', 'I', 'O', 'U', 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
