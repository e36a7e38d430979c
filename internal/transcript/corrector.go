package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched vocabulary word to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// vocabEntry caches the phonetic codes of one vocabulary word.
type vocabEntry struct {
	word  string
	lower string
	codes map[string]struct{}
}

// Corrector snaps misrecognized words onto a lesson vocabulary.
//
// For each transcript token that is not already in the vocabulary, the
// corrector computes Double Metaphone codes and compares them against the
// vocabulary. Words sharing a phonetic code are candidates; the candidate
// with the highest Jaro-Winkler similarity wins, provided it clears the
// phonetic threshold. When no phonetic candidate exists, a pure
// Jaro-Winkler pass runs against the whole vocabulary with the stricter
// fuzzy threshold. Tokens that match nothing pass through unchanged.
//
// A Corrector is read-only after construction and safe for concurrent use.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	vocab   []vocabEntry
	inVocab map[string]struct{}
}

// NewCorrector builds a Corrector over the given lesson vocabulary.
// An empty vocabulary yields a corrector that passes everything through.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		inVocab:           make(map[string]struct{}, len(vocabulary)),
	}
	for _, o := range opts {
		o(c)
	}

	for _, w := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(w))
		if lower == "" {
			continue
		}
		c.vocab = append(c.vocab, vocabEntry{
			word:  strings.TrimSpace(w),
			lower: lower,
			codes: phoneticCodes(lower),
		})
		c.inVocab[lower] = struct{}{}
	}
	return c
}

// Correct returns the transcript with out-of-vocabulary words replaced by
// their best vocabulary match, plus the number of replacements made.
// Punctuation attached to a word is preserved around the replacement.
func (c *Corrector) Correct(text string) (string, int) {
	if len(c.vocab) == 0 {
		return text, 0
	}

	tokens := strings.Fields(text)
	replaced := 0
	for i, tok := range tokens {
		core, prefix, suffix := splitPunct(tok)
		if core == "" {
			continue
		}
		lower := strings.ToLower(core)
		if _, ok := c.inVocab[lower]; ok {
			continue
		}
		if match, ok := c.matchWord(lower); ok {
			tokens[i] = prefix + preserveCase(core, match) + suffix
			replaced++
		}
	}
	if replaced == 0 {
		return text, 0
	}
	return strings.Join(tokens, " "), replaced
}

// matchWord finds the vocabulary word most phonetically similar to word.
func (c *Corrector) matchWord(word string) (string, bool) {
	codes := phoneticCodes(word)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)

	for _, entry := range c.vocab {
		score := matchr.JaroWinkler(word, entry.lower, false)
		if codesOverlap(codes, entry.codes) {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = entry.word, score, true
			}
		} else if !bestPhonetic {
			if score >= c.fuzzyThreshold && score > bestScore {
				best, bestScore = entry.word, score
			}
		}
	}

	return best, best != ""
}

// phoneticCodes returns the Double Metaphone codes of word. Empty codes
// (word too short, no consonants) are excluded.
func phoneticCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// splitPunct separates leading and trailing punctuation from a token.
func splitPunct(tok string) (core, prefix, suffix string) {
	runes := []rune(tok)
	start := 0
	for start < len(runes) && !unicode.IsLetter(runes[start]) && !unicode.IsNumber(runes[start]) {
		start++
	}
	end := len(runes)
	for end > start && !unicode.IsLetter(runes[end-1]) && !unicode.IsNumber(runes[end-1]) {
		end--
	}
	return string(runes[start:end]), string(runes[:start]), string(runes[end:])
}

// preserveCase copies the capitalization of the original token's first
// letter onto the replacement.
func preserveCase(original, replacement string) string {
	or := []rune(original)
	rr := []rune(replacement)
	if len(or) == 0 || len(rr) == 0 {
		return replacement
	}
	if unicode.IsUpper(or[0]) {
		rr[0] = unicode.ToUpper(rr[0])
		return string(rr)
	}
	return replacement
}
