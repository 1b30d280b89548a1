package turn

import (
	"errors"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/iva/internal/dispatch"
)

const (
	defaultPhoneticSimilarity = 0.70
	defaultFuzzySimilarity    = 0.85
)

// WakeOption configures a [WakeMatcher].
type WakeOption func(*WakeMatcher)

// WithPhonetic enables sound-alike matching: a word whose Double Metaphone
// code equals the token's and whose Jaro-Winkler similarity reaches the
// phonetic threshold matches, as does any word above the fuzzy threshold.
func WithPhonetic(on bool) WakeOption {
	return func(w *WakeMatcher) {
		w.phonetic = on
	}
}

// WithPartials lets unstable partial results trigger the wake. By default
// only final results count.
func WithPartials(on bool) WakeOption {
	return func(w *WakeMatcher) {
		w.partials = on
	}
}

// WithSimilarity overrides the phonetic and fuzzy Jaro-Winkler thresholds.
// Defaults: 0.70 and 0.85.
func WithSimilarity(phonetic, fuzzy float64) WakeOption {
	return func(w *WakeMatcher) {
		w.phoneticMin = phonetic
		w.fuzzyMin = fuzzy
	}
}

// WakeMatcher decides whether a recogniser result contains the wake token.
// It is read-only after construction and safe for concurrent use.
type WakeMatcher struct {
	token       string
	codes       map[string]struct{}
	phonetic    bool
	partials    bool
	phoneticMin float64
	fuzzyMin    float64
}

// NewWakeMatcher returns a matcher for token. Matching is a case-insensitive
// substring test unless [WithPhonetic] is set.
func NewWakeMatcher(token string, opts ...WakeOption) (*WakeMatcher, error) {
	token = dispatch.Normalize(token)
	if token == "" {
		return nil, errors.New("turn: empty wake token")
	}
	w := &WakeMatcher{
		token:       token,
		phoneticMin: defaultPhoneticSimilarity,
		fuzzyMin:    defaultFuzzySimilarity,
	}
	for _, o := range opts {
		o(w)
	}
	w.codes = metaphoneCodes(token)
	return w, nil
}

// Token returns the normalised wake token.
func (w *WakeMatcher) Token() string { return w.token }

// Partials reports whether partial results may trigger the wake.
func (w *WakeMatcher) Partials() bool { return w.partials }

// Match reports whether text contains the wake token.
func (w *WakeMatcher) Match(text string) bool {
	norm := dispatch.Normalize(text)
	if norm == "" {
		return false
	}
	if strings.Contains(norm, w.token) {
		return true
	}
	if !w.phonetic {
		return false
	}
	for _, word := range strings.FieldsFunc(norm, isSeparator) {
		score := matchr.JaroWinkler(word, w.token, false)
		if score >= w.fuzzyMin {
			return true
		}
		if score >= w.phoneticMin && overlaps(metaphoneCodes(word), w.codes) {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func metaphoneCodes(word string) map[string]struct{} {
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

func overlaps(a, b map[string]struct{}) bool {
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
