// Package filter compiles the search box input of a connection view
// into a predicate over display fields. The predicate is rebuilt on
// every input or toggle change and holds no other state.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Query is the raw search text plus its three modifier toggles.
type Query struct {
	Text      string
	MatchCase bool
	WholeWord bool
	Regex     bool
}

// NewQuery returns a Query with the default toggles: case sensitivity
// on, whole word off, regex off.
func NewQuery(text string) Query {
	return Query{Text: text, MatchCase: true}
}

// Filter is a compiled Query. A Filter whose pattern failed to compile
// matches nothing; the compile error stays retrievable through Err so
// the caller can surface it instead of handling a panic per keystroke.
type Filter struct {
	match func(string) bool
	err   error
}

// Build compiles q. It never fails: invalid regular expressions yield a
// fail-closed Filter carrying the error.
//
// When MatchCase is false both the field and the search text are
// lower-cased before comparison. In regex mode the pattern is only
// lower-cased, not re-interpreted, so a pattern with fixed upper-case
// literals will stop matching. That asymmetry is deliberate and
// mirrors the original search behavior.
func Build(q Query) *Filter {
	text := q.Text
	if !q.MatchCase {
		text = strings.ToLower(text)
	}

	if text == "" {
		return &Filter{match: matchAll}
	}

	var re *regexp.Regexp
	if q.Regex {
		var err error
		re, err = regexp.Compile(text)
		if err != nil {
			return &Filter{
				match: matchNone,
				err:   fmt.Errorf("invalid search pattern %q: %w", q.Text, err),
			}
		}
	}

	fold := !q.MatchCase
	switch {
	case q.WholeWord && q.Regex:
		// Both tests apply: the literal text must occur on word
		// boundaries and the pattern must match somewhere.
		return &Filter{match: func(field string) bool {
			field = foldField(field, fold)
			return containsWord(field, text) && re.MatchString(field)
		}}
	case q.WholeWord:
		return &Filter{match: func(field string) bool {
			return containsWord(foldField(field, fold), text)
		}}
	case q.Regex:
		return &Filter{match: func(field string) bool {
			return re.MatchString(foldField(field, fold))
		}}
	default:
		return &Filter{match: func(field string) bool {
			return strings.Contains(foldField(field, fold), text)
		}}
	}
}

// Match reports whether a single display field passes the filter.
func (f *Filter) Match(field string) bool {
	return f.match(field)
}

// MatchAny reports whether any of the provided fields passes.
func (f *Filter) MatchAny(fields ...string) bool {
	for _, field := range fields {
		if f.match(field) {
			return true
		}
	}
	return false
}

// Err returns the pattern compile error, or nil.
func (f *Filter) Err() error {
	return f.err
}

func matchAll(string) bool  { return true }
func matchNone(string) bool { return false }

func foldField(s string, fold bool) string {
	if fold {
		return strings.ToLower(s)
	}
	return s
}

// containsWord reports whether needle occurs in s without a word
// character adjacent on either side of the occurrence.
func containsWord(s, needle string) bool {
	for from := 0; from <= len(s)-len(needle); {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			return false
		}
		i += from
		if boundaryBefore(s, i) && boundaryAfter(s, i+len(needle)) {
			return true
		}
		from = i + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i == len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
