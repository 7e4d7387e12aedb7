// Package sanitize is the shallow gate in front of generated UI code.
//
// Pattern matching over a Turing-complete language cannot prove code safe, so
// the filter only rejects obvious capability escapes. The sandboxed iframe in
// package render is the actual security boundary.
package sanitize

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"
)

// DefaultMaxLength is the character cap applied when none is configured.
const DefaultMaxLength = 50000

// Rejection reasons that do not come from a denylist rule.
const (
	ReasonTooLong = "exceeds length limit"
	ReasonEmpty   = "empty code"
)

// Verdict is the tagged result of a check: Safe(code) or Unsafe(reason).
type Verdict struct {
	Safe   bool
	Code   string
	Reason string
}

// Safe builds a passing verdict carrying the code unchanged.
func Safe(code string) Verdict {
	return Verdict{Safe: true, Code: code}
}

// Unsafe builds a rejecting verdict.
func Unsafe(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Rule is one denylist entry. Name appears in the rejection reason.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// notMember keeps `props.document` or `event.process` from matching a global.
const notMember = `(?:^|[^\w$.])`

// identEnd ends a whole identifier. A trailing dash is excluded so Tailwind
// classes such as `self-center` do not match.
const identEnd = `(?:[^\w$-]|$)`

// DefaultRules is the denylist of capability-escaping constructs, checked in order.
var DefaultRules = []Rule{
	// dynamic code evaluation
	{"eval", regexp.MustCompile(notMember + `eval\s*\(`)},
	{"Function constructor", regexp.MustCompile(notMember + `(?:new\s+)?Function\s*\(`)},

	// timer scheduling
	{"setTimeout", regexp.MustCompile(`\bsetTimeout\b`)},
	{"setInterval", regexp.MustCompile(`\bsetInterval\b`)},
	{"setImmediate", regexp.MustCompile(`\bsetImmediate\b`)},

	// host globals, accessed directly or through an alias
	{"window", regexp.MustCompile(notMember + `window` + identEnd)},
	{"document", regexp.MustCompile(notMember + `document` + identEnd)},
	{"globalThis", regexp.MustCompile(`\bglobalThis\b`)},
	{"global", regexp.MustCompile(notMember + `global` + identEnd)},
	{"process", regexp.MustCompile(notMember + `process` + identEnd)},
	{"self", regexp.MustCompile(notMember + `self` + identEnd)},

	// dynamic module loading
	{"import()", regexp.MustCompile(`\bimport\s*\(`)},
	{"require", regexp.MustCompile(notMember + `require\s*\(`)},

	// file-system path globals
	{"__dirname", regexp.MustCompile(`\b__dirname\b`)},
	{"__filename", regexp.MustCompile(`\b__filename\b`)},

	// network access out of the sandbox
	{"fetch", regexp.MustCompile(notMember + `fetch\s*\(`)},
	{"XMLHttpRequest", regexp.MustCompile(`\bXMLHttpRequest\b`)},
	{"WebSocket", regexp.MustCompile(`\bWebSocket\b`)},
}

// Filter is a stateless length and denylist gate. The zero value is not usable;
// construct with New.
type Filter struct {
	maxLength int
	rules     []Rule
}

// Option configures a Filter.
type Option func(*Filter)

// WithMaxLength overrides the character cap.
func WithMaxLength(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.maxLength = n
		}
	}
}

// WithRules appends rules after the defaults.
func WithRules(rules ...Rule) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rules...)
	}
}

// New creates a filter with the default denylist.
func New(opts ...Option) *Filter {
	f := &Filter{
		maxLength: DefaultMaxLength,
		rules:     append([]Rule(nil), DefaultRules...),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CompileRules turns name=regex pairs into rules sorted by name so the
// evaluation order does not depend on map iteration.
func CompileRules(patterns map[string]string) ([]Rule, error) {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		re, err := regexp.Compile(patterns[name])
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", name, err)
		}
		rules = append(rules, Rule{Name: name, Pattern: re})
	}
	return rules, nil
}

// MaxLength returns the configured character cap.
func (f *Filter) MaxLength() int {
	return f.maxLength
}

// Check evaluates code. The same input always yields the same verdict, and a
// safe verdict carries the input byte-for-byte.
func (f *Filter) Check(code string) Verdict {
	if utf8.RuneCountInString(code) > f.maxLength {
		return Unsafe(ReasonTooLong)
	}
	if isBlank(code) {
		return Unsafe(ReasonEmpty)
	}
	for _, rule := range f.rules {
		if rule.Pattern.MatchString(code) {
			return Unsafe("forbidden construct: " + rule.Name)
		}
	}
	return Safe(code)
}

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v':
		default:
			return false
		}
	}
	return true
}
