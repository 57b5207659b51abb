// Package validate lints PromQL queries with a fixed set of lightweight
// checks. Findings are returned as data; a malformed query is never a Go
// error.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	promparser "github.com/prometheus/prometheus/promql/parser"
)

// Severity of a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	}
	return "unknown"
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Diagnostic categories.
const (
	CategoryBracket      = "bracket"
	CategoryLabelMatcher = "label-matcher"
	CategoryRangeVector  = "range-vector"
	CategoryCardinality  = "cardinality"
	CategorySyntax       = "syntax"
)

// NoPosition marks a diagnostic that is not tied to an offset.
const NoPosition = -1

// Diagnostic is a single finding. Position is a byte offset into the query
// or NoPosition.
type Diagnostic struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Position int      `json:"position"`
	Category string   `json:"category"`
}

func (d Diagnostic) String() string {
	if d.Position == NoPosition {
		return fmt.Sprintf("%s [%s]: %s", d.Severity, d.Category, d.Message)
	}
	return fmt.Sprintf("%s [%s] at %d: %s", d.Severity, d.Category, d.Position, d.Message)
}

// Result separates blocking errors from non-blocking warnings (which also
// carry Info findings).
type Result struct {
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
}

// HasErrors reports whether any Error was found.
func (r Result) HasErrors() bool { return len(r.Errors) > 0 }

// All returns errors followed by warnings.
func (r Result) All() []Diagnostic {
	out := make([]Diagnostic, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

func (r *Result) add(d Diagnostic) {
	if d.Severity == Error {
		r.Errors = append(r.Errors, d)
		return
	}
	r.Warnings = append(r.Warnings, d)
}

// Option configures a Validator.
type Option func(*Validator)

// WithAllEmptyMatchers reports every empty "{}" matcher instead of only the
// first one.
func WithAllEmptyMatchers() Option {
	return func(v *Validator) { v.allEmptyMatchers = true }
}

// WithStrictSyntax additionally runs the upstream PromQL parser and reports
// its first error.
func WithStrictSyntax() Option {
	return func(v *Validator) { v.strictSyntax = true }
}

// Validator runs the checks. The zero value is ready to use; a Validator is
// safe for concurrent use.
type Validator struct {
	allEmptyMatchers bool
	strictSyntax     bool
}

// New returns a Validator configured with opts.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, o := range opts {
		o(v)
	}
	return v
}

var defaultValidator = New()

// Validate runs the default checks on query.
func Validate(query string) Result {
	return defaultValidator.Validate(query)
}

// Validate runs the checks in a fixed order: brackets, empty matchers, range
// vectors, cardinality and, if enabled, strict syntax. Each check reports its
// findings left to right.
func (v *Validator) Validate(query string) Result {
	res := Result{Errors: []Diagnostic{}, Warnings: []Diagnostic{}}
	if strings.TrimSpace(query) == "" {
		return res
	}
	for _, d := range checkBrackets(query) {
		res.add(d)
	}
	for _, d := range checkEmptyMatchers(query, v.allEmptyMatchers) {
		res.add(d)
	}
	for _, d := range checkRangeVectors(query) {
		res.add(d)
	}
	for _, d := range checkCardinality(query) {
		res.add(d)
	}
	if v.strictSyntax {
		for _, d := range checkSyntax(query) {
			res.add(d)
		}
	}
	return res
}

type openBracket struct {
	char byte
	pos  int
}

var bracketPairs = map[byte]byte{')': '(', ']': '[', '}': '{'}

// checkBrackets matches ()[]{} with a stack. Quoted strings are not skipped.
func checkBrackets(q string) []Diagnostic {
	var (
		stack []openBracket
		out   []Diagnostic
	)
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch c {
		case '(', '[', '{':
			stack = append(stack, openBracket{char: c, pos: i})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].char != bracketPairs[c] {
				out = append(out, Diagnostic{
					Message:  fmt.Sprintf("unmatched '%c' at position %d", c, i),
					Severity: Error,
					Position: i,
					Category: CategoryBracket,
				})
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}
	for _, b := range stack {
		out = append(out, Diagnostic{
			Message:  fmt.Sprintf("unclosed '%c' at position %d", b.char, b.pos),
			Severity: Error,
			Position: b.pos,
			Category: CategoryBracket,
		})
	}
	return out
}

var emptyMatcherRe = regexp.MustCompile(`\{\s*\}`)

func checkEmptyMatchers(q string, all bool) []Diagnostic {
	n := 1
	if all {
		n = -1
	}
	var out []Diagnostic
	for _, loc := range emptyMatcherRe.FindAllStringIndex(q, n) {
		out = append(out, Diagnostic{
			Message:  "empty label matcher {}; add label filters to reduce cardinality",
			Severity: Warning,
			Position: loc[0],
			Category: CategoryLabelMatcher,
		})
	}
	return out
}

// rangeVectorFunctions must be called with a range vector argument, along
// with every *_over_time function.
var rangeVectorFunctions = map[string]struct{}{
	"rate": {}, "irate": {}, "increase": {}, "delta": {}, "deriv": {},
	"changes": {}, "resets": {}, "predict_linear": {},
}

// callRe matches a whole identifier followed by '('.
var callRe = regexp.MustCompile(`([A-Za-z_:][A-Za-z0-9_:]*)\s*\(`)

func needsRangeVector(name string) bool {
	if _, ok := rangeVectorFunctions[name]; ok {
		return true
	}
	return strings.HasSuffix(name, "_over_time")
}

// checkRangeVectors reports calls whose argument list closes, or the input
// ends, before any '['.
func checkRangeVectors(q string) []Diagnostic {
	var out []Diagnostic
	for _, m := range callRe.FindAllStringSubmatchIndex(q, -1) {
		name := q[m[2]:m[3]]
		if !needsRangeVector(name) || callHasRange(q, m[1]) {
			continue
		}
		out = append(out, Diagnostic{
			Message:  fmt.Sprintf("%s() requires a range vector argument, e.g. %s(metric[5m])", name, name),
			Severity: Error,
			Position: m[2],
			Category: CategoryRangeVector,
		})
	}
	return out
}

// callHasRange scans forward from just past a call's '(' and reports whether
// a '[' appears before the call's closing ')'.
func callHasRange(q string, start int) bool {
	depth := 0
	for i := start; i < len(q); i++ {
		switch q[i] {
		case '[':
			return true
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return false
			}
			depth--
		}
	}
	return false
}

var bareRateRe = regexp.MustCompile(`\brate\s*\(\s*([A-Za-z_:][A-Za-z0-9_:]*)`)

// checkCardinality flags the first rate() whose selector has no label
// matchers.
func checkCardinality(q string) []Diagnostic {
	for _, m := range bareRateRe.FindAllStringSubmatchIndex(q, -1) {
		if m[3] < len(q) && q[m[3]] == '{' {
			continue
		}
		return []Diagnostic{{
			Message:  "rate() over an unfiltered selector may match many series; consider adding label filters",
			Severity: Info,
			Position: m[0],
			Category: CategoryCardinality,
		}}
	}
	return nil
}

// checkSyntax runs the upstream parser and reports its first error.
func checkSyntax(q string) []Diagnostic {
	_, err := promparser.ParseExpr(q)
	if err == nil {
		return nil
	}
	d := Diagnostic{
		Message:  err.Error(),
		Severity: Error,
		Position: NoPosition,
		Category: CategorySyntax,
	}
	if perrs, ok := err.(promparser.ParseErrors); ok && len(perrs) > 0 {
		d.Message = perrs[0].Err.Error()
		d.Position = int(perrs[0].PositionRange.Start)
	}
	return []Diagnostic{d}
}
