// Package prettify reformats PromQL text with a fixed sequence of rewrites.
// It works on the raw text and does not parse the query.
package prettify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jjo/promql-assist/pkg/lexer"
)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// Applied in order after trimming.
var rewrites = []rewrite{
	// one space around arithmetic operators
	{regexp.MustCompile(`\s*([+\-*/%^])\s*`), " $1 "},
	// one space around comparison and regex match operators
	{regexp.MustCompile(`\s*(==|!=|>=|<=|=~|!~|>|<)\s*`), " $1 "},
	// grouping clause after a closing paren goes on its own line
	{regexp.MustCompile(`\)\s*\b(by|without)\s*\(`), ")\n  $1 ("},
	// aggregation body starts on a new indented line
	{regexp.MustCompile(`\b(sum|avg|min|max|count|stddev|topk|bottomk|quantile)\s*\(\s*`), "$1(\n  "},
	// collapse space runs, but not leading indentation
	{regexp.MustCompile(`(\S) {2,}`), "$1 "},
	{regexp.MustCompile(`[ \t]+,`), ","},
}

// Option configures a Prettifier.
type Option func(*Prettifier)

// PreserveStrings keeps quoted literals untouched by the rewrites.
func PreserveStrings() Option {
	return func(p *Prettifier) { p.preserveStrings = true }
}

// Prettifier formats queries. It is safe for concurrent use.
type Prettifier struct {
	preserveStrings bool
}

// New returns a Prettifier configured with opts.
func New(opts ...Option) *Prettifier {
	p := &Prettifier{}
	for _, o := range opts {
		o(p)
	}
	return p
}

var defaultPrettifier = New()

// Prettify formats query with the default settings, in which operator
// spacing is applied inside string literals too.
func Prettify(query string) string {
	return defaultPrettifier.Prettify(query)
}

// Prettify formats query. Empty or whitespace-only input returns "".
func (p *Prettifier) Prettify(query string) string {
	s := strings.TrimSpace(query)
	if s == "" {
		return s
	}

	var restore *strings.Replacer
	if p.preserveStrings {
		s, restore = maskStrings(s)
	}

	for _, rw := range rewrites {
		s = rw.re.ReplaceAllString(s, rw.repl)
	}

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")

	if restore != nil {
		s = restore.Replace(s)
	}
	return s
}

// maskStrings swaps every string literal for an opaque placeholder that the
// rewrites leave alone, and returns a replacer that puts them back.
func maskStrings(s string) (string, *strings.Replacer) {
	var (
		b     strings.Builder
		pairs []string
	)
	for _, tok := range lexer.Tokenize(s, nil) {
		if tok.Type != lexer.String {
			b.WriteString(tok.Text)
			continue
		}
		ph := fmt.Sprintf("\uE000%d\uE001", len(pairs)/2)
		pairs = append(pairs, ph, tok.Text)
		b.WriteString(ph)
	}
	return b.String(), strings.NewReplacer(pairs...)
}
