// Package lexer splits PromQL text into classified tokens for highlighting
// and inspection. Tokenizing never fails: concatenating the token texts
// always reproduces the input.
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jjo/promql-assist/pkg/catalog"
)

// TokenType classifies a token.
type TokenType int

const (
	Plain TokenType = iota
	Function
	Metric
	Label
	String
	Number
	Operator
	Keyword
	Bracket
	Duration
	Error
)

var tokenTypeNames = [...]string{
	Plain:    "plain",
	Function: "function",
	Metric:   "metric",
	Label:    "label",
	String:   "string",
	Number:   "number",
	Operator: "operator",
	Keyword:  "keyword",
	Bracket:  "bracket",
	Duration: "duration",
	Error:    "error",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenTypeNames) {
		return tokenTypeNames[t]
	}
	return "unknown"
}

// MarshalText renders the type by name (used by JSON output).
func (t TokenType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Token is a slice of the input with its classification.
type Token struct {
	Text string    `json:"text"`
	Type TokenType `json:"type"`
}

const durationSuffixes = "smhdwy"

// Tokenizer classifies identifiers against a catalog.
type Tokenizer struct {
	cat *catalog.Catalog
}

// New returns a Tokenizer bound to cat; nil means the default catalog.
func New(cat *catalog.Catalog) *Tokenizer {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Tokenizer{cat: cat}
}

// Tokenize is shorthand for New(cat).Tokenize(query).
func Tokenize(query string, cat *catalog.Catalog) []Token {
	return New(cat).Tokenize(query)
}

// Tokenize scans query left to right and returns its tokens in order.
func (tz *Tokenizer) Tokenize(query string) []Token {
	var tokens []Token
	pos := 0
	for pos < len(query) {
		end, typ := tz.next(query, pos)
		tokens = append(tokens, Token{Text: query[pos:end], Type: typ})
		pos = end
	}
	return tokens
}

// next returns the end offset and type of the token starting at pos.
// The returned end is always greater than pos.
func (tz *Tokenizer) next(s string, pos int) (int, TokenType) {
	r, width := utf8.DecodeRuneInString(s[pos:])
	c := s[pos]

	switch {
	case isSpace(r):
		end := pos + width
		for end < len(s) {
			r2, w2 := utf8.DecodeRuneInString(s[end:])
			if !isSpace(r2) {
				break
			}
			end += w2
		}
		return end, Plain

	case c == '"' || c == '\'':
		return scanString(s, pos), String

	case isDigit(c):
		end := pos
		seenDot := false
		for end < len(s) {
			if isDigit(s[end]) {
				end++
				continue
			}
			if s[end] == '.' && !seenDot {
				seenDot = true
				end++
				continue
			}
			break
		}
		if end < len(s) && strings.IndexByte(durationSuffixes, s[end]) >= 0 {
			return end + 1, Duration
		}
		return end, Number

	case strings.IndexByte("()[]{}", c) >= 0:
		return pos + 1, Bracket

	case strings.IndexByte("+-*/%^", c) >= 0:
		return pos + 1, Operator

	case strings.IndexByte("=!><", c) >= 0:
		if pos+1 < len(s) && (s[pos+1] == '=' || s[pos+1] == '~') {
			return pos + 2, Operator
		}
		return pos + 1, Operator

	case c == ',':
		return pos + 1, Plain

	case isIdentRune(r):
		end := pos + width
		for end < len(s) {
			r2, w2 := utf8.DecodeRuneInString(s[end:])
			if !isIdentRune(r2) {
				break
			}
			end += w2
		}
		return end, tz.classify(s[pos:end])
	}

	return pos + width, Plain
}

// classify resolves an identifier by catalog lookup.
func (tz *Tokenizer) classify(word string) TokenType {
	switch {
	case tz.cat.IsFunction(word):
		return Function
	case tz.cat.IsKeyword(word):
		return Keyword
	case tz.cat.IsMetric(word):
		return Metric
	case tz.cat.IsLabel(word):
		return Label
	default:
		return Plain
	}
}

// scanString returns the offset just past the string literal starting at
// pos, or len(s) when the literal is unterminated. A backslash escapes the
// next byte.
func scanString(s string, pos int) int {
	quote := s[pos]
	i := pos + 1
	for i < len(s) {
		switch s[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1
		}
		i++
	}
	return len(s)
}

// Join concatenates token texts, inverting Tokenize.
func Join(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

func isSpace(r rune) bool { return unicode.IsSpace(r) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentRune(r rune) bool {
	return r == '_' || r == ':' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
