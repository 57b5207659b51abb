// Package completion works out what an editor should offer at a cursor
// position inside a PromQL query and ranks the matching catalog entries.
package completion

import (
	"regexp"
)

// Kind is the kind of completion expected at a cursor.
type Kind int

const (
	// KindGeneral expects a function, metric or keyword.
	KindGeneral Kind = iota
	// KindLabelName expects a label name inside a matcher or grouping clause.
	KindLabelName
	// KindLabelValue expects a value inside a quoted matcher literal.
	KindLabelValue
)

func (k Kind) String() string {
	switch k {
	case KindLabelName:
		return "label_name"
	case KindLabelValue:
		return "label_value"
	default:
		return "general"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Context describes the completion expected at a cursor. LabelName is only
// set for KindLabelValue.
type Context struct {
	Kind      Kind   `json:"kind"`
	Prefix    string `json:"prefix"`
	LabelName string `json:"label_name,omitempty"`
}

const (
	labelIdent   = `[A-Za-z_][A-Za-z0-9_]*`
	quotedValue  = `(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')`
	matcherOp    = `(?:=~|!~|!=|=)`
	donePairs    = `(?:\s*` + labelIdent + `\s*` + matcherOp + `\s*` + quotedValue + `\s*,)*`
	bareWordTail = `([A-Za-z0-9_]*)$`
)

var (
	// {pairs..., label="partial  or  {pairs..., label=~'partial
	labelValueRe = regexp.MustCompile(`\{` + donePairs + `\s*(` + labelIdent + `)\s*(?:=~|=)\s*(?:"((?:[^"\\]|\\.)*)|'((?:[^'\\]|\\.)*))$`)
	// {pairs..., partial
	labelNameRe = regexp.MustCompile(`\{` + donePairs + `\s*` + bareWordTail)
	// by (a, b, partial
	groupingRe = regexp.MustCompile(`\b(?:by|without)\s*\(\s*(?:` + labelIdent + `\s*,\s*)*` + bareWordTail)
	// trailing identifier run
	generalRe = regexp.MustCompile(`[A-Za-z0-9_:]*$`)
)

// ResolveContext classifies the completion expected at cursor, a byte offset
// into query. Out of range cursors are clamped. Only the text before the
// cursor is inspected and the first matching rule wins; anything the rules
// do not recognise falls back to KindGeneral.
func ResolveContext(query string, cursor int) Context {
	before := query[:clampCursor(query, cursor)]

	if m := labelValueRe.FindStringSubmatch(before); m != nil {
		prefix := m[2]
		if prefix == "" {
			prefix = m[3]
		}
		return Context{Kind: KindLabelValue, Prefix: prefix, LabelName: m[1]}
	}
	if m := labelNameRe.FindStringSubmatch(before); m != nil {
		return Context{Kind: KindLabelName, Prefix: m[1]}
	}
	if m := groupingRe.FindStringSubmatch(before); m != nil {
		return Context{Kind: KindLabelName, Prefix: m[1]}
	}
	return Context{Kind: KindGeneral, Prefix: generalRe.FindString(before)}
}

// Replacement returns the byte range [start, end) of query that a suggestion
// chosen for ctx replaces: the prefix typed so far, ending at the cursor.
func Replacement(query string, cursor int, ctx Context) (start, end int) {
	end = clampCursor(query, cursor)
	start = end - len(ctx.Prefix)
	if start < 0 {
		start = 0
	}
	return start, end
}

func clampCursor(query string, cursor int) int {
	if cursor < 0 {
		return 0
	}
	if cursor > len(query) {
		return len(query)
	}
	return cursor
}
