// Package hint finds the function call enclosing a cursor and the argument
// being typed, for signature help.
package hint

import "github.com/jjo/promql-assist/pkg/catalog"

// FunctionHint names the call surrounding the cursor.
type FunctionHint struct {
	FunctionName     string        `json:"function"`
	ActiveParamIndex int           `json:"active_param"`
	Signature        catalog.Entry `json:"signature"`
}

// ActiveParamName returns the name of the active parameter, or "" when the
// index is past the declared parameters.
func (h *FunctionHint) ActiveParamName() string {
	if h == nil || h.ActiveParamIndex < 0 || h.ActiveParamIndex >= len(h.Signature.ParamNames) {
		return ""
	}
	return h.Signature.ParamNames[h.ActiveParamIndex]
}

// HintAt scans backwards from cursor (clamped into the query) to the nearest
// unmatched '(' and returns the catalog function called there, with the
// number of top-level commas seen as the active parameter index. It returns
// nil when the cursor is not inside a call of a known function. Only
// parentheses affect nesting, so commas inside braces or brackets of the
// current call are counted too. A nil catalog means catalog.Default().
func HintAt(query string, cursor int, cat *catalog.Catalog) *FunctionHint {
	if cat == nil {
		cat = catalog.Default()
	}
	if cursor > len(query) {
		cursor = len(query)
	}

	depth, commas := 0, 0
	for i := cursor - 1; i >= 0; i-- {
		switch query[i] {
		case ')':
			depth++
		case '(':
			if depth > 0 {
				depth--
				continue
			}
			name := identBefore(query, i)
			e, ok := cat.Function(name)
			if !ok {
				return nil
			}
			return &FunctionHint{FunctionName: name, ActiveParamIndex: commas, Signature: e}
		case ',':
			if depth == 0 {
				commas++
			}
		}
	}
	return nil
}

// identBefore returns the identifier ending just before pos, skipping
// spaces and tabs.
func identBefore(s string, pos int) string {
	end := pos
	for end > 0 && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	start := end
	for start > 0 && isIdentByte(s[start-1]) {
		start--
	}
	return s[start:end]
}

func isIdentByte(c byte) bool {
	return c == '_' || c == ':' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
