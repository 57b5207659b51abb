package completion

import (
	"sort"
	"strings"

	"github.com/jjo/promql-assist/pkg/catalog"
)

// SuggestionKind classifies a suggestion. The declaration order is the
// ranking priority.
type SuggestionKind int

const (
	SuggestFunction SuggestionKind = iota
	SuggestMetric
	SuggestKeyword
	SuggestLabel
	SuggestLabelValue
)

func (k SuggestionKind) String() string {
	switch k {
	case SuggestFunction:
		return "function"
	case SuggestMetric:
		return "metric"
	case SuggestKeyword:
		return "keyword"
	case SuggestLabel:
		return "label"
	case SuggestLabelValue:
		return "label_value"
	}
	return "unknown"
}

func (k SuggestionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Suggestion is one completion candidate. InsertText is what gets inserted
// and is never empty.
type Suggestion struct {
	Text       string         `json:"text"`
	Kind       SuggestionKind `json:"kind"`
	Detail     string         `json:"detail,omitempty"`
	InsertText string         `json:"insert_text"`
}

const (
	// MaxGeneralSuggestions caps the list for KindGeneral.
	MaxGeneralSuggestions = 20
	// MaxLabelSuggestions caps the list for label names and values.
	MaxLabelSuggestions = 15
)

// Suggest returns the ranked candidates for ctx. Candidates whose text
// contains the prefix (case-insensitively) are kept; those starting with it
// rank first, then by kind. A nil catalog means catalog.Default().
func Suggest(ctx Context, cat *catalog.Catalog) []Suggestion {
	if cat == nil {
		cat = catalog.Default()
	}
	prefix := strings.ToLower(ctx.Prefix)

	var (
		out   []Suggestion
		limit int
	)
	keep := func(text string) bool {
		return strings.Contains(strings.ToLower(text), prefix)
	}

	switch ctx.Kind {
	case KindLabelValue:
		limit = MaxLabelSuggestions
		for _, v := range cat.LabelValues(ctx.LabelName) {
			if keep(v) {
				out = append(out, Suggestion{Text: v, Kind: SuggestLabelValue, Detail: ctx.LabelName, InsertText: v})
			}
		}
	case KindLabelName:
		limit = MaxLabelSuggestions
		for _, l := range cat.LabelNames() {
			if keep(l) {
				out = append(out, Suggestion{Text: l, Kind: SuggestLabel, Detail: "label", InsertText: l})
			}
		}
	default:
		limit = MaxGeneralSuggestions
		for _, name := range cat.FunctionNames() {
			if !keep(name) {
				continue
			}
			e, _ := cat.Function(name)
			out = append(out, Suggestion{Text: name, Kind: SuggestFunction, Detail: e.Signature, InsertText: name + "("})
		}
		for _, name := range cat.MetricNames() {
			if !keep(name) {
				continue
			}
			detail := cat.MetricHelp(name)
			if detail == "" {
				detail = "metric"
			}
			out = append(out, Suggestion{Text: name, Kind: SuggestMetric, Detail: detail, InsertText: name})
		}
		for _, kw := range cat.Keywords() {
			if keep(kw) {
				out = append(out, Suggestion{Text: kw, Kind: SuggestKeyword, Detail: "keyword", InsertText: kw})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi := strings.HasPrefix(strings.ToLower(out[i].Text), prefix)
		pj := strings.HasPrefix(strings.ToLower(out[j].Text), prefix)
		if pi != pj {
			return pi
		}
		return out[i].Kind < out[j].Kind
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Complete resolves the context at cursor and returns it with its ranked
// suggestions.
func Complete(query string, cursor int, cat *catalog.Catalog) (Context, []Suggestion) {
	ctx := ResolveContext(query, cursor)
	return ctx, Suggest(ctx, cat)
}
