package repl

import (
	"os"
	"strings"

	"github.com/jjo/promql-assist/pkg/completion"
)

// AutoCompleteOptions controls optional completion behaviors, configurable via env vars.
type AutoCompleteOptions struct {
	LabelNameEquals bool // when completing a label name inside {...}, append '="'
	AutoCloseQuote  bool // when completing a label value, append the closing quote
}

// getEnvBool reads an environment variable and parses it as boolean.
// Accepts 1/0, true/false (case-insensitive). Falls back to defVal when unset/invalid.
func getEnvBool(name string, defVal bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return defVal
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defVal
	}
}

// loadAutoCompleteOptions reads options from environment variables with sane defaults.
func loadAutoCompleteOptions() AutoCompleteOptions {
	return AutoCompleteOptions{
		LabelNameEquals: getEnvBool("PROMQL_ASSIST_COMPLETION_LABEL_EQUALS", true),
		AutoCloseQuote:  getEnvBool("PROMQL_ASSIST_COMPLETION_AUTO_CLOSE_QUOTE", true),
	}
}

// candidate is one completion offered to a line editor: the text that
// replaces the typed prefix and a short description.
type candidate struct {
	Text        string
	Description string
}

// candidates returns the completions for the text before the cursor and the
// byte length of the typed prefix they replace. Lines starting with '.'
// complete dot command names.
func (s *Session) candidates(before string) ([]candidate, int) {
	trimmed := strings.TrimLeft(before, " \t")
	if strings.HasPrefix(trimmed, ".") && !strings.ContainsAny(trimmed, " \t") {
		var out []candidate
		for _, cmd := range Commands {
			if strings.HasPrefix(cmd.Command, trimmed) {
				out = append(out, candidate{Text: cmd.Command, Description: cmd.Description})
			}
		}
		return out, len(trimmed)
	}

	query := before
	if strings.HasPrefix(trimmed, ".") {
		// complete the query argument of a dot command
		_, query, _ = strings.Cut(trimmed, " ")
	}
	ctx, sugg := s.engine.Complete(query, len(query))
	inMatcher := isInsideMatcher(query)
	out := make([]candidate, 0, len(sugg))
	for _, sg := range sugg {
		text := sg.InsertText
		switch sg.Kind {
		case completion.SuggestLabel:
			if inMatcher && s.opts.LabelNameEquals {
				text += `="`
			}
		case completion.SuggestLabelValue:
			if s.opts.AutoCloseQuote {
				text += openQuote(query)
			}
		}
		out = append(out, candidate{Text: text, Description: sg.Detail})
	}
	return out, len(ctx.Prefix)
}

// isInsideMatcher reports whether the last '{' before the end of text is
// still open.
func isInsideMatcher(text string) bool {
	open := strings.LastIndex(text, "{")
	return open >= 0 && open > strings.LastIndex(text, "}")
}

// openQuote returns the quote character of the label value being typed.
func openQuote(text string) string {
	i := strings.LastIndexAny(text, `"'`)
	if i < 0 {
		return `"`
	}
	return text[i : i+1]
}

// readlineCompleter adapts a Session to readline.AutoCompleter.
type readlineCompleter struct {
	s *Session
}

// Do implements the readline.AutoCompleter interface. readline appends the
// returned suffixes after the typed prefix, so only candidates extending the
// prefix are kept.
func (c readlineCompleter) Do(line []rune, pos int) (newLine [][]rune, length int) {
	if pos > len(line) {
		pos = len(line)
	}
	before := string(line[:pos])
	cands, n := c.s.candidates(before)
	typed := before[len(before)-n:]

	uniq := make(map[string]struct{}, len(cands))
	for _, cand := range cands {
		if !strings.HasPrefix(cand.Text, typed) {
			continue
		}
		if _, ok := uniq[cand.Text]; ok {
			continue
		}
		uniq[cand.Text] = struct{}{}
		newLine = append(newLine, []rune(cand.Text[len(typed):]))
	}
	if len(newLine) == 0 {
		return nil, 0
	}
	return newLine, runeLen(typed)
}

// runeLen returns the rune length of a string (readline uses rune positions)
func runeLen(s string) int {
	return len([]rune(s))
}
