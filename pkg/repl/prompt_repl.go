//go:build prompt

package repl

import (
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"go.uber.org/zap"
)

// promptCompleter provides completions for go-prompt
func (s *Session) promptCompleter(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	if strings.TrimSpace(before) == "" {
		return []prompt.Suggest{}
	}
	cands, _ := s.candidates(before)
	out := make([]prompt.Suggest, 0, len(cands))
	for _, c := range cands {
		out = append(out, prompt.Suggest{Text: c.Text, Description: c.Description})
	}
	return out
}

// runPrompt runs the go-prompt based REPL
func (s *Session) runPrompt(silent bool) error {
	if !silent {
		s.printBanner()
	}

	history := loadHistoryFromFile(s.historyPath)
	quit := false
	executor := func(in string) {
		in = strings.TrimSpace(in)
		if in == "" {
			return
		}
		if err := appendToHistoryFile(s.historyPath, in); err != nil {
			s.logger.Debug("failed to append history", zap.Error(err))
		}
		quit = s.ExecuteOne(in)
	}

	opts := []prompt.Option{
		prompt.OptionPrefix("promql> "),
		prompt.OptionTitle("promql-assist"),
		prompt.OptionPrefixTextColor(prompt.Blue),
		prompt.OptionHistory(history),
		prompt.OptionPreviewSuggestionTextColor(prompt.DarkGray),
		prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
		prompt.OptionSuggestionBGColor(prompt.DarkGray),
		prompt.OptionDescriptionBGColor(prompt.DarkGray),
		prompt.OptionDescriptionTextColor(prompt.White),
		prompt.OptionMaxSuggestion(20),
		prompt.OptionCompletionWordSeparator(PromQLSeparators),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && quit
		}),
	}
	if getEnvBool("PROMQL_ASSIST_EAGER_COMPLETION", false) {
		opts = append(opts, prompt.OptionShowCompletionAtStart())
	}

	p := prompt.New(executor, s.promptCompleter, opts...)
	p.Run()
	if !silent {
		fmt.Fprintln(os.Stderr, "Exiting...")
	}
	return nil
}
