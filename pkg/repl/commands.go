package repl

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jjo/promql-assist/pkg/catalog"
	"github.com/jjo/promql-assist/pkg/completion"
	"github.com/jjo/promql-assist/pkg/rules"
)

// Command represents a dot command with its description
type Command struct {
	Command     string
	Description string
	Usage       string
	Examples    []string
	handler     func(s *Session, args string)
}

// Commands is the list of all dot commands. It drives both .help and
// completion.
var Commands []Command

func init() {
	Commands = []Command{
		{
			Command:     ".help",
			Description: "Show usage for dot commands",
			Usage:       ".help",
			handler:     func(s *Session, _ string) { s.printHelp() },
		},
		{
			Command:     ".tokens",
			Description: "Show the tokens of a query",
			Usage:       ".tokens <query>",
			Examples:    []string{`.tokens rate(http_requests_total{code="200"}[5m])`},
			handler:     (*Session).cmdTokens,
		},
		{
			Command:     ".fmt",
			Description: "Format a query",
			Usage:       ".fmt <query>",
			Examples:    []string{".fmt sum(rate(foo[5m]))by(le)"},
			handler:     (*Session).cmdFmt,
		},
		{
			Command:     ".check",
			Description: "Validate a query and list its diagnostics",
			Usage:       ".check <query>",
			Examples:    []string{".check rate(foo)"},
			handler:     (*Session).cmdCheck,
		},
		{
			Command:     ".hint",
			Description: "Show the signature of the call enclosing the end of the query",
			Usage:       ".hint <partial query>",
			Examples:    []string{".hint histogram_quantile(0.9, "},
			handler:     (*Session).cmdHint,
		},
		{
			Command:     ".context",
			Description: "Show the completion context and suggestions at the end of the query",
			Usage:       ".context <partial query>",
			Examples:    []string{`.context foo{environment="pro`},
			handler:     (*Session).cmdContext,
		},
		{
			Command:     ".catalog",
			Description: "List catalog functions, metrics, labels or the values of a label",
			Usage:       ".catalog [functions|metrics|labels|values <label>]",
			Examples:    []string{".catalog metrics", ".catalog values environment"},
			handler:     (*Session).cmdCatalog,
		},
		{
			Command:     ".load",
			Description: "Merge a catalog file (YAML or Prometheus text format) into the session catalog",
			Usage:       ".load <file>",
			Examples:    []string{".load metrics.prom", ".load catalog.yaml"},
			handler:     (*Session).cmdLoad,
		},
		{
			Command:     ".rules",
			Description: "Load rule files, add their names to the catalog and check their expressions; without args list loaded rules",
			Usage:       ".rules [<file|dir|glob>]",
			Examples:    []string{".rules ./rules/", ".rules 'alerts/*.yaml'"},
			handler:     (*Session).cmdRules,
		},
		{
			Command:     ".history",
			Description: "Show the last N entered lines",
			Usage:       ".history [N]",
			handler:     (*Session).cmdHistory,
		},
		{
			Command:     ".quit",
			Description: "Exit the session",
			Usage:       ".quit",
		},
	}
}

// GetCommandNames returns the names of all dot commands.
func GetCommandNames() []string {
	names := make([]string, 0, len(Commands))
	for _, cmd := range Commands {
		names = append(names, cmd.Command)
	}
	return names
}

// GetCommandByName returns the command with the given name, or nil.
func GetCommandByName(name string) *Command {
	for i := range Commands {
		if Commands[i].Command == name {
			return &Commands[i]
		}
	}
	return nil
}

// handleCommand runs a dot command line and reports whether it was known.
func (s *Session) handleCommand(line string) bool {
	name, args, _ := strings.Cut(line, " ")
	cmd := GetCommandByName(name)
	if cmd == nil || cmd.handler == nil {
		return false
	}
	cmd.handler(s, strings.TrimSpace(args))
	return true
}

func (s *Session) printHelp() {
	fmt.Fprintln(s.out, "\nDot commands:")
	for _, cmd := range Commands {
		fmt.Fprintf(s.out, "  %s\n", cmd.Usage)
		fmt.Fprintf(s.out, "    %s\n", cmd.Description)
		if len(cmd.Examples) > 0 {
			if len(cmd.Examples) == 1 {
				fmt.Fprintf(s.out, "    Example: %s\n", cmd.Examples[0])
			} else {
				fmt.Fprintln(s.out, "    Examples:")
				for _, ex := range cmd.Examples {
					fmt.Fprintf(s.out, "      %s\n", ex)
				}
			}
		}
	}
	fmt.Fprintln(s.out, "\nAny other line is validated and formatted as a PromQL query.")
	fmt.Fprintln(s.out)
}

func (s *Session) usage(name string) {
	if cmd := GetCommandByName(name); cmd != nil {
		fmt.Fprintf(s.out, "Usage: %s\n", cmd.Usage)
	}
}

func (s *Session) cmdTokens(q string) {
	if q == "" {
		s.usage(".tokens")
		return
	}
	toks := s.engine.Tokenize(q)
	if s.jsonOutput {
		s.printJSON(toks)
		return
	}
	for _, t := range toks {
		fmt.Fprintf(s.out, "%-9s %q\n", t.Type, t.Text)
	}
}

func (s *Session) cmdFmt(q string) {
	if q == "" {
		s.usage(".fmt")
		return
	}
	fmt.Fprintln(s.out, s.engine.Prettify(q))
}

func (s *Session) cmdCheck(q string) {
	if q == "" {
		s.usage(".check")
		return
	}
	res := s.engine.Validate(q)
	if s.jsonOutput {
		s.printJSON(res)
		return
	}
	s.printDiagnostics(res)
}

func (s *Session) cmdHint(q string) {
	if q == "" {
		s.usage(".hint")
		return
	}
	h := s.engine.Hint(q, len(q))
	if s.jsonOutput {
		s.printJSON(h)
		return
	}
	if h == nil {
		fmt.Fprintln(s.out, "No enclosing function call")
		return
	}
	fmt.Fprintln(s.out, h.Signature.Signature)
	if h.Signature.Description != "" {
		fmt.Fprintf(s.out, "  %s\n", h.Signature.Description)
	}
	if name := h.ActiveParamName(); name != "" {
		fmt.Fprintf(s.out, "  argument %d: %s\n", h.ActiveParamIndex+1, name)
	} else {
		fmt.Fprintf(s.out, "  argument %d\n", h.ActiveParamIndex+1)
	}
}

func (s *Session) cmdContext(q string) {
	ctx, sugg := s.engine.Complete(q, len(q))
	if s.jsonOutput {
		s.printJSON(struct {
			Context     completion.Context      `json:"context"`
			Suggestions []completion.Suggestion `json:"suggestions"`
		}{ctx, sugg})
		return
	}
	fmt.Fprintf(s.out, "kind=%s prefix=%q", ctx.Kind, ctx.Prefix)
	if ctx.LabelName != "" {
		fmt.Fprintf(s.out, " label=%q", ctx.LabelName)
	}
	fmt.Fprintln(s.out)
	for _, sg := range sugg {
		fmt.Fprintf(s.out, "  %-30s %-11s %s\n", sg.Text, sg.Kind, sg.Detail)
	}
}

func (s *Session) cmdCatalog(args string) {
	cat := s.engine.Catalog()
	fields := strings.Fields(args)
	what := "summary"
	if len(fields) > 0 {
		what = fields[0]
	}
	switch what {
	case "summary":
		fmt.Fprintf(s.out, "functions=%d keywords=%d metrics=%d labels=%d\n",
			len(cat.FunctionNames()), len(cat.Keywords()), len(cat.MetricNames()), len(cat.LabelNames()))
	case "functions":
		for _, name := range cat.FunctionNames() {
			e, _ := cat.Function(name)
			fmt.Fprintf(s.out, "%s\n", e.Signature)
		}
	case "metrics":
		for _, name := range cat.MetricNames() {
			if help := cat.MetricHelp(name); help != "" {
				fmt.Fprintf(s.out, "%s - %s\n", name, help)
			} else {
				fmt.Fprintln(s.out, name)
			}
		}
	case "labels":
		for _, name := range cat.LabelNames() {
			fmt.Fprintln(s.out, name)
		}
	case "values":
		if len(fields) != 2 {
			s.usage(".catalog")
			return
		}
		vals := cat.LabelValues(fields[1])
		if len(vals) == 0 {
			fmt.Fprintf(s.out, "No known values for label %q\n", fields[1])
			return
		}
		for _, v := range vals {
			fmt.Fprintln(s.out, v)
		}
	default:
		s.usage(".catalog")
	}
}

func (s *Session) cmdLoad(args string) {
	path := strings.Trim(args, `"'`)
	if path == "" {
		s.usage(".load")
		return
	}
	spec, err := catalog.LoadFile(path)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	loaded := catalog.New(spec)
	s.engine = s.engine.WithCatalog(catalog.Merge(s.engine.Catalog(), loaded))
	s.logger.Debug("catalog merged",
		zap.String("path", path),
		zap.Int("metrics", len(loaded.MetricNames())),
		zap.Int("labels", len(loaded.LabelNames())))
	fmt.Fprintf(s.out, "Loaded %s: %d metrics, %d labels, %d functions\n",
		path, len(loaded.MetricNames()), len(loaded.LabelNames()), len(loaded.FunctionNames()))
}

func (s *Session) cmdRules(args string) {
	spec := strings.Trim(args, `"'`)
	if spec == "" {
		if len(s.rules) == 0 {
			fmt.Fprintln(s.out, "No rules loaded")
			return
		}
		for _, r := range s.rules {
			fmt.Fprintf(s.out, "%s: %s\n", r, r.Expr)
		}
		return
	}
	rs, err := rules.LoadSpec(spec)
	for _, e := range multierr.Errors(err) {
		fmt.Fprintf(s.out, "Error: %v\n", e)
	}
	if len(rs) == 0 {
		return
	}
	s.rules = append(s.rules, rs...)
	s.engine = s.engine.WithCatalog(rules.Merge(s.engine.Catalog(), rs))
	s.logger.Debug("rules merged", zap.String("spec", spec), zap.Int("rules", len(rs)))

	failed := 0
	for _, r := range rs {
		res := s.engine.Validate(r.Expr)
		if len(res.All()) == 0 {
			continue
		}
		if res.HasErrors() {
			failed++
		}
		fmt.Fprintf(s.out, "%s:\n", r)
		for _, d := range res.All() {
			fmt.Fprintf(s.out, "  %s\n", d)
		}
	}
	fmt.Fprintf(s.out, "Loaded %d rules from %s (%d with errors)\n", len(rs), spec, failed)
}

func (s *Session) cmdHistory(args string) {
	n := -1
	if args != "" {
		v, err := strconv.Atoi(args)
		if err != nil || v <= 0 {
			s.usage(".history")
			return
		}
		n = v
	}
	entries := s.history
	if len(entries) == 0 {
		entries = loadHistoryFromFile(s.historyPath)
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "No history available")
		return
	}
	start := 0
	if n > 0 && n < len(entries) {
		start = len(entries) - n
	}
	for i := start; i < len(entries); i++ {
		fmt.Fprintln(s.out, entries[i])
	}
}
