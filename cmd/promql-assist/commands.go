package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jjo/promql-assist/pkg/assist"
	"github.com/jjo/promql-assist/pkg/lsp"
	"github.com/jjo/promql-assist/pkg/repl"
	"github.com/jjo/promql-assist/pkg/rules"
	"github.com/jjo/promql-assist/pkg/validate"
)

// queryArg joins the positional arguments into one query so it need not be quoted.
func queryArg(args []string, name string) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return "", fmt.Errorf("%s requires <query>", name)
	}
	return q, nil
}

// cursorFor maps the --cursor flag onto query; negative means the end.
func cursorFor(query string, cursor int) int {
	if cursor < 0 || cursor > len(query) {
		return len(query)
	}
	return cursor
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to render JSON: %w", err)
	}
	return nil
}

func (a *app) tokensCommand() *ffcli.Command {
	fs := flag.NewFlagSet("tokens", flag.ContinueOnError)
	return &ffcli.Command{
		Name:       "tokens",
		ShortUsage: "promql-assist tokens <query>",
		ShortHelp:  "Split a query into classified tokens",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			q, err := queryArg(args, "tokens")
			if err != nil {
				return err
			}
			engine, err := a.setup()
			if err != nil {
				return err
			}
			toks := engine.Tokenize(q)
			if a.flags.json() {
				return a.writeJSON(toks)
			}
			for _, t := range toks {
				fmt.Fprintf(a.stdout, "%-9s %q\n", t.Type, t.Text)
			}
			return nil
		},
	}
}

func (a *app) contextCommand() *ffcli.Command {
	fs := flag.NewFlagSet("context", flag.ContinueOnError)
	cursor := fs.Int("cursor", -1, "byte offset of the cursor (default: end of query)")
	return &ffcli.Command{
		Name:       "context",
		ShortUsage: "promql-assist context [--cursor N] <query>",
		ShortHelp:  "Show the completion context at the cursor",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			q, err := queryArg(args, "context")
			if err != nil {
				return err
			}
			engine, err := a.setup()
			if err != nil {
				return err
			}
			c := engine.Context(q, cursorFor(q, *cursor))
			if a.flags.json() {
				return a.writeJSON(c)
			}
			fmt.Fprintf(a.stdout, "kind=%s prefix=%q label=%q\n", c.Kind, c.Prefix, c.LabelName)
			return nil
		},
	}
}

func (a *app) completeCommand() *ffcli.Command {
	fs := flag.NewFlagSet("complete", flag.ContinueOnError)
	cursor := fs.Int("cursor", -1, "byte offset of the cursor (default: end of query)")
	return &ffcli.Command{
		Name:       "complete",
		ShortUsage: "promql-assist complete [--cursor N] <query>",
		ShortHelp:  "List ranked completions at the cursor",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			q, err := queryArg(args, "complete")
			if err != nil {
				return err
			}
			engine, err := a.setup()
			if err != nil {
				return err
			}
			c, suggestions := engine.Complete(q, cursorFor(q, *cursor))
			a.logger.Debug("complete", zap.Stringer("kind", c.Kind), zap.String("prefix", c.Prefix))
			if a.flags.json() {
				return a.writeJSON(struct {
					Context     any `json:"context"`
					Suggestions any `json:"suggestions"`
				}{c, suggestions})
			}
			for _, s := range suggestions {
				fmt.Fprintf(a.stdout, "%-12s %-40s %s\n", s.Kind, s.Text, s.Detail)
			}
			return nil
		},
	}
}

// readQueries reads one query per line from path ("-" is stdin), skipping
// blank lines and '#' comments.
func (a *app) readQueries(path string) ([]string, error) {
	var r io.Reader = a.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open query file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var queries []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	return queries, nil
}

// checkReport is the JSON form of one checked query.
type checkReport struct {
	Query       string          `json:"query"`
	Rule        string          `json:"rule,omitempty"`
	File        string          `json:"file,omitempty"`
	Diagnostics validate.Result `json:"diagnostics"`
}

func (a *app) checkCommand() *ffcli.Command {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	file := fs.String("file", "", "file containing PromQL expressions (one per line, - for stdin)")
	fs.StringVar(file, "f", "", "shorthand for --file")
	rulesSpec := fs.String("rules", "", "also check every rule expression in a rule file, directory or glob")
	jobs := fs.Int("jobs", 0, "queries validated concurrently (default GOMAXPROCS)")
	return &ffcli.Command{
		Name:       "check",
		ShortUsage: "promql-assist check [--file F] [--rules R] [<query>]",
		ShortHelp:  "Lint queries; exits non-zero when any query has errors",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			var reports []checkReport
			if *file != "" {
				qs, err := a.readQueries(*file)
				if err != nil {
					return err
				}
				for _, q := range qs {
					reports = append(reports, checkReport{Query: q})
				}
			}
			if q := strings.TrimSpace(strings.Join(args, " ")); q != "" {
				reports = append(reports, checkReport{Query: q})
			}

			engine, err := a.setup(assist.WithCheckLimit(*jobs))
			if err != nil {
				return err
			}

			var ruleErrs []error
			if *rulesSpec != "" {
				rs, err := rules.LoadSpec(*rulesSpec)
				if err != nil && len(rs) == 0 {
					return fmt.Errorf("failed to load rules: %w", err)
				}
				ruleErrs = multierr.Errors(err)
				for _, r := range rs {
					reports = append(reports, checkReport{Query: r.Expr, Rule: r.String(), File: r.File})
				}
			}
			if len(reports) == 0 {
				return fmt.Errorf("check requires <query>, --file or --rules")
			}

			queries := make([]string, len(reports))
			for i, r := range reports {
				queries[i] = r.Query
			}
			results, err := assist.CheckAll(ctx, engine, queries)
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}

			failed := 0
			for i, res := range results {
				if res.HasErrors() {
					failed++
				}
				reports[i].Diagnostics = res
			}
			a.logger.Info("check finished", zap.Int("queries", len(queries)), zap.Int("failed", failed))

			if a.flags.json() {
				if err := a.writeJSON(reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					subject := r.Query
					if r.Rule != "" {
						subject = fmt.Sprintf("%s (%s): %s", r.Rule, r.File, r.Query)
					}
					all := r.Diagnostics.All()
					if len(all) == 0 {
						fmt.Fprintf(a.stdout, "OK    %s\n", subject)
						continue
					}
					status := "WARN "
					if r.Diagnostics.HasErrors() {
						status = "FAIL "
					}
					fmt.Fprintf(a.stdout, "%s %s\n", status, subject)
					for _, d := range all {
						fmt.Fprintf(a.stdout, "  %s\n", d)
					}
				}
			}
			for _, e := range ruleErrs {
				fmt.Fprintf(a.stderr, "rules: %v\n", e)
			}
			if failed > 0 || len(ruleErrs) > 0 {
				fmt.Fprintf(a.stderr, "%d of %d queries have errors\n", failed, len(queries))
				return errCheckFailed
			}
			return nil
		},
	}
}

func (a *app) hintCommand() *ffcli.Command {
	fs := flag.NewFlagSet("hint", flag.ContinueOnError)
	cursor := fs.Int("cursor", -1, "byte offset of the cursor (default: end of query)")
	return &ffcli.Command{
		Name:       "hint",
		ShortUsage: "promql-assist hint [--cursor N] <query>",
		ShortHelp:  "Show the signature of the function call enclosing the cursor",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			q, err := queryArg(args, "hint")
			if err != nil {
				return err
			}
			engine, err := a.setup()
			if err != nil {
				return err
			}
			h := engine.Hint(q, cursorFor(q, *cursor))
			if a.flags.json() {
				return a.writeJSON(h)
			}
			if h == nil {
				fmt.Fprintln(a.stdout, "No enclosing function call")
				return nil
			}
			fmt.Fprintln(a.stdout, h.Signature.Signature)
			if h.Signature.Description != "" {
				fmt.Fprintf(a.stdout, "  %s\n", h.Signature.Description)
			}
			if name := h.ActiveParamName(); name != "" {
				fmt.Fprintf(a.stdout, "  argument %d: %s\n", h.ActiveParamIndex+1, name)
			}
			return nil
		},
	}
}

func (a *app) fmtCommand() *ffcli.Command {
	fs := flag.NewFlagSet("fmt", flag.ContinueOnError)
	file := fs.String("file", "", "file containing PromQL expressions (one per line, - for stdin)")
	fs.StringVar(file, "f", "", "shorthand for --file")
	return &ffcli.Command{
		Name:       "fmt",
		ShortUsage: "promql-assist fmt [--file F] [<query>]",
		ShortHelp:  "Prettify queries",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			var queries []string
			if *file != "" {
				qs, err := a.readQueries(*file)
				if err != nil {
					return err
				}
				queries = qs
			}
			if q := strings.TrimSpace(strings.Join(args, " ")); q != "" {
				queries = append(queries, q)
			}
			if len(queries) == 0 {
				return fmt.Errorf("fmt requires <query> or --file")
			}
			engine, err := a.setup()
			if err != nil {
				return err
			}
			pretty := make([]string, len(queries))
			for i, q := range queries {
				pretty[i] = engine.Prettify(q)
			}
			if a.flags.json() {
				return a.writeJSON(pretty)
			}
			fmt.Fprintln(a.stdout, strings.Join(pretty, "\n\n"))
			return nil
		},
	}
}

func (a *app) replCommand() *ffcli.Command {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	history := fs.String("history", "", "history file (default ~/.promql-assist_history or PROMQL_ASSIST_HISTORY)")
	return &ffcli.Command{
		Name:       "repl",
		ShortUsage: "promql-assist [--repl=prompt|readline] repl",
		ShortHelp:  "Interactive session; reads line by line when stdin is not a terminal",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			engine, err := a.setup()
			if err != nil {
				return err
			}
			opts := []repl.SessionOption{repl.WithLogger(a.logger)}
			if *history != "" {
				opts = append(opts, repl.WithHistoryFile(*history))
			}
			if a.flags.json() {
				opts = append(opts, repl.WithJSONOutput())
			}
			session := repl.NewSession(engine, a.stdout, opts...)
			return session.Run(a.stdin, a.flags.replBackend, a.flags.silent)
		},
	}
}

func (a *app) lspCommand() *ffcli.Command {
	fs := flag.NewFlagSet("lsp", flag.ContinueOnError)
	return &ffcli.Command{
		Name:       "lsp",
		ShortUsage: "promql-assist lsp",
		ShortHelp:  "Run the language server on stdin/stdout",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			engine, err := a.setup()
			if err != nil {
				return err
			}
			a.logger.Info("Starting promql-assist language server", zap.String("version", version))
			return lsp.Serve(ctx, a.stdin, a.stdout, a.logger, engine, version)
		},
	}
}

func (a *app) catalogCommand() *ffcli.Command {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	return &ffcli.Command{
		Name:       "catalog",
		ShortUsage: "promql-assist catalog [functions|metrics|labels|keywords|operators|values <label>|dump]",
		ShortHelp:  "Inspect the effective catalog",
		LongHelp:   "Without arguments prints a summary. dump writes the catalog as YAML (JSON with -o json), usable as a --catalog file.",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			engine, err := a.setup()
			if err != nil {
				return err
			}
			cat := engine.Catalog()

			what := "summary"
			if len(args) > 0 {
				what = args[0]
			}
			var names []string
			switch what {
			case "summary":
				summary := map[string]int{
					"functions": len(cat.FunctionNames()),
					"metrics":   len(cat.MetricNames()),
					"labels":    len(cat.LabelNames()),
					"keywords":  len(cat.Keywords()),
				}
				if a.flags.json() {
					return a.writeJSON(summary)
				}
				fmt.Fprintf(a.stdout, "%d functions, %d metrics, %d labels, %d keywords\n",
					summary["functions"], summary["metrics"], summary["labels"], summary["keywords"])
				return nil
			case "dump":
				if a.flags.json() {
					return a.writeJSON(cat.Spec())
				}
				enc := yaml.NewEncoder(a.stdout)
				enc.SetIndent(2)
				if err := enc.Encode(cat.Spec()); err != nil {
					return fmt.Errorf("failed to render YAML: %w", err)
				}
				return enc.Close()
			case "functions":
				names = cat.FunctionNames()
			case "metrics":
				names = cat.MetricNames()
			case "labels":
				names = cat.LabelNames()
			case "keywords":
				names = cat.Keywords()
			case "operators":
				names = cat.Operators()
			case "values":
				if len(args) != 2 {
					return fmt.Errorf("catalog values requires <label>")
				}
				names = cat.LabelValues(args[1])
			default:
				return fmt.Errorf("unknown catalog section %q", what)
			}
			if a.flags.json() {
				if names == nil {
					names = []string{}
				}
				return a.writeJSON(names)
			}
			for _, n := range names {
				fmt.Fprintln(a.stdout, n)
			}
			return nil
		},
	}
}

func (a *app) versionCommand() *ffcli.Command {
	return &ffcli.Command{
		Name:      "version",
		ShortHelp: "Print version information",
		Exec: func(ctx context.Context, _ []string) error {
			printVersion(a.stdout)
			return nil
		},
	}
}
