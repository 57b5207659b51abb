package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	promparser "github.com/prometheus/prometheus/promql/parser"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jjo/promql-assist/pkg/assist"
	"github.com/jjo/promql-assist/pkg/catalog"
	"github.com/jjo/promql-assist/pkg/prettify"
	"github.com/jjo/promql-assist/pkg/rules"
	"github.com/jjo/promql-assist/pkg/validate"
)

// Version info. Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	// Enable experimental PromQL functions (equivalent to --enable-feature=promql-experimental-functions)
	promparser.EnableExperimentalFunctions = true
}

// errCheckFailed is returned by check when a query has errors. The findings
// were already printed, so main only sets the exit status.
var errCheckFailed = errors.New("check failed")

// normalizeLongOpts converts GNU-style "--long" options to stdlib-flag style "-long".
// It leaves the "--" end-of-flags marker intact and doesn't touch single-dash or positional args.
func normalizeLongOpts(args []string) []string {
	out := make([]string, 0, len(args))
	seenTerminator := false
	for _, a := range args {
		if seenTerminator {
			out = append(out, a)
			continue
		}
		if a == "--" {
			seenTerminator = true
			out = append(out, a)
			continue
		}
		if strings.HasPrefix(a, "--") && len(a) > 2 {
			out = append(out, "-"+a[2:])
			continue
		}
		out = append(out, a)
	}
	return out
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	catalogFiles     string
	rulesSpec        string
	noDefaultCatalog bool
	strict           bool
	allEmptyMatchers bool
	preserveStrings  bool
	logLevel         string
	output           string
	replBackend      string
	silent           bool
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.catalogFiles, "catalog", "", "comma-separated catalog files (.yaml/.yml/.json spec or .prom exposition)")
	fs.StringVar(&g.rulesSpec, "rules", "", "rule file, directory or glob whose rule names and labels join the catalog")
	fs.BoolVar(&g.noDefaultCatalog, "no-default-catalog", false, "start from the function table only, without the sample metrics and labels")
	fs.BoolVar(&g.strict, "strict", false, "also run the upstream PromQL parser")
	fs.BoolVar(&g.allEmptyMatchers, "all-empty-matchers", false, "report every empty {} matcher instead of the first")
	fs.BoolVar(&g.preserveStrings, "preserve-strings", false, "leave quoted strings untouched when formatting")
	fs.StringVar(&g.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	fs.StringVar(&g.output, "output", "", "output format: text|json")
	fs.StringVar(&g.output, "o", "", "shorthand for --output")
	fs.StringVar(&g.replBackend, "repl", "readline", "REPL backend: prompt|readline")
	fs.BoolVar(&g.silent, "silent", false, "suppress startup output")
	fs.BoolVar(&g.silent, "s", false, "shorthand for --silent")
	fs.String("config", "", "config file (plain 'flag value' lines)")
}

func (g *globalFlags) json() bool { return strings.EqualFold(g.output, "json") }

// app carries the I/O streams and the state built from the global flags.
type app struct {
	flags  globalFlags
	stdin  *os.File
	stdout io.Writer
	stderr io.Writer

	logger *zap.Logger
}

// newLogger builds the stderr logger; stdout carries command output and LSP traffic.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Level = zap.NewAtomicLevelAt(lvl)
	return config.Build()
}

// setup builds the logger and the engine from the parsed global flags.
func (a *app) setup(extra ...assist.Option) (*assist.Engine, error) {
	if a.logger == nil {
		logger, err := newLogger(a.flags.logLevel)
		if err != nil {
			return nil, err
		}
		a.logger = logger
	}

	base := catalog.Default()
	if a.flags.noDefaultCatalog {
		base = catalog.New(catalog.FunctionsOnlySpec())
	}
	cat := base
	if a.flags.catalogFiles != "" {
		var err error
		cat, err = catalog.LoadFiles(base, strings.Split(a.flags.catalogFiles, ",")...)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		a.logger.Debug("catalog loaded",
			zap.String("files", a.flags.catalogFiles),
			zap.Int("metrics", len(cat.MetricNames())),
			zap.Int("labels", len(cat.LabelNames())))
	}
	if a.flags.rulesSpec != "" {
		rs, err := a.loadRules(a.flags.rulesSpec)
		if err != nil {
			return nil, err
		}
		cat = rules.Merge(cat, rs)
	}

	var vopts []validate.Option
	if a.flags.strict {
		vopts = append(vopts, validate.WithStrictSyntax())
	}
	if a.flags.allEmptyMatchers {
		vopts = append(vopts, validate.WithAllEmptyMatchers())
	}
	var popts []prettify.Option
	if a.flags.preserveStrings {
		popts = append(popts, prettify.PreserveStrings())
	}

	opts := []assist.Option{
		assist.WithCatalog(cat),
		assist.WithValidateOptions(vopts...),
		assist.WithPrettifyOptions(popts...),
	}
	return assist.New(append(opts, extra...)...), nil
}

// loadRules loads the rules named by spec. Problems in individual files are
// logged as long as at least one rule loads.
func (a *app) loadRules(spec string) ([]rules.Rule, error) {
	rs, err := rules.LoadSpec(spec)
	if err != nil && len(rs) == 0 {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	for _, e := range multierr.Errors(err) {
		a.logger.Warn("rule file problem", zap.Error(e))
	}
	a.logger.Debug("rules loaded", zap.String("spec", spec), zap.Int("rules", len(rs)))
	return rs, nil
}

func (a *app) sync() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// rootCommand assembles the command tree.
func (a *app) rootCommand() *ffcli.Command {
	rootFlags := flag.NewFlagSet("promql-assist", flag.ContinueOnError)
	rootFlags.SetOutput(a.stderr)
	a.flags.register(rootFlags)

	return &ffcli.Command{
		Name:       "promql-assist",
		ShortUsage: "promql-assist [global flags] <subcommand> [flags] [args]",
		ShortHelp:  "PromQL tokenizer, completion, linting and formatting",
		FlagSet:    rootFlags,
		Options: []ff.Option{
			ff.WithEnvVarPrefix("PROMQL_ASSIST"),
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ff.PlainParser),
		},
		Subcommands: []*ffcli.Command{
			a.tokensCommand(),
			a.contextCommand(),
			a.completeCommand(),
			a.checkCommand(),
			a.hintCommand(),
			a.fmtCommand(),
			a.replCommand(),
			a.lspCommand(),
			a.catalogCommand(),
			a.versionCommand(),
		},
		Exec: func(ctx context.Context, _ []string) error { return flag.ErrHelp },
	}
}

// run parses args and executes the selected subcommand.
func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	defer a.sync()
	root := a.rootCommand()
	if err := root.ParseAndRun(ctx, normalizeLongOpts(args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			root.FlagSet.Usage()
		}
		return err
	}
	return nil
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) && !errors.Is(err, errCheckFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// printVersion prints a human-readable version string.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "promql-assist %s\n", version)
	fmt.Fprintf(w, "  commit: %s\n", commit)
	fmt.Fprintf(w, "  date:   %s\n", date)
}
