package repl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/jjo/promql-assist/pkg/assist"
	"github.com/jjo/promql-assist/pkg/rules"
	"github.com/jjo/promql-assist/pkg/validate"
)

// Session holds the state of one interactive session: the engine (replaced
// when .load or .rules merges a catalog), the in-memory history and the
// output sink.
type Session struct {
	engine      *assist.Engine
	rules       []rules.Rule
	out         io.Writer
	logger      *zap.Logger
	history     []string
	historyPath string
	jsonOutput  bool
	opts        AutoCompleteOptions
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithHistoryFile overrides the history file path.
func WithHistoryFile(path string) SessionOption {
	return func(s *Session) { s.historyPath = path }
}

// WithJSONOutput prints query analyses as JSON lines.
func WithJSONOutput() SessionOption {
	return func(s *Session) { s.jsonOutput = true }
}

// NewSession returns a session printing to out.
func NewSession(engine *assist.Engine, out io.Writer, opts ...SessionOption) *Session {
	s := &Session{
		engine:      engine,
		out:         out,
		logger:      zap.NewNop(),
		historyPath: getHistoryFilePath(),
		opts:        loadAutoCompleteOptions(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Engine returns the engine currently in use.
func (s *Session) Engine() *assist.Engine { return s.engine }

// ExecuteOne runs one input line: a dot command or a query to analyze. It
// reports whether the session should end.
func (s *Session) ExecuteOne(line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	s.addHistory(line)
	if line == "quit" || line == ".quit" {
		return true
	}
	if strings.HasPrefix(line, ".") {
		if !s.handleCommand(line) {
			fmt.Fprintf(s.out, "Unknown command %q, try .help\n", strings.Fields(line)[0])
		}
		return false
	}
	s.analyze(line)
	return false
}

// analyze prints the diagnostics of a query and its formatted form when that
// differs from the input.
func (s *Session) analyze(query string) {
	res := s.engine.Validate(query)
	pretty := s.engine.Prettify(query)
	if s.jsonOutput {
		s.printJSON(struct {
			Query       string          `json:"query"`
			Diagnostics validate.Result `json:"diagnostics"`
			Pretty      string          `json:"pretty"`
		}{query, res, pretty})
		return
	}
	s.printDiagnostics(res)
	if pretty != query {
		fmt.Fprintln(s.out, "Formatted:")
		for _, l := range strings.Split(pretty, "\n") {
			fmt.Fprintf(s.out, "  %s\n", l)
		}
	}
}

func (s *Session) printDiagnostics(res validate.Result) {
	all := res.All()
	if len(all) == 0 {
		fmt.Fprintln(s.out, "OK: no issues found")
		return
	}
	for _, d := range all {
		fmt.Fprintln(s.out, d.String())
	}
}

func (s *Session) printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(s.out, "Error encoding JSON: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, string(b))
}

// addHistory records a line in memory, skipping consecutive duplicates.
func (s *Session) addHistory(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if n := len(s.history); n > 0 && s.history[n-1] == line {
		return
	}
	s.history = append(s.history, line)
}

// RunBatch executes every line of r until EOF or a quit command. Lines ending
// with a backslash continue on the next line.
func (s *Session) RunBatch(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var pending []string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && len(pending) == 0 {
			continue
		}
		if strings.HasSuffix(trimmed, "\\") && !strings.HasSuffix(trimmed, "\\\\") {
			pending = append(pending, strings.TrimSuffix(trimmed, "\\"))
			continue
		}
		if len(pending) > 0 {
			pending = append(pending, trimmed)
			trimmed = strings.Join(pending, " ")
			pending = nil
		}
		if trimmed != "" && !strings.HasPrefix(trimmed, ".") && !s.jsonOutput {
			fmt.Fprintf(s.out, "> %s\n", trimmed)
		}
		if s.ExecuteOne(trimmed) {
			return nil
		}
	}
	if len(pending) > 0 {
		s.ExecuteOne(strings.Join(pending, " "))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}
