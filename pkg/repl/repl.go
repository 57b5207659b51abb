package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
)

// Run starts the session on in. A terminal gets the interactive REPL of the
// requested backend ("readline" or "prompt"); anything else is read line by
// line as a batch.
func (s *Session) Run(in *os.File, backend string, silent bool) error {
	if !isTerminal(in) {
		s.logger.Debug("stdin is not a terminal, running in batch mode")
		return s.RunBatch(in)
	}
	return s.runInteractive(in, backend, silent)
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (s *Session) printBanner() {
	fmt.Fprintln(s.out, "Enter PromQL queries to check and format them (.help for commands, .quit to exit):")
	fmt.Fprintln(s.out)
}

// runReadline runs the interactive session on in using readline for enhanced UX.
func (s *Session) runReadline(in *os.File, silent bool) error {
	if !silent {
		s.printBanner()
	}

	// History prefix-search on Up/Down is implemented via a custom Listener that
	// replaces the default Prev/Next history behavior when a non-empty prefix is present.
	userHistory := loadHistoryFromFile(s.historyPath)

	// State for prefix-based history navigation
	type histState struct {
		lastPrefix string // prefix captured before Up/Down
		seedLine   []rune // editing line before entering navigation for lastPrefix
		matches    []string
		idx        int // current selection index in matches; len(matches) means seedLine

		// line and cursor as of the previous keystroke
		prevLine []rune
		prevPos  int
	}
	state := &histState{}

	listener := func(line []rune, pos int, key rune) (newLine []rune, newPos int, ok bool) {
		const (
			keyDown  = rune(14) // readline CharNext (Ctrl-N)
			keyUp    = rune(16) // readline CharPrev (Ctrl-P)
			keyCtrlW = rune(23) // readline CharCtrlW
		)

		// readline has already applied its own word deletion; redo it from
		// the previous snapshot with PromQL word boundaries.
		if key == keyCtrlW {
			newLine, newPos = deletePrevWord(state.prevLine, state.prevPos)
			state.prevLine = append(state.prevLine[:0], newLine...)
			state.prevPos = newPos
			return newLine, newPos, true
		}
		defer func() {
			cur, at := line, pos
			if ok {
				cur, at = newLine, newPos
			}
			if key == readline.CharEnter || key == readline.CharInterrupt {
				cur, at = nil, 0
			}
			state.prevLine = append(state.prevLine[:0], cur...)
			state.prevPos = at
		}()

		prefix := string(line[:pos])
		if state.lastPrefix != prefix && key != keyUp && key != keyDown {
			state.lastPrefix = prefix
			state.seedLine = append(state.seedLine[:0], line...)
			state.matches = nil
			if prefix != "" {
				state.matches = BuildFilteredHistory(prefix, userHistory)
			}
			state.idx = len(state.matches)
		}

		switch key {
		case keyUp:
			if state.lastPrefix == "" || len(state.matches) == 0 {
				return nil, 0, false
			}
			if state.idx == len(state.matches) {
				state.idx = 0
			} else if state.idx < len(state.matches)-1 {
				state.idx++
			}
			candidate := []rune(state.matches[state.idx])
			return candidate, len(candidate), true
		case keyDown:
			if state.lastPrefix == "" || len(state.matches) == 0 {
				return nil, 0, false
			}
			if state.idx > 0 && state.idx < len(state.matches) {
				state.idx--
				candidate := []rune(state.matches[state.idx])
				return candidate, len(candidate), true
			}
			// back to the original editing seed line
			state.idx = len(state.matches)
			seed := append([]rune(nil), state.seedLine...)
			return seed, len(seed), true
		}
		return nil, 0, false
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "promql> ",
		HistoryFile:     s.historyPath,
		AutoComplete:    readlineCompleter{s: s},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Listener:        readline.FuncListener(listener),
		Stdin:           in,
	})
	if err != nil {
		s.logger.Warn("could not initialize readline, falling back to basic input", zap.Error(err))
		return s.runBasic(in)
	}
	defer func() { _ = rl.Close() }()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		// Keep our in-memory history in sync (readline persists to file separately)
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			userHistory = append(userHistory, trimmed)
		}
		if s.ExecuteOne(line) {
			return nil
		}
	}
}

// runBasic provides a fallback when readline is unavailable
func (s *Session) runBasic(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "promql> ")
		if !sc.Scan() {
			return sc.Err()
		}
		line := sc.Text()
		if strings.TrimSpace(line) != "" {
			if err := appendToHistoryFile(s.historyPath, strings.TrimSpace(line)); err != nil {
				s.logger.Debug("failed to append history", zap.Error(err))
			}
		}
		if s.ExecuteOne(line) {
			return nil
		}
	}
}
