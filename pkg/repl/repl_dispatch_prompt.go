//go:build prompt

package repl

import (
	"fmt"
	"os"
)

// runInteractive determines which REPL backend to use
func (s *Session) runInteractive(in *os.File, backend string, silent bool) error {
	if backend != "prompt" {
		if !silent {
			fmt.Fprintln(s.out, "Using readline backend (default)")
		}
		return s.runReadline(in, silent)
	}
	if !silent {
		fmt.Fprintln(s.out, "Using go-prompt backend (--repl=prompt)")
	}
	return s.runPrompt(silent)
}
