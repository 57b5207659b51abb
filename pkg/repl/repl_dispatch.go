//go:build !prompt
// +build !prompt

package repl

import (
	"fmt"
	"os"
)

// runInteractive determines which REPL backend to use
func (s *Session) runInteractive(in *os.File, backend string, silent bool) error {
	// This build does not include go-prompt.
	if backend == "prompt" {
		return fmt.Errorf("--repl=prompt requested but not compiled in; build with: go build -tags prompt")
	}
	return s.runReadline(in, silent)
}
