package repl

import (
	"os"
	"path/filepath"
	"strings"
)

const historyFileName = ".promql-assist_history"

// BuildFilteredHistory builds a newest-first filtered history slice based on the given prefix.
// - Preserves duplicates for 1:1 navigation
// - Returns entries from most recent to oldest
func BuildFilteredHistory(prefix string, history []string) []string {
	out := make([]string, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if prefix == "" || strings.HasPrefix(entry, prefix) {
			out = append(out, entry)
		}
	}
	return out
}

// getHistoryFilePath returns the path to the history file
func getHistoryFilePath() string {
	if histPath := os.Getenv("PROMQL_ASSIST_HISTORY"); histPath != "" {
		return histPath
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, historyFileName)
	}
	if cwd, err := os.Getwd(); err == nil && cwd != "" {
		return filepath.Join(cwd, historyFileName)
	}
	return historyFileName
}

// loadHistoryFromFile reads non-empty lines from the given history file path.
func loadHistoryFromFile(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var out []string
	for _, ln := range strings.Split(string(data), "\n") {
		ln = strings.TrimSpace(strings.TrimRight(ln, "\r"))
		if ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

// appendToHistoryFile appends a single line to the history file.
func appendToHistoryFile(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = f.WriteString(line + "\n")
	return err
}
