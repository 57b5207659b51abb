package repl

import "strings"

// PromQL-aware word separators used for word boundary detection
const PromQLSeparators = "(){}[]\" \t\n,="

// isWordBoundaryRune reports whether r ends a word when deleting backwards.
// Arithmetic and matcher operators count as boundaries too.
func isWordBoundaryRune(r rune) bool {
	return strings.ContainsRune(PromQLSeparators, r) || strings.ContainsRune("!~+-*/^%", r)
}

// deletePrevWord removes the separators right before pos and then the word
// before them, returning the new line and cursor.
func deletePrevWord(line []rune, pos int) ([]rune, int) {
	if pos > len(line) {
		pos = len(line)
	}
	if pos <= 0 {
		return line, 0
	}
	i := pos
	for i > 0 && isWordBoundaryRune(line[i-1]) {
		i--
	}
	for i > 0 && !isWordBoundaryRune(line[i-1]) {
		i--
	}
	newLine := append([]rune(nil), line[:i]...)
	newLine = append(newLine, line[pos:]...)
	return newLine, i
}
