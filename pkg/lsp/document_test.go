package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lsp.dev/protocol"

	"github.com/jjo/promql-assist/pkg/validate"
)

func TestSplitQueries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"empty", "", nil},
		{"one per line", "up\nrate(x[5m])\n", []string{"up", "rate(x[5m])"}},
		{"blank lines and comments", "\n# note\nup\n\n  \nfoo", []string{"up", "foo"}},
		{"indented continuation", "sum(\n  rate(foo[5m]))\n  by (le)\nup", []string{"sum(\n  rate(foo[5m]))\n  by (le)", "up"}},
		{"leading indent starts a query", "  up\nfoo", []string{"  up", "foo"}},
		{"crlf", "up\r\nfoo\r\n", []string{"up", "foo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := newDocument("file:///q.promql", 1, tt.content)
			var got []string
			for _, q := range doc.queries {
				got = append(got, doc.text(q))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryAt(t *testing.T) {
	t.Parallel()

	doc := newDocument("file:///q.promql", 1, "up\n\nrate(x)")
	q, cursor, ok := doc.queryAt(9)
	assert.True(t, ok)
	assert.Equal(t, "rate(x)", doc.text(q))
	assert.Equal(t, 5, cursor)

	_, _, ok = doc.queryAt(3)
	assert.False(t, ok, "blank line holds no query")

	_, cursor, ok = doc.queryAt(2)
	assert.True(t, ok, "end of line belongs to the query")
	assert.Equal(t, 2, cursor)
}

func TestPositionOffsetRoundTrip(t *testing.T) {
	t.Parallel()

	// '€' is 3 bytes and one UTF-16 unit, '𝄞' is 4 bytes and two units.
	content := "a€b\n𝄞x\n"

	tests := []struct {
		pos    protocol.Position
		offset int
	}{
		{protocol.Position{Line: 0, Character: 0}, 0},
		{protocol.Position{Line: 0, Character: 2}, 4},
		{protocol.Position{Line: 0, Character: 3}, 5},
		{protocol.Position{Line: 1, Character: 0}, 6},
		{protocol.Position{Line: 1, Character: 2}, 10},
		{protocol.Position{Line: 1, Character: 3}, 11},
		{protocol.Position{Line: 2, Character: 0}, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.offset, positionToOffset(content, tt.pos), "positionToOffset(%v)", tt.pos)
		assert.Equal(t, tt.pos, offsetToPosition(content, tt.offset), "offsetToPosition(%d)", tt.offset)
	}

	assert.Equal(t, 5, positionToOffset(content, protocol.Position{Line: 0, Character: 99}), "clamps to end of line")
	assert.Equal(t, len(content), positionToOffset(content, protocol.Position{Line: 9}), "clamps to end of content")
}

func TestConvertDiagnostic(t *testing.T) {
	t.Parallel()

	doc := newDocument("file:///q.promql", 1, "up\nfoo bar")
	q := doc.queries[1]

	whole := convertDiagnostic(doc, q, validate.Diagnostic{Message: "m", Severity: validate.Error, Position: validate.NoPosition})
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 1, Character: 0},
		End:   protocol.Position{Line: 1, Character: 7},
	}, whole.Range)

	atEnd := convertDiagnostic(doc, q, validate.Diagnostic{Severity: validate.Info, Position: 7})
	assert.Equal(t, protocol.Position{Line: 1, Character: 7}, atEnd.Range.Start)
	assert.Equal(t, atEnd.Range.Start, atEnd.Range.End)
	assert.Equal(t, protocol.DiagnosticSeverityInformation, atEnd.Severity)
}
