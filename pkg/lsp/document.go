package lsp

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// Document is an open text document. Every non-blank line that does not
// start with whitespace begins a new query; indented lines continue the
// previous one, so prettified output stays a single query. Blank lines and
// '#' comments end a query.
type Document struct {
	URI     protocol.DocumentURI
	Version int32
	Content string

	queries []span
}

// span is a byte range of Content.
type span struct {
	start, end int
}

func newDocument(uri protocol.DocumentURI, version int32, content string) *Document {
	return &Document{
		URI:     uri,
		Version: version,
		Content: content,
		queries: splitQueries(content),
	}
}

func (d *Document) text(sp span) string { return d.Content[sp.start:sp.end] }

// queryAt returns the query holding offset and the offset relative to it.
func (d *Document) queryAt(offset int) (span, int, bool) {
	for _, q := range d.queries {
		if offset >= q.start && offset <= q.end {
			return q, offset - q.start, true
		}
	}
	return span{}, 0, false
}

func splitQueries(content string) []span {
	var (
		out []span
		cur *span
	)
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	for offset := 0; offset <= len(content); {
		end := strings.IndexByte(content[offset:], '\n')
		if end < 0 {
			end = len(content)
		} else {
			end += offset
		}
		line := strings.TrimSuffix(content[offset:end], "\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			flush()
		case cur != nil && (line[0] == ' ' || line[0] == '\t'):
			cur.end = offset + len(line)
		default:
			flush()
			cur = &span{start: offset, end: offset + len(line)}
		}
		offset = end + 1
	}
	flush()
	return out
}

// positionToOffset converts an LSP position (UTF-16 code units) to a byte
// offset in content. Positions past the end of a line clamp to its end.
func positionToOffset(content string, pos protocol.Position) int {
	offset := 0
	for line := uint32(0); line < pos.Line; line++ {
		nl := strings.IndexByte(content[offset:], '\n')
		if nl < 0 {
			return len(content)
		}
		offset += nl + 1
	}

	units := uint32(0)
	for offset < len(content) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(content[offset:])
		if r == '\n' || (r == '\r' && strings.HasPrefix(content[offset:], "\r\n")) {
			break
		}
		units += uint32(utf16.RuneLen(r)) //nolint:gosec
		offset += size
	}
	return offset
}

// offsetToPosition converts a byte offset in content to an LSP position.
func offsetToPosition(content string, offset int) protocol.Position {
	offset = max(0, min(offset, len(content)))
	var pos protocol.Position
	for i := 0; i < offset; {
		r, size := utf8.DecodeRuneInString(content[i:])
		if r == '\n' {
			pos.Line++
			pos.Character = 0
		} else {
			pos.Character += uint32(utf16.RuneLen(r)) //nolint:gosec
		}
		i += size
	}
	return pos
}

func (d *Document) rangeOf(start, end int) protocol.Range {
	return protocol.Range{
		Start: offsetToPosition(d.Content, start),
		End:   offsetToPosition(d.Content, end),
	}
}
