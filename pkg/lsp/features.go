package lsp

import (
	"context"
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/jjo/promql-assist/pkg/completion"
	"github.com/jjo/promql-assist/pkg/lexer"
	"github.com/jjo/promql-assist/pkg/validate"
)

// publishDiagnostics validates every query of doc and publishes the findings.
func (s *Server) publishDiagnostics(ctx context.Context, doc *Document) {
	diagnostics := []protocol.Diagnostic{}
	for _, q := range doc.queries {
		res := s.engine.Validate(doc.text(q))
		for _, d := range res.All() {
			diagnostics = append(diagnostics, convertDiagnostic(doc, q, d))
		}
	}

	s.logger.Debug("publishDiagnostics",
		zap.String("uri", string(doc.URI)),
		zap.Int("queries", len(doc.queries)),
		zap.Int("count", len(diagnostics)))

	err := s.client.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         doc.URI,
		Version:     uint32(doc.Version), //nolint:gosec // LSP versions are non-negative
		Diagnostics: diagnostics,
	})
	if err != nil {
		s.logger.Error("publishDiagnostics: RPC failed", zap.Error(err))
	}
}

// convertDiagnostic maps a query diagnostic onto the document. Positioned
// findings cover one byte, the others cover the whole query.
func convertDiagnostic(doc *Document, q span, d validate.Diagnostic) protocol.Diagnostic {
	start, end := q.start, q.end
	if d.Position != validate.NoPosition {
		start = min(q.start+d.Position, q.end)
		end = min(start+1, q.end)
	}
	return protocol.Diagnostic{
		Range:    doc.rangeOf(start, end),
		Severity: convertSeverity(d.Severity),
		Code:     d.Category,
		Source:   diagnosticSource,
		Message:  d.Message,
	}
}

func convertSeverity(sev validate.Severity) protocol.DiagnosticSeverity {
	switch sev {
	case validate.Warning:
		return protocol.DiagnosticSeverityWarning
	case validate.Info:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityError
	}
}

// locate resolves a document position to its query and the cursor inside it.
func (s *Server) locate(uri protocol.DocumentURI, pos protocol.Position) (*Document, span, int, bool) {
	doc, ok := s.getDocument(uri)
	if !ok {
		s.logger.Debug("unknown document", zap.String("uri", string(uri)))
		return nil, span{}, 0, false
	}
	q, cursor, ok := doc.queryAt(positionToOffset(doc.Content, pos))
	return doc, q, cursor, ok
}

// Completion handles textDocument/completion requests.
func (s *Server) Completion(_ context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	list := &protocol.CompletionList{Items: []protocol.CompletionItem{}}
	doc, q, cursor, ok := s.locate(params.TextDocument.URI, params.Position)
	if !ok {
		return list, nil
	}

	text := doc.text(q)
	cctx, suggestions := s.engine.Complete(text, cursor)
	start, end := completion.Replacement(text, cursor, cctx)
	rng := doc.rangeOf(q.start+start, q.start+end)

	s.logger.Debug("Completion",
		zap.Stringer("kind", cctx.Kind),
		zap.String("prefix", cctx.Prefix),
		zap.Int("items", len(suggestions)))

	for i, sg := range suggestions {
		list.Items = append(list.Items, protocol.CompletionItem{
			Label:            sg.Text,
			Kind:             convertCompletionKind(sg.Kind),
			Detail:           sg.Detail,
			InsertTextFormat: protocol.InsertTextFormatPlainText,
			SortText:         fmt.Sprintf("%03d", i),
			FilterText:       sg.Text,
			TextEdit: &protocol.TextEdit{
				Range:   rng,
				NewText: sg.InsertText,
			},
		})
	}
	return list, nil
}

func convertCompletionKind(kind completion.SuggestionKind) protocol.CompletionItemKind {
	switch kind {
	case completion.SuggestFunction:
		return protocol.CompletionItemKindFunction
	case completion.SuggestMetric:
		return protocol.CompletionItemKindVariable
	case completion.SuggestKeyword:
		return protocol.CompletionItemKindKeyword
	case completion.SuggestLabel:
		return protocol.CompletionItemKindField
	case completion.SuggestLabelValue:
		return protocol.CompletionItemKindValue
	default:
		return protocol.CompletionItemKindText
	}
}

// SignatureHelp handles textDocument/signatureHelp requests.
func (s *Server) SignatureHelp(_ context.Context, params *protocol.SignatureHelpParams) (*protocol.SignatureHelp, error) {
	doc, q, cursor, ok := s.locate(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil
	}
	h := s.engine.Hint(doc.text(q), cursor)
	if h == nil {
		return nil, nil
	}

	sigParams := make([]protocol.ParameterInformation, 0, len(h.Signature.ParamNames))
	for _, p := range h.Signature.ParamNames {
		sigParams = append(sigParams, protocol.ParameterInformation{Label: p})
	}
	var documentation any
	if h.Signature.Description != "" {
		documentation = &protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: h.Signature.Description,
		}
	}

	return &protocol.SignatureHelp{
		Signatures: []protocol.SignatureInformation{{
			Label:         h.Signature.Signature,
			Documentation: documentation,
			Parameters:    sigParams,
		}},
		ActiveSignature: 0,
		ActiveParameter: uint32(h.ActiveParamIndex), //nolint:gosec
	}, nil
}

// Hover handles textDocument/hover requests.
func (s *Server) Hover(_ context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, q, cursor, ok := s.locate(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil
	}

	offset := 0
	for _, tok := range s.engine.Tokenize(doc.text(q)) {
		start, end := offset, offset+len(tok.Text)
		offset = end
		if cursor < start || cursor >= end {
			continue
		}
		content := s.hoverContent(tok)
		if content == "" {
			return nil, nil
		}
		rng := doc.rangeOf(q.start+start, q.start+end)
		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.Markdown,
				Value: content,
			},
			Range: &rng,
		}, nil
	}
	return nil, nil
}

func (s *Server) hoverContent(tok lexer.Token) string {
	cat := s.engine.Catalog()
	var b strings.Builder
	switch tok.Type {
	case lexer.Function:
		entry, _ := cat.Function(tok.Text)
		fmt.Fprintf(&b, "**%s** (function)\n\n```promql\n%s\n```", tok.Text, entry.Signature)
		if entry.Description != "" {
			fmt.Fprintf(&b, "\n\n%s", entry.Description)
		}
	case lexer.Metric:
		fmt.Fprintf(&b, "**%s** (metric)", tok.Text)
		if help := cat.MetricHelp(tok.Text); help != "" {
			fmt.Fprintf(&b, "\n\n%s", help)
		}
	case lexer.Label:
		fmt.Fprintf(&b, "**%s** (label)", tok.Text)
		if values := cat.LabelValues(tok.Text); len(values) > 0 {
			fmt.Fprintf(&b, "\n\nKnown values: `%s`", strings.Join(values, "`, `"))
		}
	case lexer.Keyword, lexer.Operator, lexer.Duration, lexer.Number, lexer.String:
		fmt.Fprintf(&b, "`%s` (%s)", tok.Text, tok.Type)
	}
	return b.String()
}

// Formatting handles textDocument/formatting requests. Each query is
// replaced by its prettified form.
func (s *Server) Formatting(_ context.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	edits := []protocol.TextEdit{}
	doc, ok := s.getDocument(params.TextDocument.URI)
	if !ok {
		return edits, nil
	}
	for _, q := range doc.queries {
		text := doc.text(q)
		pretty := s.engine.Prettify(text)
		if pretty == text {
			continue
		}
		edits = append(edits, protocol.TextEdit{
			Range:   doc.rangeOf(q.start, q.end),
			NewText: pretty,
		})
	}
	s.logger.Debug("Formatting", zap.String("uri", string(doc.URI)), zap.Int("edits", len(edits)))
	return edits, nil
}
