// Package lsp implements a Language Server Protocol server for PromQL
// documents on top of the assist engine.
package lsp

import (
	"context"
	"sync"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/jjo/promql-assist/pkg/assist"
)

// ServerName is reported to clients during initialization.
const ServerName = "promql-assist"

// diagnosticSource is the source tag on published diagnostics.
const diagnosticSource = "promql-assist"

// Server answers LSP requests for open PromQL documents.
type Server struct {
	client  protocol.Client
	logger  *zap.Logger
	engine  *assist.Engine
	version string

	mu        sync.RWMutex
	documents map[protocol.DocumentURI]*Document

	shutdown bool
	onExit   func()
}

// NewServer creates a server that publishes to client. A nil logger
// disables logging and a nil engine uses the default catalog.
func NewServer(client protocol.Client, logger *zap.Logger, engine *assist.Engine) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = assist.New()
	}
	return &Server{
		client:    client,
		logger:    logger,
		engine:    engine,
		version:   "dev",
		documents: make(map[protocol.DocumentURI]*Document),
	}
}

// SetVersion sets the version reported in the initialize result.
func (s *Server) SetVersion(v string) { s.version = v }

// Initialize handles the initialize request.
func (s *Server) Initialize(_ context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	clientName := ""
	if params.ClientInfo != nil {
		clientName = params.ClientInfo.Name
	}
	s.logger.Info("Initialize", zap.String("client", clientName))

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
				Save:      &protocol.SaveOptions{IncludeText: false},
			},
			HoverProvider: true,
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{"{", ",", "(", "\"", "'", "="},
			},
			SignatureHelpProvider: &protocol.SignatureHelpOptions{
				TriggerCharacters:   []string{"(", ","},
				RetriggerCharacters: []string{","},
			},
			DocumentFormattingProvider: true,
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    ServerName,
			Version: s.version,
		},
	}, nil
}

// Initialized handles the initialized notification.
func (s *Server) Initialized(_ context.Context, _ *protocol.InitializedParams) error {
	s.logger.Info("Initialized")
	return nil
}

// Shutdown handles the shutdown request.
func (s *Server) Shutdown(_ context.Context) error {
	s.logger.Info("Shutdown")
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	return nil
}

// Exit handles the exit notification.
func (s *Server) Exit(_ context.Context) error {
	s.logger.Info("Exit")
	if s.onExit != nil {
		s.onExit()
	}
	return nil
}

func (s *Server) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdown
}

// DidOpen handles textDocument/didOpen notifications.
func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.logger.Info("DidOpen", zap.String("uri", string(params.TextDocument.URI)))

	doc := newDocument(params.TextDocument.URI, params.TextDocument.Version, params.TextDocument.Text)

	s.mu.Lock()
	s.documents[doc.URI] = doc
	s.mu.Unlock()

	// RPC calls happen outside the lock
	s.publishDiagnostics(ctx, doc)
	return nil
}

// DidChange handles textDocument/didChange notifications with full sync.
func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.logger.Info("DidChange",
		zap.String("uri", string(uri)),
		zap.Int32("version", params.TextDocument.Version))

	if len(params.ContentChanges) == 0 {
		return nil
	}

	s.mu.Lock()
	if _, ok := s.documents[uri]; !ok {
		s.mu.Unlock()
		s.logger.Warn("DidChange for unknown document", zap.String("uri", string(uri)))
		return nil
	}
	doc := newDocument(uri, params.TextDocument.Version, params.ContentChanges[len(params.ContentChanges)-1].Text)
	s.documents[uri] = doc
	s.mu.Unlock()

	s.publishDiagnostics(ctx, doc)
	return nil
}

// DidClose handles textDocument/didClose notifications.
func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.logger.Info("DidClose", zap.String("uri", string(params.TextDocument.URI)))

	s.mu.Lock()
	delete(s.documents, params.TextDocument.URI)
	s.mu.Unlock()

	err := s.client.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
	if err != nil {
		s.logger.Error("Failed to clear diagnostics", zap.Error(err))
	}
	return nil
}

// DidSave handles textDocument/didSave notifications by republishing the
// diagnostics of the stored document.
func (s *Server) DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	s.logger.Debug("DidSave", zap.String("uri", string(params.TextDocument.URI)))

	doc, ok := s.getDocument(params.TextDocument.URI)
	if !ok {
		s.logger.Warn("DidSave for unknown document", zap.String("uri", string(params.TextDocument.URI)))
		return nil
	}
	s.publishDiagnostics(ctx, doc)
	return nil
}

// getDocument returns a document by URI (read-locked).
func (s *Server) getDocument(uri protocol.DocumentURI) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[uri]
	return doc, ok
}
