package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/jjo/promql-assist/pkg/assist"
)

// Handler dispatches JSON-RPC messages to the server. Methods the server
// does not implement get a method-not-found reply.
func (s *Server) Handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		s.logger.Debug("handle", zap.String("method", req.Method()))

		if s.isShutdown() && req.Method() != protocol.MethodExit {
			return reply(ctx, nil, fmt.Errorf("%w: server is shutting down", jsonrpc2.ErrInvalidRequest))
		}

		switch req.Method() {
		case protocol.MethodInitialize:
			return call(ctx, reply, req, s.Initialize)
		case protocol.MethodInitialized:
			return notify(ctx, reply, req, s.Initialized)
		case protocol.MethodShutdown:
			return reply(ctx, nil, s.Shutdown(ctx))
		case protocol.MethodExit:
			return reply(ctx, nil, s.Exit(ctx))
		case protocol.MethodTextDocumentDidOpen:
			return notify(ctx, reply, req, s.DidOpen)
		case protocol.MethodTextDocumentDidChange:
			return notify(ctx, reply, req, s.DidChange)
		case protocol.MethodTextDocumentDidClose:
			return notify(ctx, reply, req, s.DidClose)
		case protocol.MethodTextDocumentDidSave:
			return notify(ctx, reply, req, s.DidSave)
		case protocol.MethodTextDocumentCompletion:
			return call(ctx, reply, req, s.Completion)
		case protocol.MethodTextDocumentSignatureHelp:
			return call(ctx, reply, req, s.SignatureHelp)
		case protocol.MethodTextDocumentHover:
			return call(ctx, reply, req, s.Hover)
		case protocol.MethodTextDocumentFormatting:
			return call(ctx, reply, req, s.Formatting)
		default:
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}
	}
}

func decodeParams(req jsonrpc2.Request, params any) error {
	raw := req.Params()
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, params); err != nil {
		return fmt.Errorf("%w: %s: %v", jsonrpc2.ErrInvalidParams, req.Method(), err)
	}
	return nil
}

func call[P, R any](ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, fn func(context.Context, *P) (R, error)) error {
	var params P
	if err := decodeParams(req, &params); err != nil {
		return reply(ctx, nil, err)
	}
	res, err := fn(ctx, &params)
	return reply(ctx, res, err)
}

func notify[P any](ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, fn func(context.Context, *P) error) error {
	var params P
	if err := decodeParams(req, &params); err != nil {
		return reply(ctx, nil, err)
	}
	return reply(ctx, nil, fn(ctx, &params))
}

// Serve runs a server over the in/out pair until the client sends exit,
// the input ends or ctx is done.
func Serve(ctx context.Context, in io.Reader, out io.Writer, logger *zap.Logger, engine *assist.Engine, version string) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	stream := jsonrpc2.NewStream(&readWriteCloser{in, out})
	conn := jsonrpc2.NewConn(stream)

	client := protocol.ClientDispatcher(conn, logger)
	server := NewServer(client, logger, engine)
	server.SetVersion(version)

	exited := make(chan struct{})
	var once sync.Once
	server.onExit = func() {
		once.Do(func() {
			close(exited)
			_ = conn.Close()
		})
	}

	conn.Go(ctx, server.Handler())

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case <-conn.Done():
	}
	select {
	case <-exited:
		return nil
	default:
	}
	if err := conn.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("lsp connection: %w", err)
	}
	return nil
}

// readWriteCloser wraps separate reader/writer into io.ReadWriteCloser.
type readWriteCloser struct {
	io.Reader
	io.Writer
}

func (rwc *readWriteCloser) Close() error {
	if c, ok := rwc.Writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
