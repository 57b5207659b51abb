// Package assist bundles the query tooling behind a single Engine bound to
// one catalog, for front ends such as the REPL, the LSP server and the CLI.
package assist

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jjo/promql-assist/pkg/catalog"
	"github.com/jjo/promql-assist/pkg/completion"
	"github.com/jjo/promql-assist/pkg/hint"
	"github.com/jjo/promql-assist/pkg/lexer"
	"github.com/jjo/promql-assist/pkg/prettify"
	"github.com/jjo/promql-assist/pkg/validate"
)

// Option configures an Engine.
type Option func(*config)

type config struct {
	cat        *catalog.Catalog
	validate   []validate.Option
	prettify   []prettify.Option
	checkLimit int
}

// WithCatalog sets the catalog; the default is catalog.Default().
func WithCatalog(c *catalog.Catalog) Option {
	return func(cfg *config) { cfg.cat = c }
}

// WithValidateOptions passes options to the validator.
func WithValidateOptions(opts ...validate.Option) Option {
	return func(cfg *config) { cfg.validate = append(cfg.validate, opts...) }
}

// WithPrettifyOptions passes options to the prettifier.
func WithPrettifyOptions(opts ...prettify.Option) Option {
	return func(cfg *config) { cfg.prettify = append(cfg.prettify, opts...) }
}

// WithCheckLimit bounds the number of queries CheckAll validates at once.
// Values below 1 mean GOMAXPROCS.
func WithCheckLimit(n int) Option {
	return func(cfg *config) { cfg.checkLimit = n }
}

// Engine is safe for concurrent use; it holds no mutable state.
type Engine struct {
	cat        *catalog.Catalog
	tokenizer  *lexer.Tokenizer
	validator  *validate.Validator
	prettifier *prettify.Prettifier
	checkLimit int
}

// New returns an Engine configured with opts.
func New(opts ...Option) *Engine {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.cat == nil {
		cfg.cat = catalog.Default()
	}
	if cfg.checkLimit < 1 {
		cfg.checkLimit = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		cat:        cfg.cat,
		tokenizer:  lexer.New(cfg.cat),
		validator:  validate.New(cfg.validate...),
		prettifier: prettify.New(cfg.prettify...),
		checkLimit: cfg.checkLimit,
	}
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// WithCatalog returns a copy of e bound to cat, keeping the other settings.
func (e *Engine) WithCatalog(cat *catalog.Catalog) *Engine {
	if cat == nil {
		cat = catalog.Default()
	}
	cp := *e
	cp.cat = cat
	cp.tokenizer = lexer.New(cat)
	return &cp
}

func (e *Engine) Tokenize(query string) []lexer.Token { return e.tokenizer.Tokenize(query) }

func (e *Engine) Context(query string, cursor int) completion.Context {
	return completion.ResolveContext(query, cursor)
}

func (e *Engine) Suggest(ctx completion.Context) []completion.Suggestion {
	return completion.Suggest(ctx, e.cat)
}

func (e *Engine) Complete(query string, cursor int) (completion.Context, []completion.Suggestion) {
	return completion.Complete(query, cursor, e.cat)
}

func (e *Engine) Validate(query string) validate.Result { return e.validator.Validate(query) }

func (e *Engine) Hint(query string, cursor int) *hint.FunctionHint {
	return hint.HintAt(query, cursor, e.cat)
}

func (e *Engine) Prettify(query string) string { return e.prettifier.Prettify(query) }

// Analysis is everything the engine knows about a query at a cursor.
type Analysis struct {
	Query       string                  `json:"query"`
	Cursor      int                     `json:"cursor"`
	Tokens      []lexer.Token           `json:"tokens"`
	Context     completion.Context      `json:"context"`
	Suggestions []completion.Suggestion `json:"suggestions"`
	Hint        *hint.FunctionHint      `json:"hint,omitempty"`
	Result      validate.Result         `json:"diagnostics"`
	Pretty      string                  `json:"pretty"`
}

// Analyze runs every operation on query. The cursor is clamped into the
// query; a negative cursor means the end of the query.
func (e *Engine) Analyze(query string, cursor int) Analysis {
	if cursor < 0 || cursor > len(query) {
		cursor = len(query)
	}
	ctx, sugg := e.Complete(query, cursor)
	return Analysis{
		Query:       query,
		Cursor:      cursor,
		Tokens:      e.Tokenize(query),
		Context:     ctx,
		Suggestions: sugg,
		Hint:        e.Hint(query, cursor),
		Result:      e.Validate(query),
		Pretty:      e.Prettify(query),
	}
}

// CheckAll validates queries concurrently and returns the results in input
// order. It stops early and returns ctx.Err() when ctx is cancelled.
func CheckAll(ctx context.Context, e *Engine, queries []string) ([]validate.Result, error) {
	results := make([]validate.Result, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.checkLimit)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.Validate(q)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
