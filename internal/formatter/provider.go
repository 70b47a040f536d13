// Package formatter turns editor documents into replacement edits using a
// code formatter backend.
package formatter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"javafmtd/internal/events"
	"javafmtd/internal/metrics"
)

// ErrUnsupportedLanguage is returned for documents whose language has no mode.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Mode selects how a document is handed to the formatter.
type Mode string

const (
	// ModeDocument formats the whole text as one unit.
	ModeDocument Mode = "document"
	// ModeEmbedded formats each fenced code block of the target language.
	ModeEmbedded Mode = "embedded"
)

// Editor language ids routed by default.
const (
	LanguageJava     = "java"
	LanguageMarkdown = "markdown"
)

// EmbeddedLanguage is the fence info string of blocks formatted in embedded mode.
const EmbeddedLanguage = "java"

// DefaultLanguages maps editor language ids to modes.
func DefaultLanguages() map[string]Mode {
	return map[string]Mode{
		LanguageJava:     ModeDocument,
		LanguageMarkdown: ModeEmbedded,
	}
}

// CodeFormatter formats a single unit of source text.
type CodeFormatter interface {
	FormatCode(ctx context.Context, source string) (string, error)
}

// Backend also formats files in place on the service side.
type Backend interface {
	CodeFormatter
	FormatFile(ctx context.Context, path string) (string, error)
}

// Visibility reports whether a document is currently shown in an editor.
type Visibility interface {
	IsVisible(uri string) bool
}

// VisibleSet is a Visibility fed by the editor plugin. Until the first
// Replace every document counts as visible.
type VisibleSet struct {
	mu      sync.RWMutex
	tracked bool
	uris    map[string]struct{}
}

func NewVisibleSet() *VisibleSet {
	return &VisibleSet{uris: make(map[string]struct{})}
}

// Replace sets the visible documents.
func (s *VisibleSet) Replace(uris []string) {
	next := make(map[string]struct{}, len(uris))
	for _, u := range uris {
		next[u] = struct{}{}
	}
	s.mu.Lock()
	s.uris = next
	s.tracked = true
	s.mu.Unlock()
}

func (s *VisibleSet) IsVisible(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.tracked {
		return true
	}
	_, ok := s.uris[uri]
	return ok
}

// URIs returns the tracked documents, or nil when nothing has been reported.
func (s *VisibleSet) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.tracked {
		return nil
	}
	out := make([]string, 0, len(s.uris))
	for u := range s.uris {
		out = append(out, u)
	}
	return out
}

// Option customises a Provider.
type Option func(*Provider)

func WithVisibility(v Visibility) Option {
	return func(p *Provider) { p.visibility = v }
}

// WithLanguages replaces the language routing table.
func WithLanguages(langs map[string]Mode) Option {
	return func(p *Provider) {
		if len(langs) > 0 {
			p.languages = langs
		}
	}
}

func WithMetrics(m metrics.Collector) Option {
	return func(p *Provider) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithEvents(bus *events.Bus) Option {
	return func(p *Provider) { p.bus = bus }
}

// Provider is the editor-facing formatting entry point.
type Provider struct {
	formatter  CodeFormatter
	visibility Visibility
	languages  map[string]Mode
	metrics    metrics.Collector
	bus        *events.Bus
}

func NewProvider(f CodeFormatter, opts ...Option) *Provider {
	p := &Provider{
		formatter: f,
		languages: DefaultLanguages(),
		metrics:   metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ModeFor returns the routing for languageID.
func (p *Provider) ModeFor(languageID string) (Mode, bool) {
	m, ok := p.languages[languageID]
	return m, ok
}

// ProvideEdits formats doc. Hidden documents yield no edits and no request.
func (p *Provider) ProvideEdits(ctx context.Context, doc Document) ([]TextEdit, error) {
	if p.visibility != nil && !p.visibility.IsVisible(doc.URI) {
		return []TextEdit{}, nil
	}
	mode, ok := p.languages[doc.LanguageID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, doc.LanguageID)
	}

	start := time.Now()
	var (
		edits []TextEdit
		err   error
	)
	switch mode {
	case ModeEmbedded:
		edits, err = p.embeddedEdits(ctx, doc.Text)
	default:
		edits, err = p.documentEdits(ctx, doc.Text)
	}
	p.metrics.FormatRequest(string(mode), time.Since(start), err)
	if err != nil {
		p.bus.Publish(events.Event{
			Topic:   events.TopicFormatFailed,
			Payload: events.FormatFailed{URI: doc.URI, Reason: err.Error()},
		})
		return nil, err
	}
	p.bus.Publish(events.Event{
		Topic:   events.TopicFormatServed,
		Payload: events.FormatServed{URI: doc.URI, Mode: string(mode), Took: time.Since(start)},
	})
	return edits, nil
}

func (p *Provider) documentEdits(ctx context.Context, text string) ([]TextEdit, error) {
	formatted, err := p.formatter.FormatCode(ctx, text)
	if err != nil {
		return nil, err
	}
	return []TextEdit{NewTextEdit(text, 0, len(text), formatted)}, nil
}

func (p *Provider) embeddedEdits(ctx context.Context, text string) ([]TextEdit, error) {
	blocks := ExtractBlocks(text, EmbeddedLanguage)
	edits := make([]TextEdit, len(blocks))
	if len(blocks) == 0 {
		return edits, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range blocks {
		i, b := i, b
		g.Go(func() error {
			formatted, err := p.formatter.FormatCode(gctx, b.Content)
			if err != nil {
				return err
			}
			edits[i] = NewTextEdit(text, b.Offset, b.Offset+b.Length, formatted)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return edits, nil
}
