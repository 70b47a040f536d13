package formatter

import (
	"context"

	"javafmtd/internal/runtime/commands"
)

const (
	CommandFormatDocument = "format.document"
	CommandFormatFile     = "format.file"
)

// FormatDocumentCommand asks for edits that format an editor document.
type FormatDocumentCommand struct {
	Document Document
}

func (FormatDocumentCommand) Name() string { return CommandFormatDocument }

type FormatDocumentResponse struct {
	Edits []TextEdit `json:"edits"`
}

// FormatFileCommand asks the backend to format a file on disk.
type FormatFileCommand struct {
	Path string
}

func (FormatFileCommand) Name() string { return CommandFormatFile }

type FormatFileResponse struct {
	Formatted string `json:"formatted"`
}

// FileFormatter formats files by path.
type FileFormatter interface {
	FormatFile(ctx context.Context, path string) (string, error)
}

// RegisterHandlers wires the format commands into d.
func RegisterHandlers(d *commands.Dispatcher, p *Provider, files FileFormatter) {
	d.Register(CommandFormatDocument, commands.Typed(func(ctx context.Context, req FormatDocumentCommand) (commands.Response, error) {
		edits, err := p.ProvideEdits(ctx, req.Document)
		if err != nil {
			return nil, err
		}
		return FormatDocumentResponse{Edits: edits}, nil
	}))
	d.Register(CommandFormatFile, commands.Typed(func(ctx context.Context, req FormatFileCommand) (commands.Response, error) {
		out, err := files.FormatFile(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		return FormatFileResponse{Formatted: out}, nil
	}))
}
