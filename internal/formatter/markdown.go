package formatter

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractedBlock is the body of one fenced code block. Offset and Length are
// byte positions in the source document.
type ExtractedBlock struct {
	Content string
	Offset  int
	Length  int
}

var markdownParser = goldmark.New().Parser()

// ExtractBlocks returns the fenced code blocks tagged with language in
// document order. Blocks whose body is not one contiguous run of source
// bytes (nested in quotes or list items with stripped prefixes) are skipped.
func ExtractBlocks(source string, language string) []ExtractedBlock {
	src := []byte(source)
	doc := markdownParser.Parse(text.NewReader(src))

	var blocks []ExtractedBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if string(fcb.Language(src)) != language {
			return ast.WalkSkipChildren, nil
		}
		if b, ok := contiguousBody(fcb, src); ok {
			blocks = append(blocks, b)
		}
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

func contiguousBody(fcb *ast.FencedCodeBlock, src []byte) (ExtractedBlock, bool) {
	lines := fcb.Lines()
	if lines.Len() == 0 {
		return ExtractedBlock{}, false
	}
	start := lines.At(0).Start
	stop := start
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if seg.Padding > 0 || seg.Start != stop {
			return ExtractedBlock{}, false
		}
		stop = seg.Stop
	}
	return ExtractedBlock{
		Content: string(src[start:stop]),
		Offset:  start,
		Length:  stop - start,
	}, true
}
