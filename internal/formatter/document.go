package formatter

import (
	"fmt"
	"sort"
)

// Document is an editor buffer submitted for formatting.
type Document struct {
	URI        string `json:"uri"`
	LanguageID string `json:"language_id"`
	Text       string `json:"text"`
}

// Position is zero-based; Character counts UTF-16 code units as editors do.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextEdit replaces the bytes [StartOffset, EndOffset) of the submitted text.
type TextEdit struct {
	Range       Range  `json:"range"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	NewText     string `json:"new_text"`
}

// NewTextEdit builds an edit over text[start:end].
func NewTextEdit(text string, start, end int, newText string) TextEdit {
	return TextEdit{
		Range:       Range{Start: PositionAt(text, start), End: PositionAt(text, end)},
		StartOffset: start,
		EndOffset:   end,
		NewText:     newText,
	}
}

// PositionAt converts a byte offset into a line/character position.
// Offsets past the end clamp to the end of text.
func PositionAt(text string, offset int) Position {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	var pos Position
	lineStart := 0
	for i := 0; i < offset; i++ {
		if text[i] == '\n' {
			pos.Line++
			lineStart = i + 1
		}
	}
	for _, r := range text[lineStart:offset] {
		// astral runes take a surrogate pair
		if r > 0xFFFF {
			pos.Character += 2
		} else {
			pos.Character++
		}
	}
	return pos
}

// ApplyEdits returns text with non-overlapping edits applied.
func ApplyEdits(text string, edits []TextEdit) (string, error) {
	sorted := append([]TextEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartOffset < sorted[j].StartOffset })

	out := make([]byte, 0, len(text))
	cursor := 0
	for _, e := range sorted {
		if e.StartOffset < cursor || e.EndOffset < e.StartOffset || e.EndOffset > len(text) {
			return "", fmt.Errorf("edit [%d,%d) out of order or out of range", e.StartOffset, e.EndOffset)
		}
		out = append(out, text[cursor:e.StartOffset]...)
		out = append(out, e.NewText...)
		cursor = e.EndOffset
	}
	out = append(out, text[cursor:]...)
	return string(out), nil
}
