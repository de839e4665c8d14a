package partition

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/corpusworks/ingest/internal/element"
	"github.com/corpusworks/ingest/pkg/filedata"
)

// PartitionMarkdown walks the goldmark AST and emits one element per
// top-level block: headings become Title elements, fenced/indented code
// becomes CodeSnippet, list items become ListItem, everything else
// NarrativeText.
func PartitionMarkdown(path string, fd filedata.FileData) ([]element.Element, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown file: %w", err)
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(content))
	filename := fd.SourceIdentifiers.Filename

	var els []element.Element
	add := func(elType, elText string, extra map[string]any) {
		elText = strings.TrimSpace(elText)
		if elText == "" {
			return
		}
		meta := map[string]any{"filename": filename}
		for k, v := range extra {
			meta[k] = v
		}
		els = append(els, element.Element{
			ID:       elementID(filename, elText, len(els)),
			Type:     elType,
			Text:     elText,
			Metadata: meta,
		})
	}

	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			add("Title", string(n.Text(content)), map[string]any{
				"heading_level": n.Level,
			})
		case *ast.FencedCodeBlock:
			add("CodeSnippet", blockLines(n, content), map[string]any{
				"language": string(n.Language(content)),
			})
		case *ast.CodeBlock:
			add("CodeSnippet", blockLines(n, content), nil)
		case *ast.List:
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				add("ListItem", string(item.Text(content)), nil)
			}
		default:
			add("NarrativeText", string(node.Text(content)), nil)
		}
	}
	return els, nil
}

// blockLines reassembles the raw source lines of a code block.
func blockLines(node ast.Node, source []byte) string {
	var sb strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}
