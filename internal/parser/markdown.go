package parser

import (
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"querybot/internal/models"
)

// parseMarkdown walks the goldmark AST and splits the document at headings,
// so each chunk carries the heading it appeared under as its section.
func (p *Parser) parseMarkdown(filePath string) ([]models.Chunk, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(source))

	var chunks []models.Chunk
	section := ""
	var buf strings.Builder
	flush := func() {
		if strings.TrimSpace(buf.String()) != "" {
			chunks = append(chunks, p.chunk(buf.String(), section)...)
		}
		buf.Reset()
	}

	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		if heading, ok := node.(*ast.Heading); ok {
			flush()
			section = nodeText(heading, source)
			continue
		}
		buf.WriteString(nodeText(node, source))
		buf.WriteString("\n")
	}
	flush()
	return chunks, nil
}

// nodeText collects the plain text of a node and its descendants.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch child.Kind() {
		case ast.KindText:
			t := child.(*ast.Text)
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case ast.KindCodeBlock, ast.KindFencedCodeBlock:
			lines := child.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
