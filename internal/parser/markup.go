package parser

import (
	"bytes"
	"os"
	"strings"

	"digital-dean/internal/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

func parseMarkdown(filePath string) ([]models.Page, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return appendPage(nil, defaultPageNumber, markdownText(src)), nil
}

// markdownText renders markdown source to plain text, one block per paragraph
func markdownText(src []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && n.Kind() != ast.KindList {
				buf.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				buf.Write(line.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func parseHTML(filePath string) ([]models.Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, err
	}
	return appendPage(nil, defaultPageNumber, htmlText(doc)), nil
}

var htmlBlocks = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "br": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// htmlText collects text nodes, skipping script and style, with line breaks after block elements
func htmlText(doc *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "head") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && htmlBlocks[n.Data] {
			b.WriteString("\n")
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
