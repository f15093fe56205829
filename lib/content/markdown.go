// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	markdownParserInstance goldmark.Markdown
	markdownParserOnce     sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownParserInstance
}

func parseMarkdown(source []byte) ast.Node {
	return getMarkdownParser().Parser().Parse(text.NewReader(source))
}

// markdownFenceLanguages are the info strings that mark a fence as
// wrapping markdown rather than showing code.
var markdownFenceLanguages = map[string]bool{
	"":         true,
	"markdown": true,
	"md":       true,
}

// UnwrapFence returns the body of document when the entire document is
// one fenced code block tagged markdown, md, or untagged. Anything
// else, including a document with text outside the fence, is returned
// unchanged.
func UnwrapFence(document string) string {
	source := []byte(strings.TrimSpace(document))
	if len(source) == 0 {
		return document
	}

	root := parseMarkdown(source)
	if root.ChildCount() != 1 {
		return document
	}
	fence, ok := root.FirstChild().(*ast.FencedCodeBlock)
	if !ok {
		return document
	}
	if !markdownFenceLanguages[strings.ToLower(string(fence.Language(source)))] {
		return document
	}
	// An unclosed fence runs to the end of the document; that is
	// truncated output, not a wrapper.
	if !bytes.HasSuffix(bytes.TrimRight(source, " \t"), []byte("```")) &&
		!bytes.HasSuffix(bytes.TrimRight(source, " \t"), []byte("~~~")) {
		return document
	}

	var body bytes.Buffer
	lines := fence.Lines()
	for i := range lines.Len() {
		segment := lines.At(i)
		body.Write(segment.Value(source))
	}
	return strings.TrimSpace(body.String())
}

// Heading is one entry of a document outline.
type Heading struct {
	Level int
	Text  string
}

// Outline returns the document's headings in order.
func Outline(document string) []Heading {
	source := []byte(document)
	root := parseMarkdown(source)

	var headings []Heading
	ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := node.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		headings = append(headings, Heading{
			Level: heading.Level,
			Text:  inlineText(heading, source),
		})
		return ast.WalkSkipChildren, nil
	})
	return headings
}

// inlineText concatenates the text segments under node.
func inlineText(node ast.Node, source []byte) string {
	var builder strings.Builder
	ast.Walk(node, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch typed := child.(type) {
		case *ast.Text:
			builder.Write(typed.Segment.Value(source))
			if typed.SoftLineBreak() || typed.HardLineBreak() {
				builder.WriteByte(' ')
			}
		case *ast.String:
			builder.Write(typed.Value)
		case *ast.CodeSpan:
			for grandchild := typed.FirstChild(); grandchild != nil; grandchild = grandchild.NextSibling() {
				if segment, ok := grandchild.(*ast.Text); ok {
					builder.Write(segment.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(builder.String())
}
