// Package render derives display fields from stored post text.
//
// Post text is stored exactly as submitted (markdown). Nothing here writes
// back to the store; these are plain functions applied to a fetched Post.
package render

import (
	"bytes"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/sakif/postboard/internal/model"
)

// SnippetLength is the number of characters kept by Snippet.
const SnippetLength = 50

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			gmhtml.WithXHTML(),
		),
	)
	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()
)

func init() {
	ugc.RequireNoReferrerOnLinks(true)
	ugc.AddTargetBlankToFullyQualifiedLinks(true)
}

// Snippet returns the first SnippetLength characters of text with any HTML
// removed. It counts runes, so multi-byte characters are never split.
func Snippet(text string) string {
	plain := strings.TrimSpace(html.UnescapeString(strict.Sanitize(text)))
	if utf8.RuneCountInString(plain) <= SnippetLength {
		return plain
	}
	runes := []rune(plain)
	return string(runes[:SnippetLength])
}

// HTML renders markdown text to sanitized HTML. If the markdown renderer
// fails the escaped plain text is returned instead.
func HTML(text string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return strict.Sanitize(text)
	}
	return string(ugc.SanitizeBytes(buf.Bytes()))
}

// Decorate fills post's TextSnippet and TextHTML from post.Text.
func Decorate(post *model.Post) {
	post.TextSnippet = Snippet(post.Text)
	post.TextHTML = HTML(post.Text)
}
