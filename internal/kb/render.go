package kb

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
)

// RenderHTML converts a markdown article to HTML for the API's HTML
// view. Non-markdown articles are wrapped in <pre> unchanged.
func RenderHTML(item Item) (string, error) {
	if !strings.HasSuffix(strings.ToLower(item.Name), ".md") {
		var b strings.Builder
		b.WriteString("<pre>")
		writeEscaped(&b, item.Content)
		b.WriteString("</pre>")
		return b.String(), nil
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(item.Content), &buf); err != nil {
		return "", fmt.Errorf("render markdown %s: %w", item.Name, err)
	}
	return buf.String(), nil
}

func writeEscaped(b *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
}
