package process

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

func ExtractText(body io.Reader) (string, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	extractTextNodes(doc, &sb)

	text := sb.String()
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text), nil
}

// StripTags returns the visible text of an HTML fragment with whitespace
// collapsed. Unparseable input is returned as-is.
func StripTags(markup string) string {
	text, err := ExtractText(strings.NewReader(markup))
	if err != nil {
		return strings.Join(strings.Fields(markup), " ")
	}
	return text
}

func extractTextNodes(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg":
			return
		}
	}

	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractTextNodes(c, sb)
	}
}
