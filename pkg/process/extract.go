package process

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// PageContent is what the importer keeps from a fetched HTML page.
type PageContent struct {
	Title    string
	BodyHTML string
	Links    []string
}

// ExtractPage parses a full HTML document and returns its title, the inner
// HTML of its main content element and its absolute outlinks.
func ExtractPage(body io.Reader, baseURL string) (*PageContent, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	if newBaseStr := findBase(doc); newBaseStr != "" {
		if newBase, err := base.Parse(newBaseStr); err == nil {
			base = newBase
		}
	}

	var links []string
	for _, href := range collectHrefs(doc) {
		if resolved := resolve(href, base); resolved != "" {
			links = append(links, resolved)
		}
	}

	main := findFirst(doc, "article")
	if main == nil {
		main = findFirst(doc, "main")
	}
	if main == nil {
		main = findFirst(doc, "body")
	}

	bodyHTML, err := renderChildren(main)
	if err != nil {
		return nil, err
	}

	return &PageContent{
		Title:    strings.TrimSpace(extractTitle(doc)),
		BodyHTML: strings.TrimSpace(bodyHTML),
		Links:    links,
	}, nil
}

// ContentLinks returns the absolute http(s) targets of the anchors in a
// content fragment, resolved against baseURL.
func ContentLinks(content, baseURL string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var links []string
	for _, href := range collectHrefs(doc) {
		if resolved := resolve(href, base); resolved != "" {
			links = append(links, resolved)
		}
	}
	return links, nil
}

func findBase(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "base" {
		for _, attr := range n.Attr {
			if attr.Key == "href" {
				return attr.Val
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findBase(c); res != "" {
			return res
		}
	}
	return ""
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findFirst(c, tag); res != nil {
			return res
		}
	}
	return nil
}

func renderChildren(n *html.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "script" || c.Data == "style" || c.Data == "noscript") {
			continue
		}
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// collectHrefs returns the raw href of every anchor, in document order.
func collectHrefs(n *html.Node) []string {
	var hrefs []string
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key == "href" {
				if val := strings.TrimSpace(attr.Val); val != "" {
					hrefs = append(hrefs, val)
				}
				break
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		hrefs = append(hrefs, collectHrefs(c)...)
	}
	return hrefs
}

// countElements counts element nodes per tag name for the given tags.
func countElements(n *html.Node, tags ...string) map[string]int {
	counts := make(map[string]int, len(tags))
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, t := range tags {
				if n.Data == t {
					counts[t]++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return counts
}

func resolve(ref string, base *url.URL) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	abs := base.ResolveReference(u)

	scheme := strings.ToLower(abs.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}

	return abs.String()
}

func extractTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil {
			return n.FirstChild.Data
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := extractTitle(c); t != "" {
			return t
		}
	}
	return ""
}
