package process

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/devraulu/airank/pkg/scoring"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// ExtractMetrics computes the scoring signals of an item from its title and
// raw content markup. siteURL decides which links are internal.
func ExtractMetrics(title, content, siteURL string) (scoring.Metrics, error) {
	var m scoring.Metrics

	text := StripTags(title + " " + content)
	words := strings.Fields(text)
	m.WordCount = len(words)

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return m, err
	}

	headings := countElements(doc, "h2", "h3")
	m.H2Count = headings["h2"]
	m.H3Count = headings["h3"]

	m.InternalLinks, m.ExternalLinks = classifyLinks(collectHrefs(doc), Host(siteURL))

	m.QuestionMarks = strings.Count(content, "?")

	lower := strings.ToLower(content)
	m.HasFAQKeyword = strings.Contains(lower, "faq") || strings.Contains(lower, "frequently asked questions")

	m.AvgSentenceLength = avgSentenceLength(text, m.WordCount)

	return m, nil
}

// classifyLinks splits hrefs into internal and external. Relative references
// are internal; fragment-only and non-http(s) links are ignored.
func classifyLinks(hrefs []string, siteHost string) (internal, external int) {
	for _, href := range hrefs {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}

		if u.Scheme == "" && u.Host == "" {
			if u.Path == "" && u.RawQuery == "" {
				continue
			}
			internal++
			continue
		}

		scheme := strings.ToLower(u.Scheme)
		if scheme != "" && scheme != "http" && scheme != "https" {
			continue
		}
		if scheme == "" {
			// protocol-relative
			u.Scheme = "https"
		}

		host := Host(u.String())
		if siteHost != "" && host == siteHost {
			internal++
		} else {
			external++
		}
	}
	return internal, external
}

func avgSentenceLength(text string, wordCount int) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	sentences := 0
	for _, part := range sentenceBoundary.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			sentences++
		}
	}

	return float64(wordCount) / float64(max(1, sentences))
}
