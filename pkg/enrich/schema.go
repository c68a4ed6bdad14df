package enrich

import (
	"context"
	"regexp"
	"strings"

	"github.com/devraulu/airank/pkg/analyzer"
	"github.com/devraulu/airank/pkg/scoring"
)

const (
	MetaSchema        = "schema_recommendations"
	MetaSchemaLastRun = "schema_last_run"
	MetaSchemaError   = "schema_error"
)

var (
	faqMarker     = regexp.MustCompile(`(?i)FAQPage|yoast/faq-block`)
	howToMarker   = regexp.MustCompile(`(?i)HowTo`)
	articleMarker = regexp.MustCompile(`(?i)schema\.org/Article|NewsArticle|BlogPosting`)

	questionHeading = regexp.MustCompile(`(?i)<h2[^>]*>.*\?`)
	stepPattern     = regexp.MustCompile(`(?i)\bstep\s*1\b|<ol\b|\bhow to\b`)
)

type ExistingSchema struct {
	FAQ     bool `json:"faq"`
	HowTo   bool `json:"howto"`
	Article bool `json:"article"`
}

type SchemaRecommendation struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type SchemaReport struct {
	Existing    ExistingSchema         `json:"existing"`
	Recommended []SchemaRecommendation `json:"recommended"`
}

// Schema detects structured-data markers in the item body and recommends the
// types it lacks.
func (s *Service) Schema(ctx context.Context, ev analyzer.Event) error {
	err := s.schema(ctx, ev)
	return s.record(ctx, ev.ItemID, MetaSchemaLastRun, MetaSchemaError, err)
}

func (s *Service) schema(ctx context.Context, ev analyzer.Event) error {
	item, err := s.item(ctx, ev.ItemID)
	if err != nil {
		return err
	}
	return s.store.SetMeta(ctx, ev.ItemID, MetaSchema, RecommendSchema(item.Body, ev.Metrics))
}

func RecommendSchema(content string, m scoring.Metrics) SchemaReport {
	report := SchemaReport{
		Existing: ExistingSchema{
			FAQ:     faqMarker.MatchString(content),
			HowTo:   howToMarker.MatchString(content),
			Article: articleMarker.MatchString(content),
		},
		Recommended: []SchemaRecommendation{},
	}

	if !report.Existing.Article {
		report.Recommended = append(report.Recommended, SchemaRecommendation{
			Type:   "Article",
			Reason: "AI search engines rely on Article metadata such as headline, author and dates.",
		})
	}

	hasQA := m.HasAIQA || m.QuestionMarks >= 2
	looksLikeFAQ := strings.Contains(strings.ToLower(content), "faq") || questionHeading.MatchString(content)
	if !report.Existing.FAQ && (hasQA || looksLikeFAQ) {
		report.Recommended = append(report.Recommended, SchemaRecommendation{
			Type:   "FAQPage",
			Reason: "FAQ markup lets assistants lift question and answer pairs directly.",
		})
	}

	if !report.Existing.HowTo && stepPattern.MatchString(content) {
		report.Recommended = append(report.Recommended, SchemaRecommendation{
			Type:   "HowTo",
			Reason: "HowTo markup makes step-by-step instructions explicit.",
		})
	}

	return report
}
