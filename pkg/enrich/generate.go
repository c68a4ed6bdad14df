package enrich

import (
	"context"
	"strings"

	"github.com/devraulu/airank/pkg/ai"
	"github.com/devraulu/airank/pkg/analyzer"
)

const (
	MetaSummaryError = "ai_summary_error"
	MetaQAError      = "ai_qa_block_error"
)

const summaryInstructions = `Write a clear summary of the page below in 3 to 6 sentences.
Focus on what it covers, who it is for and the key takeaways.
Reply with simple HTML paragraphs only.`

const qaInstructions = `Write 3 to 5 questions a reader might ask about the page below, each
followed by a short answer taken from the page.
Reply with simple HTML: an <h3> per question followed by a <p> answer.`

// GenerateSummary stores a sanitized AI summary on the item. The summary
// counts towards the score on the next analysis.
func (s *Service) GenerateSummary(ctx context.Context, id int64) (string, error) {
	return s.generate(ctx, id, ai.TaskSummary, summaryInstructions, analyzer.MetaAISummary, MetaSummaryError)
}

// GenerateQA stores a sanitized question and answer block on the item.
func (s *Service) GenerateQA(ctx context.Context, id int64) (string, error) {
	return s.generate(ctx, id, ai.TaskQA, qaInstructions, analyzer.MetaAIQA, MetaQAError)
}

func (s *Service) generate(ctx context.Context, id int64, task, instructions, key, errKey string) (string, error) {
	out, err := s.complete(ctx, id, task, instructions)
	if err == nil {
		err = s.store.SetMeta(ctx, id, key, out)
	}
	if err != nil {
		if serr := s.store.SetMeta(ctx, id, errKey, err.Error()); serr != nil {
			return "", serr
		}
		return "", err
	}
	return out, s.store.DeleteMeta(ctx, id, errKey)
}

func (s *Service) complete(ctx context.Context, id int64, task, instructions string) (string, error) {
	item, err := s.item(ctx, id)
	if err != nil {
		return "", err
	}
	resp, err := s.ai.Complete(ctx, s.prompt(task, item, instructions), s.cfg.Mode.Options())
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(s.ugc.Sanitize(stripFence(resp)))
	if out == "" {
		return "", ai.ErrEmptyResponse
	}
	return out, nil
}

// stripFence removes a surrounding Markdown code fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
