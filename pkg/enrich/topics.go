package enrich

import (
	"context"
	"strings"

	"github.com/devraulu/airank/pkg/ai"
	"github.com/devraulu/airank/pkg/analyzer"
)

const (
	MetaMissingTopics        = "missing_topics"
	MetaMissingTopicsLastRun = "missing_topics_last_run"
	MetaMissingTopicsError   = "missing_topics_error"
)

type Topic struct {
	Topic    string `json:"topic"`
	Reason   string `json:"reason"`
	Priority string `json:"priority"`
}

type MissingTopics struct {
	Topics             []Topic  `json:"missing_topics"`
	SuggestedQuestions []string `json:"suggested_questions"`
}

const topicsInstructions = `Identify the subtopics the page below does not cover but should, so AI
assistants can answer follow-up questions from it.
Reply with a JSON object only:
{"missing_topics":[{"topic":"...","reason":"...","priority":"high|medium|low"}],"suggested_questions":["..."]}
- Provide 4 to 8 missing_topics.`

// MissingTopics asks the model which subtopics the item lacks.
func (s *Service) MissingTopics(ctx context.Context, ev analyzer.Event) error {
	err := s.missingTopics(ctx, ev.ItemID)
	return s.record(ctx, ev.ItemID, MetaMissingTopicsLastRun, MetaMissingTopicsError, err)
}

func (s *Service) missingTopics(ctx context.Context, id int64) error {
	item, err := s.item(ctx, id)
	if err != nil {
		return err
	}

	instructions := topicsInstructions
	entities, err := s.store.EntitiesForItem(ctx, id)
	if err != nil {
		return err
	}
	if len(entities) > 0 {
		names := make([]string, 0, len(entities))
		for _, e := range entities {
			names = append(names, e.Name)
		}
		instructions += "\nKnown entities: " + strings.Join(names, ", ")
	}

	resp, err := s.ai.Complete(ctx, s.prompt(ai.TaskMissingTopics, item, instructions), s.cfg.Mode.Options())
	if err != nil {
		return err
	}

	var raw MissingTopics
	if err := ai.DecodeJSON(resp, &raw); err != nil {
		return err
	}

	result := MissingTopics{Topics: []Topic{}, SuggestedQuestions: []string{}}
	for _, t := range raw.Topics {
		topic := Topic{Topic: s.plain(t.Topic), Reason: s.plain(t.Reason), Priority: strings.ToLower(s.plain(t.Priority))}
		if topic.Topic == "" {
			continue
		}
		switch topic.Priority {
		case "high", "medium", "low":
		default:
			topic.Priority = "medium"
		}
		result.Topics = append(result.Topics, topic)
	}
	for _, q := range raw.SuggestedQuestions {
		if q = s.plain(q); q != "" {
			result.SuggestedQuestions = append(result.SuggestedQuestions, q)
		}
	}

	return s.store.SetMeta(ctx, id, MetaMissingTopics, result)
}
