package ai

import (
	"bufio"
	"context"
	"strings"
)

// TaskPrefix starts the first line of every prompt built by this module, so a
// responder can tell what is being asked without parsing prose.
const TaskPrefix = "Task: "

const (
	TaskSummary       = "summary"
	TaskQA            = "qa"
	TaskMissingTopics = "missing_topics"
	TaskEntities      = "entities"
)

// TaskOf returns the task named on the first line of prompt.
func TaskOf(prompt string) string {
	line, _, _ := strings.Cut(prompt, "\n")
	task, ok := strings.CutPrefix(strings.TrimSpace(line), TaskPrefix)
	if !ok {
		return ""
	}
	return strings.TrimSpace(task)
}

// Fixtures answers prompts with canned, deterministic text and never touches
// the network.
type Fixtures struct{}

func (Fixtures) Complete(_ context.Context, prompt string, _ Options) (string, error) {
	title := fixtureTitle(prompt)

	switch TaskOf(prompt) {
	case TaskSummary:
		return "<p>" + title + " explains the topic in a few clear points and links to related guides.</p>", nil
	case TaskQA:
		return "<h3>What is " + title + "?</h3><p>A short overview of the topic.</p>" +
			"<h3>Who is it for?</h3><p>Readers who want a quick answer.</p>", nil
	case TaskMissingTopics:
		return `{"missing_topics":[` +
			`{"topic":"Pricing and cost breakdown","reason":"Readers often ask what it costs.","priority":"high"},` +
			`{"topic":"Common mistakes","reason":"Answer engines favour pages that cover pitfalls.","priority":"medium"},` +
			`{"topic":"Alternatives","reason":"Comparisons are a frequent follow-up question.","priority":"low"}],` +
			`"suggested_questions":["How long does it take?","What does it cost?","Is it worth it?"]}`, nil
	case TaskEntities:
		return `{"entities":[{"name":"` + jsonSafe(title) + `","type":"topic","role":"main","confidence":90}]}`, nil
	}
	return "", ErrEmptyResponse
}

func fixtureTitle(prompt string) string {
	sc := bufio.NewScanner(strings.NewReader(prompt))
	for sc.Scan() {
		if t, ok := strings.CutPrefix(sc.Text(), "Title: "); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	return "This page"
}

func jsonSafe(s string) string {
	return strings.NewReplacer(`\`, ``, `"`, ``).Replace(s)
}
