// Package scoring turns content metrics into a 0-100 AI visibility score.
package scoring

// Metrics is a snapshot of the structural signals of one item. Absent keys in
// a stored blob decode to zero values.
type Metrics struct {
	WordCount         int     `json:"word_count"`
	H2Count           int     `json:"h2_count"`
	H3Count           int     `json:"h3_count"`
	InternalLinks     int     `json:"internal_links"`
	ExternalLinks     int     `json:"external_links"`
	QuestionMarks     int     `json:"question_marks"`
	HasFAQKeyword     bool    `json:"has_faq_keyword"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	HasAISummary      bool    `json:"has_ai_summary"`
	HasAIQA           bool    `json:"has_ai_qa"`
}

func (m Metrics) Headings() int {
	return m.H2Count + m.H3Count
}

// Adjuster rewrites the rule-table score before the final clamp.
type Adjuster func(score int, m Metrics) int

const (
	MinScore = 0
	MaxScore = 100
)

// Score applies the rule table to m, then each adjuster in order, and clamps
// the result to [MinScore, MaxScore].
func Score(m Metrics, adjust ...Adjuster) int {
	score := wordCountPoints(m.WordCount) +
		headingPoints(m.Headings()) +
		internalLinkPoints(m.InternalLinks) +
		questionPoints(m.QuestionMarks, m.HasFAQKeyword) +
		readabilityPoints(m.AvgSentenceLength)

	score = min(score, MaxScore)

	for _, fn := range adjust {
		if fn != nil {
			score = fn(score, m)
		}
	}

	return max(MinScore, min(MaxScore, score))
}

func wordCountPoints(wc int) int {
	switch {
	case wc >= 300:
		return 30
	case wc >= 150:
		return 20
	case wc >= 80:
		return 10
	}
	return 0
}

func headingPoints(n int) int {
	switch {
	case n >= 4:
		return 20
	case n >= 2:
		return 12
	case n >= 1:
		return 6
	}
	return 0
}

func internalLinkPoints(n int) int {
	switch {
	case n >= 8:
		return 20
	case n >= 4:
		return 12
	case n >= 2:
		return 6
	}
	return 0
}

func questionPoints(questions int, faq bool) int {
	switch {
	case questions >= 3 || faq:
		return 15
	case questions >= 1:
		return 8
	}
	return 0
}

// readabilityPoints rewards an average sentence length in the 12-25 word band.
func readabilityPoints(asl float64) int {
	if asl <= 0 {
		return 0
	}
	switch {
	case asl >= 12 && asl <= 25:
		return 15
	case asl >= 8 && asl <= 30:
		return 8
	}
	return 0
}
