package scoring

type SignalStatus string

const (
	StatusRed    SignalStatus = "red"
	StatusOrange SignalStatus = "orange"
	StatusGreen  SignalStatus = "green"
)

type Signal struct {
	Status SignalStatus `json:"status"`
	Text   string       `json:"text"`
}

// Signals converts metrics into the checklist shown next to a score.
func Signals(m Metrics) []Signal {
	var out []Signal

	switch {
	case m.WordCount < 200:
		out = append(out, Signal{StatusRed, "Content is too short for AI to understand well."})
	case m.WordCount < 500:
		out = append(out, Signal{StatusOrange, "Content is a bit short; consider adding more detail."})
	default:
		out = append(out, Signal{StatusGreen, "Content length is good."})
	}

	if m.H2Count > 0 {
		out = append(out, Signal{StatusGreen, "Good use of H2 headings."})
	} else {
		out = append(out, Signal{StatusOrange, "Add at least one H2 heading to structure your content."})
	}

	if m.InternalLinks < 1 {
		out = append(out, Signal{StatusRed, "No internal links found. Add links to related posts."})
	} else {
		out = append(out, Signal{StatusGreen, "Internal linking looks good."})
	}

	if m.HasAIQA {
		out = append(out, Signal{StatusGreen, "Q&A content detected."})
	} else {
		out = append(out, Signal{StatusOrange, "No Q&A / FAQ content detected. AI prefers FAQ-style signals."})
	}

	if m.HasAISummary {
		out = append(out, Signal{StatusGreen, "AI summary exists."})
	} else {
		out = append(out, Signal{StatusOrange, "No AI summary yet. AI summaries boost visibility."})
	}

	return out
}
