package model

// Sentiment is a three-way sentiment label.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Distribution is a probability distribution over the three labels.
type Distribution struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Get returns the probability of label.
func (d Distribution) Get(label Sentiment) float64 {
	switch label {
	case SentimentPositive:
		return d.Positive
	case SentimentNegative:
		return d.Negative
	default:
		return d.Neutral
	}
}

// Argmax returns the most likely label. Exact ties resolve to neutral first,
// then positive.
func (d Distribution) Argmax() Sentiment {
	best := SentimentNeutral
	for _, label := range []Sentiment{SentimentPositive, SentimentNegative} {
		if d.Get(label) > d.Get(best) {
			best = label
		}
	}
	return best
}

// ChunkSentiment is the per-chunk sentiment outcome.
type ChunkSentiment struct {
	Index    int       `json:"index"`
	Start    int       `json:"start"`
	End      int       `json:"end"`
	Label    Sentiment `json:"label,omitempty"`
	Score    float64   `json:"score,omitempty"`
	Attempts int       `json:"attempts"`
	Status   string    `json:"status"`
	Skipped  bool      `json:"skipped,omitempty"`
}

// SentimentResult is the document-level sentiment.
type SentimentResult struct {
	Label         Sentiment        `json:"sentiment"`
	Score         float64          `json:"score"`
	Distribution  Distribution     `json:"distribution"`
	Explanation   string           `json:"explanation"`
	Method        Method           `json:"method"`
	ChunksUsed    int              `json:"chunks_used"`
	ChunksSkipped int              `json:"chunks_skipped"`
	Chunks        []ChunkSentiment `json:"chunks,omitempty"`
}

// LabelAt returns the sentiment of the chunk covering byte offset pos.
func (s SentimentResult) LabelAt(pos int) (Sentiment, bool) {
	for _, c := range s.Chunks {
		if c.Label != "" && pos >= c.Start && pos < c.End {
			return c.Label, true
		}
	}
	return "", false
}
