package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/gateway"
	"github.com/matna449/annual-report-analyzer/internal/model"
)

// NoTextExplanation is the sentiment explanation for empty input.
const NoTextExplanation = "No text to analyze"

var (
	positiveTerms = []string{
		"increase", "growth", "profit", "success", "improve", "positive",
		"advantage", "opportunity", "strong", "exceed", "gain",
	}
	negativeTerms = []string{
		"decrease", "decline", "loss", "risk", "challenge", "negative",
		"difficult", "weak", "fail", "threat", "liability",
	}
)

// SentimentAnalyzer scores document sentiment from per-chunk model calls,
// falling back to keyword counts when no chunk yields a live result.
type SentimentAnalyzer struct {
	gw        Inferencer
	maxChunks int
	workers   int
}

// NewSentimentAnalyzer creates an analyzer that scores at most maxChunks
// chunks with up to workers concurrent calls.
func NewSentimentAnalyzer(gw Inferencer, maxChunks, workers int) *SentimentAnalyzer {
	if maxChunks <= 0 {
		maxChunks = 5
	}
	return &SentimentAnalyzer{gw: gw, maxChunks: maxChunks, workers: workers}
}

// Analyze returns the aggregated sentiment of the leading chunks.
func (a *SentimentAnalyzer) Analyze(ctx context.Context, text string, chunks []model.Chunk) model.SentimentResult {
	if strings.TrimSpace(text) == "" {
		return NeutralSentiment(NoTextExplanation)
	}
	if !live(a.gw) || len(chunks) == 0 {
		return KeywordSentiment(text)
	}

	sample := chunks[:min(a.maxChunks, len(chunks))]
	per := make([]model.ChunkSentiment, len(sample))
	dists := make([]*model.Distribution, len(sample))

	ran := fanOut(ctx, len(sample), a.workers, func(ctx context.Context, i int) {
		c := sample[i]
		res := a.gw.Call(ctx, gateway.Request{Task: gateway.TaskSentiment, Input: c.Text})
		per[i] = model.ChunkSentiment{
			Index:    c.Index,
			Start:    c.Start,
			End:      c.End,
			Attempts: res.Attempts,
			Status:   string(res.Status),
		}
		if !res.Live() {
			zap.L().Debug("sentiment: chunk not usable",
				zap.Int("chunk", c.Index),
				zap.String("status", string(res.Status)),
				zap.Error(res.Err),
			)
			return
		}
		d, ok := distributionFrom(res.Payload.Labels)
		if !ok {
			return
		}
		label := d.Argmax()
		per[i].Label = label
		per[i].Score = d.Get(label)
		dists[i] = &d
	})

	var sum model.Distribution
	used := 0
	for i := range sample {
		if !ran[i] {
			per[i] = model.ChunkSentiment{
				Index: sample[i].Index, Start: sample[i].Start, End: sample[i].End,
				Status: "skipped", Skipped: true,
			}
			continue
		}
		if dists[i] == nil {
			continue
		}
		sum.Positive += dists[i].Positive
		sum.Neutral += dists[i].Neutral
		sum.Negative += dists[i].Negative
		used++
	}

	if used == 0 {
		zap.L().Info("sentiment: no usable chunk results, using keyword fallback")
		res := KeywordSentiment(text)
		res.Chunks = per
		res.ChunksSkipped = len(sample)
		return res
	}

	avg := model.Distribution{
		Positive: sum.Positive / float64(used),
		Neutral:  sum.Neutral / float64(used),
		Negative: sum.Negative / float64(used),
	}
	label := avg.Argmax()
	score := clamp01(avg.Get(label))

	return model.SentimentResult{
		Label:         label,
		Score:         score,
		Distribution:  avg,
		Explanation:   explainSentiment(label, score),
		Method:        model.MethodAPI,
		ChunksUsed:    used,
		ChunksSkipped: len(sample) - used,
		Chunks:        per,
	}
}

// distributionFrom maps classifier labels onto the three sentiments.
// Labels other than positive and negative count as neutral.
func distributionFrom(labels []gateway.Label) (model.Distribution, bool) {
	var d model.Distribution
	if len(labels) == 0 {
		return d, false
	}
	for _, l := range labels {
		switch strings.ToLower(strings.TrimSpace(l.Label)) {
		case "positive", "pos":
			d.Positive += l.Score
		case "negative", "neg":
			d.Negative += l.Score
		default:
			d.Neutral += l.Score
		}
	}
	return d, true
}

// KeywordSentiment scores text by counting finance terms. One side wins when
// its count is at least 1.5 times the other's.
func KeywordSentiment(text string) model.SentimentResult {
	if strings.TrimSpace(text) == "" {
		return NeutralSentiment(NoTextExplanation)
	}

	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, t := range positiveTerms {
		pos += strings.Count(lower, t)
	}
	for _, t := range negativeTerms {
		neg += strings.Count(lower, t)
	}

	label := model.SentimentNeutral
	score := 0.5
	if total := pos + neg; total > 0 {
		margin := float64(pos-neg) / float64(total)
		switch {
		case float64(pos) >= 1.5*float64(neg) && pos > neg:
			label = model.SentimentPositive
			score = clamp(0.5+0.4*margin, 0.5, 0.9)
		case float64(neg) >= 1.5*float64(pos) && neg > pos:
			label = model.SentimentNegative
			score = clamp(0.5-0.4*margin, 0.5, 0.9)
		}
	}

	return model.SentimentResult{
		Label:        label,
		Score:        score,
		Distribution: spread(label, score),
		Explanation:  explainSentiment(label, score),
		Method:       model.MethodFallback,
	}
}

// NeutralSentiment is the neutral result used for empty input and failures.
func NeutralSentiment(explanation string) model.SentimentResult {
	return model.SentimentResult{
		Label:        model.SentimentNeutral,
		Score:        0.5,
		Distribution: spread(model.SentimentNeutral, 0.5),
		Explanation:  explanation,
		Method:       model.MethodFallback,
	}
}

// spread puts score on label and splits the rest evenly.
func spread(label model.Sentiment, score float64) model.Distribution {
	rest := (1 - score) / 2
	d := model.Distribution{Positive: rest, Neutral: rest, Negative: rest}
	switch label {
	case model.SentimentPositive:
		d.Positive = score
	case model.SentimentNegative:
		d.Negative = score
	default:
		d.Neutral = score
	}
	return d
}

func confidenceBand(score float64) string {
	switch {
	case score > 0.8:
		return "high"
	case score > 0.6:
		return "moderate"
	default:
		return "low"
	}
}

func explainSentiment(label model.Sentiment, score float64) string {
	var lead string
	switch label {
	case model.SentimentPositive:
		lead = "The text contains predominantly positive financial language"
	case model.SentimentNegative:
		lead = "The text contains predominantly negative financial language"
	default:
		lead = "The text contains balanced or neutral financial language"
	}
	return fmt.Sprintf("%s (%s confidence, %.2f).", lead, confidenceBand(score), score)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
