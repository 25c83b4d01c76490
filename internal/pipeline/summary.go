package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/matna449/annual-report-analyzer/internal/gateway"
	"github.com/matna449/annual-report-analyzer/internal/model"
	"github.com/matna449/annual-report-analyzer/internal/resilience"
)

// SummaryPrompt prefixes every chunk sent for summarization.
const SummaryPrompt = "Summarize the following text: "

const (
	maxSummaryChunks   = 5
	minSentenceLength  = 10
	maxSentenceLength  = 400
	executiveSentences = 10
	outlookSentences   = 5
)

var (
	executiveKeywords = []string{
		"key", "important", "significant", "highlight", "report", "financial",
		"revenue", "profit", "loss", "growth", "decline", "increase", "decrease",
		"billion", "million", "percent", "quarterly", "annual", "fiscal", "year",
	}
	outlookKeywords = []string{
		"outlook", "future", "expect", "anticipate", "forecast", "guidance",
		"plan", "strategy", "strategic", "next year", "coming year", "opportunit",
		"target", "goal", "initiative", "intend",
	}
)

// Summarizer produces executive and outlook summaries, one summarization
// call per selected chunk, falling back to sentence extraction.
type Summarizer struct {
	gw        Inferencer
	maxChunks int
	retries   int
	workers   int
	maxTokens int
}

// NewSummarizer creates a summarizer. maxChunks is capped at five.
// chunkRetries is the number of gateway calls spent on one chunk before the
// smaller fallback model is tried.
func NewSummarizer(gw Inferencer, maxChunks, chunkRetries, workers, maxOutputTokens int) *Summarizer {
	if maxChunks <= 0 || maxChunks > maxSummaryChunks {
		maxChunks = maxSummaryChunks
	}
	if chunkRetries < 1 {
		chunkRetries = 1
	}
	return &Summarizer{
		gw:        gw,
		maxChunks: maxChunks,
		retries:   chunkRetries,
		workers:   workers,
		maxTokens: maxOutputTokens,
	}
}

// Summarize returns the summary of the given kind. hint seeds the first
// executive prompt with already-known metrics.
func (s *Summarizer) Summarize(ctx context.Context, kind model.SummaryKind, text string, chunks []model.Chunk, hint map[string]string) model.Summary {
	out := model.Summary{Kind: kind, Method: model.MethodFallback}
	if strings.TrimSpace(text) == "" {
		return out
	}
	if !live(s.gw) || len(chunks) == 0 {
		out.Text = ExtractiveSummary(kind, text, hint)
		return out
	}

	selected := s.selectChunks(kind, chunks)
	parts := make([]string, len(selected))
	ran := fanOut(ctx, len(selected), s.workers, func(ctx context.Context, i int) {
		prompt := SummaryPrompt
		if i == 0 && kind == model.SummaryExecutive {
			prompt += HintBlock(hint)
		}
		parts[i] = s.summarizeChunk(ctx, selected[i].Index, prompt, selected[i].Text)
	})

	var kept []string
	for i := range selected {
		if !ran[i] || parts[i] == "" {
			out.ChunksFailed++
			continue
		}
		kept = append(kept, parts[i])
	}
	out.ChunksUsed = len(kept)

	if len(kept) == 0 {
		zap.L().Info("summary: no chunk summarized, using extractive fallback",
			zap.String("kind", string(kind)),
			zap.Int("failed", out.ChunksFailed),
		)
		out.Text = ExtractiveSummary(kind, text, hint)
		return out
	}

	out.Text = strings.Join(kept, " ")
	out.Method = model.MethodAPI
	return out
}

// selectChunks picks the leading chunks for executive summaries and the
// chunk with the most outlook language for outlook summaries. Ties go to
// the later chunk, so a document without outlook language uses its last
// chunk.
func (s *Summarizer) selectChunks(kind model.SummaryKind, chunks []model.Chunk) []model.Chunk {
	if kind != model.SummaryOutlook {
		return chunks[:min(s.maxChunks, len(chunks))]
	}
	best, bestHits := len(chunks)-1, -1
	for i, c := range chunks {
		if hits := keywordHits(strings.ToLower(c.Text), outlookKeywords); hits >= bestHits {
			best, bestHits = i, hits
		}
	}
	return chunks[best : best+1]
}

// summarizeChunk spends up to s.retries gateway calls on one chunk, then one
// call against the fallback model. An empty return marks the chunk failed.
func (s *Summarizer) summarizeChunk(ctx context.Context, index int, prompt, input string) string {
	req := gateway.Request{
		Task:   gateway.TaskSummarization,
		Prompt: prompt,
		Input:  input,
		Params: gateway.Params{MaxNewTokens: s.maxTokens},
	}

	for try := 1; try <= s.retries; try++ {
		res := s.gw.Call(ctx, req)
		if res.Live() {
			return strings.TrimSpace(res.Payload.Text)
		}
		zap.L().Debug("summary: chunk attempt failed",
			zap.Int("chunk", index),
			zap.Int("try", try),
			zap.String("status", string(res.Status)),
			zap.Error(res.Err),
		)
		if ctx.Err() != nil || res.Kind() == resilience.KindRateLimited || !s.gw.Available() {
			return ""
		}
	}

	fallback := s.gw.Route(gateway.TaskSummarization).Fallback
	if fallback == "" {
		return ""
	}
	req.Model = fallback
	if res := s.gw.Call(ctx, req); res.Live() {
		return strings.TrimSpace(res.Payload.Text)
	}
	zap.L().Warn("summary: chunk skipped", zap.Int("chunk", index))
	return ""
}

// HintBlock renders known metrics as a prompt preamble. Keys are sorted and
// title-cased.
func HintBlock(hint map[string]string) string {
	if len(hint) == 0 {
		return ""
	}
	keys := make([]string, 0, len(hint))
	for k := range hint {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	title := cases.Title(language.English)
	var b strings.Builder
	b.WriteString("Key financial metrics from the report:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", title.String(strings.ReplaceAll(k, "_", " ")), hint[k])
	}
	return b.String()
}

// ExtractiveSummary selects the highest-scoring sentences by keyword hits,
// ordered by descending score. Texts of at most three sentences are returned
// unchanged.
func ExtractiveSummary(kind model.SummaryKind, text string, hint map[string]string) string {
	sentences := splitSentences(text)
	if len(sentences) <= 3 {
		return text
	}

	keywords, limit := executiveKeywords, executiveSentences
	if kind == model.SummaryOutlook {
		keywords, limit = outlookKeywords, outlookSentences
	}

	type scored struct {
		text  string
		score int
	}
	var candidates []scored
	for _, s := range sentences {
		if n := len(s); n < minSentenceLength || n > maxSentenceLength {
			continue
		}
		candidates = append(candidates, scored{text: s, score: keywordHits(strings.ToLower(s), keywords)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	picked := make([]string, len(candidates))
	for i, c := range candidates {
		picked[i] = c.text
	}
	summary := strings.Join(picked, " ")
	if kind == model.SummaryExecutive {
		summary = HintBlock(hint) + summary
	}
	return summary
}

func keywordHits(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		n += strings.Count(lower, kw)
	}
	return n
}

// splitSentences splits after '.', '!' or '?' followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) && !isSpace(text[i+1]) {
				continue
			}
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
