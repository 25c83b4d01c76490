// Package chunk splits documents into overlapping, token-bounded windows.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/model"
)

// Options configures Split.
type Options struct {
	SizeChars    int
	OverlapChars int
	MaxTokens    int
}

// Split cuts text into windows of at most SizeChars bytes, preferring to end
// each window just after the last ". " in its final fifth. Consecutive
// windows overlap by OverlapChars. A window whose token estimate exceeds
// MaxTokens is re-split with half the window size, cutting at whitespace
// where the window has any. A single word is never split further, so a
// budget smaller than one word's estimate yields one chunk per word.
// Offsets refer to text and every returned chunk satisfies
// Text == text[Start:End].
func Split(text string, opts Options) []model.Chunk {
	if text == "" {
		return nil
	}
	if opts.SizeChars <= 0 {
		opts.SizeChars = len(text)
	}
	if opts.OverlapChars < 0 {
		opts.OverlapChars = 0
	}

	chunks := split(text, 0, opts.SizeChars, opts.OverlapChars, opts.MaxTokens, false)
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

func split(text string, base, size, overlap, maxTokens int, wordCut bool) []model.Chunk {
	var out []model.Chunk
	start := 0
	for start < len(text) {
		end := windowEnd(text, start, size, wordCut)
		piece := text[start:end]
		tokens := EstimateTokens(piece)

		if maxTokens > 0 && tokens > maxTokens && size > 1 && len(strings.Fields(piece)) > 1 {
			out = append(out, split(piece, base+start, size/2, overlap/2, maxTokens, true)...)
		} else {
			if maxTokens > 0 && tokens > maxTokens {
				zap.L().Debug("chunk: single word exceeds token budget",
					zap.Int("tokens", tokens), zap.Int("max_tokens", maxTokens))
			}
			out = append(out, model.Chunk{
				Start:  base + start,
				End:    base + end,
				Text:   piece,
				Tokens: tokens,
			})
		}

		if end >= len(text) {
			break
		}
		next := alignBack(text, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// windowEnd picks the end of the window starting at start. With wordCut a
// window without a sentence boundary ends after its last whitespace.
func windowEnd(text string, start, size int, wordCut bool) int {
	if len(text)-start <= size {
		return len(text)
	}

	end := alignBack(text, start+size)
	if end <= start {
		end = alignForward(text, start+1)
	}

	searchFrom := start + size*8/10
	if searchFrom < end {
		if i := strings.LastIndex(text[searchFrom:end], ". "); i >= 0 {
			return searchFrom + i + 2
		}
	}
	if wordCut {
		if i := strings.LastIndexFunc(text[start:end], unicode.IsSpace); i > 0 {
			_, w := utf8.DecodeRuneInString(text[start+i:])
			return start + i + w
		}
	}
	return end
}

func alignBack(text string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(text) {
		return len(text)
	}
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

func alignForward(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}
