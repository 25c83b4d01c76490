package gateway

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/matna449/annual-report-analyzer/internal/resilience"
)

// Task is the kind of inference a model performs.
type Task string

const (
	TaskSentiment     Task = "sentiment"
	TaskNER           Task = "ner"
	TaskSummarization Task = "summarization"
	TaskGeneration    Task = "generation"
)

// Params are task-level generation parameters. Zero values are omitted.
type Params struct {
	MaxNewTokens int
	MinLength    int
	Temperature  *float64
}

// Label is one class score.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Token is one tagged span. Tag is either a BIO tag ("B-ORG") or a bare
// entity group ("ORG").
type Token struct {
	Tag   string  `json:"tag"`
	Word  string  `json:"word"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// Payload is the typed model output. Which field is set depends on the task.
type Payload struct {
	Labels []Label `json:"labels,omitempty"`
	Tokens []Token `json:"tokens,omitempty"`
	Text   string  `json:"text,omitempty"`
}

var errEmptyPayload = errors.New("empty model response")

// validate rejects responses that decoded but carry nothing usable.
func (p Payload) validate(task Task) error {
	var empty bool
	switch task {
	case TaskSentiment:
		empty = len(p.Labels) == 0
	case TaskNER:
		// A text without entities legitimately yields no tokens.
		empty = false
	default:
		empty = strings.TrimSpace(p.Text) == ""
	}
	if empty {
		return resilience.NewError(resilience.KindMalformed, errEmptyPayload)
	}
	return nil
}

// MockPayload returns the deterministic offline payload for a task.
func MockPayload(task Task, input string) Payload {
	switch task {
	case TaskSentiment:
		return Payload{Labels: []Label{
			{Label: "positive", Score: 0.75},
			{Label: "neutral", Score: 0.20},
			{Label: "negative", Score: 0.05},
		}}
	case TaskNER:
		return Payload{Tokens: []Token{
			{Tag: "B-ORG", Word: "Company", Score: 0.95},
			{Tag: "I-ORG", Word: "Inc", Score: 0.90},
			{Tag: "B-LOC", Word: "New", Score: 0.85},
			{Tag: "I-LOC", Word: "York", Score: 0.80},
		}}
	case TaskSummarization:
		return Payload{Text: "Mock summary of the text: " + truncateRunes(input, 100) + "..."}
	default:
		return Payload{Text: "Mock response for testing purposes"}
	}
}

// shrinkInput shortens an input that was too large: the first shrink keeps
// the leading half, later shrinks trim a quarter from both ends.
func shrinkInput(input string, shrinks int) string {
	n := len(input)
	if n < 2 {
		return input
	}
	if shrinks <= 1 {
		return input[:alignBack(input, n/2)]
	}
	from := alignForward(input, n/4)
	to := alignBack(input, n-n/4)
	if to <= from {
		return input[:alignBack(input, n/2)]
	}
	return input[from:to]
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func alignBack(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func alignForward(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
