package gateway

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/matna449/annual-report-analyzer/internal/resilience"
	"github.com/matna449/annual-report-analyzer/pkg/anthropic"
)

const (
	summarizeSystem = "You summarize excerpts of company annual reports. Reply with one concise paragraph of plain prose."
	generateSystem  = "You are a financial analyst reading a company annual report. Answer plainly, one item per line."

	// statusOverloaded is Anthropic's overload status.
	statusOverloaded = 529
)

// ClaudeBackend serves summarization and generation through Anthropic.
type ClaudeBackend struct {
	client anthropic.Client
	apiKey string
	model  string
}

// NewClaudeBackend wraps client. model is used for the credential probe.
func NewClaudeBackend(client anthropic.Client, apiKey, model string) *ClaudeBackend {
	return &ClaudeBackend{client: client, apiKey: apiKey, model: model}
}

// Probe sends a one-token request.
func (b *ClaudeBackend) Probe(ctx context.Context) error {
	if len(b.apiKey) < minKeyLength {
		return resilience.NewError(resilience.KindAuth, errMissingKey)
	}
	_, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     b.model,
		MaxTokens: 1,
		Messages:  []anthropic.Message{{Role: "user", Content: ProbeText}},
	})
	return classifyClaude(err)
}

// Infer implements Backend.
func (b *ClaudeBackend) Infer(ctx context.Context, model string, task Task, input string, params Params) (Payload, error) {
	var system string
	switch task {
	case TaskSummarization:
		system = summarizeSystem
	case TaskGeneration:
		system = generateSystem
	default:
		return Payload{}, resilience.NewError(resilience.KindUnsupported, eris.Errorf("gateway: %s does not serve %s", model, task))
	}

	maxTokens := int64(params.MaxNewTokens)
	if maxTokens <= 0 {
		maxTokens = 512
	}

	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: input}},
		Temperature: params.Temperature,
	})
	if err != nil {
		return Payload{}, classifyClaude(err)
	}
	resp.Usage.LogCost(model, string(task))

	return Payload{Text: resp.Text()}, nil
}

func classifyClaude(err error) error {
	if err == nil {
		return nil
	}
	status := anthropic.StatusCode(err)
	switch {
	case status == statusOverloaded:
		return &resilience.Error{Kind: resilience.KindUnavailable, StatusCode: status, Err: err}
	case status != 0:
		return resilience.NewStatusError(status, err)
	default:
		return err
	}
}
