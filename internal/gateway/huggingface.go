package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/matna449/annual-report-analyzer/internal/resilience"
	"github.com/matna449/annual-report-analyzer/pkg/huggingface"
)

// ProbeText is the fixed finance sentence used to check credentials.
const ProbeText = "The company reported strong quarterly earnings."

// minKeyLength rejects obviously malformed keys without a network call.
const minKeyLength = 8

var errMissingKey = errors.New("api key missing or too short")

// HuggingFaceBackend serves all tasks through the Hugging Face Inference API.
type HuggingFaceBackend struct {
	client     huggingface.Client
	apiKey     string
	probeModel string
}

// NewHuggingFaceBackend wraps client. probeModel is the sentiment model used
// for the credential check.
func NewHuggingFaceBackend(client huggingface.Client, apiKey, probeModel string) *HuggingFaceBackend {
	return &HuggingFaceBackend{client: client, apiKey: apiKey, probeModel: probeModel}
}

// Probe runs one sentiment call on ProbeText.
func (b *HuggingFaceBackend) Probe(ctx context.Context) error {
	if len(b.apiKey) < minKeyLength {
		return resilience.NewError(resilience.KindAuth, errMissingKey)
	}
	_, err := b.Infer(ctx, b.probeModel, TaskSentiment, ProbeText, Params{})
	return err
}

// Infer implements Backend.
func (b *HuggingFaceBackend) Infer(ctx context.Context, model string, task Task, input string, params Params) (Payload, error) {
	raw, err := b.client.Infer(ctx, model, huggingface.InferenceRequest{
		Inputs:     input,
		Parameters: hfParameters(task, params),
		Options:    &huggingface.Options{WaitForModel: false, UseCache: true},
	})
	if err != nil {
		return Payload{}, classifyHuggingFace(err)
	}
	return decodeHuggingFace(task, raw)
}

func hfParameters(task Task, p Params) map[string]any {
	params := map[string]any{}
	switch task {
	case TaskSummarization:
		if p.MaxNewTokens > 0 {
			params["max_length"] = p.MaxNewTokens
		}
		if p.MinLength > 0 {
			params["min_length"] = p.MinLength
		}
		params["do_sample"] = false
	case TaskGeneration:
		if p.MaxNewTokens > 0 {
			params["max_new_tokens"] = p.MaxNewTokens
		}
		if p.Temperature != nil {
			params["temperature"] = *p.Temperature
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

func classifyHuggingFace(err error) error {
	var apiErr *huggingface.APIError
	if errors.As(err, &apiErr) {
		kind := resilience.KindFromStatus(apiErr.StatusCode)
		if apiErr.Loading() {
			kind = resilience.KindModelLoading
		}
		return &resilience.Error{Kind: kind, StatusCode: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, huggingface.ErrInvalidJSON) {
		return resilience.NewError(resilience.KindMalformed, err)
	}
	return err
}

func decodeHuggingFace(task Task, raw json.RawMessage) (Payload, error) {
	switch task {
	case TaskSentiment:
		labels, err := huggingface.DecodeLabels(raw)
		if err != nil {
			return Payload{}, resilience.NewError(resilience.KindMalformed, err)
		}
		out := make([]Label, len(labels))
		for i, l := range labels {
			out[i] = Label{Label: l.Label, Score: l.Score}
		}
		return Payload{Labels: out}, nil
	case TaskNER:
		tokens, err := huggingface.DecodeTokens(raw)
		if err != nil {
			return Payload{}, resilience.NewError(resilience.KindMalformed, err)
		}
		out := make([]Token, len(tokens))
		for i, t := range tokens {
			out[i] = Token{Tag: t.Tag(), Word: t.Word, Score: t.Score, Start: t.Start, End: t.End}
		}
		return Payload{Tokens: out}, nil
	case TaskSummarization, TaskGeneration:
		text, err := huggingface.DecodeText(raw)
		if err != nil {
			return Payload{}, resilience.NewError(resilience.KindMalformed, err)
		}
		return Payload{Text: text}, nil
	default:
		return Payload{}, resilience.NewError(resilience.KindUnsupported, eris.Errorf("gateway: unknown task %q", task))
	}
}
