// Package huggingface is a minimal client for the Hugging Face Inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api-inference.huggingface.co/models"

// ErrInvalidJSON is returned when a 200 response body is not JSON.
var ErrInvalidJSON = eris.New("huggingface: response is not valid JSON")

// Client runs hosted model inference.
type Client interface {
	Infer(ctx context.Context, model string, req InferenceRequest) (json.RawMessage, error)
}

// InferenceRequest is the request body for POST /models/{model}.
type InferenceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Options    *Options       `json:"options,omitempty"`
}

// Options controls provider-side behavior.
type Options struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

// APIError is a non-200 response. EstimatedTime is set by the provider while
// a model is loading.
type APIError struct {
	StatusCode    int
	Message       string
	EstimatedTime float64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("huggingface: unexpected status %d: %s", e.StatusCode, e.Message)
}

// Loading reports whether the error says the model is still warming up.
func (e *APIError) Loading() bool {
	return e.StatusCode == http.StatusServiceUnavailable && e.EstimatedTime > 0
}

type errorBody struct {
	Error         json.RawMessage `json:"error"`
	EstimatedTime float64         `json:"estimated_time"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Hugging Face Inference API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Infer(ctx context.Context, model string, req InferenceRequest) (json.RawMessage, error) {
	if model == "" {
		return nil, eris.New("huggingface: model is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "huggingface: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "huggingface: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "huggingface: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "huggingface: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, respBody)
	}
	if !json.Valid(respBody) {
		return nil, ErrInvalidJSON
	}

	return json.RawMessage(respBody), nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return apiErr
	}
	apiErr.EstimatedTime = eb.EstimatedTime

	var msg string
	if err := json.Unmarshal(eb.Error, &msg); err == nil && msg != "" {
		apiErr.Message = msg
		return apiErr
	}
	var msgs []string
	if err := json.Unmarshal(eb.Error, &msgs); err == nil && len(msgs) > 0 {
		apiErr.Message = strings.Join(msgs, "; ")
	}
	return apiErr
}
