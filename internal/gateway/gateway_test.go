package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matna449/annual-report-analyzer/internal/config"
	"github.com/matna449/annual-report-analyzer/internal/resilience"
)

var sentimentOK = Payload{Labels: []Label{
	{Label: "negative", Score: 0.7},
	{Label: "neutral", Score: 0.2},
	{Label: "positive", Score: 0.1},
}}

func testConfig() Config {
	policy := resilience.NewRetryPolicy(3, time.Millisecond)
	policy.JitterFraction = 0
	return Config{
		Models: map[Task]Route{
			TaskSentiment:     {Primary: "primary", Fallback: "fallback"},
			TaskSummarization: {Primary: "bart"},
		},
		Policy: policy,
	}
}

func classified(kind resilience.Kind) error {
	return resilience.NewError(kind, errors.New("upstream said no"))
}

func newTestGateway(t *testing.T, b Backend, cfg Config) *Gateway {
	t.Helper()
	return New(context.Background(), b, cfg)
}

func TestCall_Success(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, "Revenue fell.", Params{}).
		Return(sentimentOK, nil).Once()

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: "Revenue fell."})

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "primary", res.Model)
	assert.Equal(t, "primary", res.Requested)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, res.Live())
	assert.NoError(t, res.Err)
	assert.Equal(t, sentimentOK, res.Payload)
	b.AssertExpectations(t)
}

func TestCall_RetriesUnavailableThenSucceeds(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, classified(resilience.KindUnavailable)).Twice()
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(sentimentOK, nil).Once()

	var retries []int
	cfg := testConfig()
	cfg.Policy.OnRetry = func(attempt int, _ error) { retries = append(retries, attempt) }

	g := newTestGateway(t, b, cfg)
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: "x"})

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.Live())
	assert.Equal(t, []int{1, 2}, retries)
	b.AssertExpectations(t)
}

func TestCall_LoadingFallsBackToSecondaryModel(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, classified(resilience.KindModelLoading)).Times(3)
	b.On("Infer", mock.Anything, "fallback", TaskSentiment, mock.Anything, mock.Anything).
		Return(sentimentOK, nil).Once()

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: "x"})

	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "fallback", res.Model)
	assert.Equal(t, "primary", res.Requested)
	assert.Equal(t, 4, res.Attempts)
	assert.True(t, res.Live())
	b.AssertExpectations(t)
}

func TestCall_FallbackFailsServesMock(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, classified(resilience.KindUnavailable)).Times(3)
	b.On("Infer", mock.Anything, "fallback", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, classified(resilience.KindUnavailable)).Once()

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: "x"})

	assert.Equal(t, StatusMock, res.Status)
	assert.False(t, res.Live())
	assert.Equal(t, resilience.KindUnavailable, res.Kind())
	assert.Equal(t, MockPayload(TaskSentiment, "x"), res.Payload)
	b.AssertExpectations(t)
}

func TestCall_NoFallbackModelServesMock(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "bart", TaskSummarization, mock.Anything, mock.Anything).
		Return(Payload{}, classified(resilience.KindUnavailable)).Times(3)

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSummarization, Input: "Revenue grew strongly."})

	assert.Equal(t, StatusMock, res.Status)
	assert.Equal(t, "Mock summary of the text: Revenue grew strongly....", res.Payload.Text)
	assert.Equal(t, 3, res.Attempts)
	b.AssertExpectations(t)
}

func TestCall_AuthDisablesGateway(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, classified(resilience.KindAuth)).Once()

	g := newTestGateway(t, b, testConfig())
	require.True(t, g.Available())

	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: "x"})
	assert.Equal(t, StatusMock, res.Status)
	assert.Equal(t, resilience.KindAuth, res.Kind())
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, g.Available())

	// Later calls never reach the backend.
	res = g.Call(context.Background(), Request{Task: TaskSentiment, Input: "y"})
	assert.Equal(t, StatusMock, res.Status)
	assert.Equal(t, 0, res.Attempts)
	assert.ErrorIs(t, res.Err, ErrRemoteDisabled)
	b.AssertNumberOfCalls(t, "Infer", 1)

	// Revalidation without a probe re-enables remote calls.
	assert.True(t, g.Revalidate(context.Background()))
	assert.True(t, g.Available())
}

func TestCall_RateLimitedIsDegradedWithoutRetry(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, classified(resilience.KindRateLimited)).Once()

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: "x"})

	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, resilience.KindRateLimited, res.Kind())
	assert.False(t, res.Live())
	assert.Equal(t, MockPayload(TaskSentiment, "x"), res.Payload)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, g.Available())
	b.AssertExpectations(t)
}

func TestCall_InputTooLargeRetriesShrunk(t *testing.T) {
	input := strings.Repeat("a", 100)

	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, input, mock.Anything).
		Return(Payload{}, classified(resilience.KindInputTooLarge)).Once()
	b.On("Infer", mock.Anything, "primary", TaskSentiment, input[:50], mock.Anything).
		Return(sentimentOK, nil).Once()

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: input})

	assert.Equal(t, StatusDegraded, res.Status)
	assert.True(t, res.Shrunk)
	assert.True(t, res.Live())
	assert.Equal(t, 2, res.Attempts)
	b.AssertExpectations(t)
}

func TestCall_InputTooLargeGivesUpAfterLastAttempt(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, classified(resilience.KindInputTooLarge)).Times(3)

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: strings.Repeat("word ", 40)})

	assert.Equal(t, StatusMock, res.Status)
	assert.Equal(t, resilience.KindInputTooLarge, res.Kind())
	assert.Equal(t, 3, res.Attempts)
	b.AssertExpectations(t)
}

func TestCall_ShrinkKeepsPrompt(t *testing.T) {
	prompt := "Summarize the following text: "
	input := "abcdefghijklmnop"

	b := &mockBackend{}
	b.On("Infer", mock.Anything, "bart", TaskSummarization, prompt+input, mock.Anything).
		Return(Payload{}, classified(resilience.KindInputTooLarge)).Once()
	b.On("Infer", mock.Anything, "bart", TaskSummarization, prompt+"abcdefgh", mock.Anything).
		Return(Payload{}, classified(resilience.KindInputTooLarge)).Once()
	b.On("Infer", mock.Anything, "bart", TaskSummarization, prompt+"cdef", mock.Anything).
		Return(Payload{Text: "short"}, nil).Once()

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSummarization, Prompt: prompt, Input: input})

	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "short", res.Payload.Text)
	assert.Equal(t, 3, res.Attempts)
	b.AssertExpectations(t)
}

func TestCall_PreflightCountsPrompt(t *testing.T) {
	prompt := strings.Repeat("do this ", 10) // 20 words
	input := strings.Repeat("word ", 40)
	cfg := testConfig()
	cfg.MaxInputTokens = 80 // 60 words estimate to 86

	b := &mockBackend{}
	b.On("Infer", mock.Anything, "bart", TaskSummarization, prompt+input[:100], mock.Anything).
		Return(Payload{Text: "ok"}, nil).Once()

	g := newTestGateway(t, b, cfg)
	res := g.Call(context.Background(), Request{Task: TaskSummarization, Prompt: prompt, Input: input})

	assert.True(t, res.Shrunk)
	assert.True(t, res.Live())
	b.AssertExpectations(t)
}

func TestCall_PreflightShrinksOversizedInput(t *testing.T) {
	input := strings.Repeat("word ", 100) // 143 tokens
	cfg := testConfig()
	cfg.MaxInputTokens = 80

	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, input[:250], mock.Anything).
		Return(sentimentOK, nil).Once()

	g := newTestGateway(t, b, cfg)
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: input})

	assert.Equal(t, StatusDegraded, res.Status)
	assert.True(t, res.Shrunk)
	assert.Equal(t, 1, res.Attempts)
	b.AssertExpectations(t)
}

func TestCall_MalformedRetriedThenMock(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, nil).Times(3)

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: "x"})

	assert.Equal(t, StatusMock, res.Status)
	assert.Equal(t, resilience.KindMalformed, res.Kind())
	assert.Equal(t, 3, res.Attempts)
	b.AssertExpectations(t)
}

func TestCall_EmptyNERIsValid(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "ner-model", TaskNER, mock.Anything, mock.Anything).
		Return(Payload{}, nil).Once()

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Model: "ner-model", Task: TaskNER, Input: "no names here"})

	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Payload.Tokens)
	b.AssertExpectations(t)
}

func TestCall_UnknownErrorGivesUp(t *testing.T) {
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, errors.New("boom")).Once()

	g := newTestGateway(t, b, testConfig())
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: "x"})

	assert.Equal(t, StatusMock, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.EqualError(t, res.Err, "boom")
	b.AssertExpectations(t)
}

func TestCall_OpenBreakerSkipsToFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Breakers = resilience.NewCircuitConfig(1, 60)

	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Return(Payload{}, classified(resilience.KindUnavailable)).Once()
	b.On("Infer", mock.Anything, "fallback", TaskSentiment, mock.Anything, mock.Anything).
		Return(sentimentOK, nil).Twice()

	g := newTestGateway(t, b, cfg)
	res := g.Call(context.Background(), Request{Task: TaskSentiment, Input: "x"})
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "fallback", res.Model)
	assert.Equal(t, 2, res.Attempts)

	// The primary's breaker is open, so the next call goes straight to the fallback.
	res = g.Call(context.Background(), Request{Task: TaskSentiment, Input: "y"})
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, 1, res.Attempts)
	b.AssertExpectations(t)
}

func TestCall_CanceledContext(t *testing.T) {
	b := &mockBackend{}
	g := newTestGateway(t, b, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := g.Call(ctx, Request{Task: TaskSentiment, Input: "x"})
	assert.Equal(t, StatusMock, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	b.AssertNotCalled(t, "Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCall_CanceledDuringBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.BaseDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	b := &mockBackend{}
	b.On("Infer", mock.Anything, "primary", TaskSentiment, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { go cancel() }).
		Return(Payload{}, classified(resilience.KindUnavailable)).Once()

	g := newTestGateway(t, b, cfg)
	res := g.Call(ctx, Request{Task: TaskSentiment, Input: "x"})

	assert.Equal(t, StatusMock, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	b.AssertExpectations(t)
}

func TestNew_NilBackendServesMocks(t *testing.T) {
	g := New(context.Background(), nil, testConfig())
	assert.False(t, g.Available())

	res := g.Call(context.Background(), Request{Task: TaskGeneration, Input: "anything"})
	assert.Equal(t, StatusMock, res.Status)
	assert.Equal(t, "Mock response for testing purposes", res.Payload.Text)
}

func TestNew_ProbeOutcome(t *testing.T) {
	tests := []struct {
		name      string
		probeErr  error
		wantValid bool
	}{
		{"ok", nil, true},
		{"auth rejected", classified(resilience.KindAuth), false},
		{"unknown failure", errors.New("weird"), false},
		{"unsupported", classified(resilience.KindUnsupported), false},
		{"model loading", classified(resilience.KindModelLoading), true},
		{"unavailable", classified(resilience.KindUnavailable), true},
		{"timeout", classified(resilience.KindTimeout), true},
		{"rate limited", classified(resilience.KindRateLimited), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &mockProbingBackend{}
			b.On("Probe", mock.Anything).Return(tt.probeErr).Once()

			g := New(context.Background(), b, testConfig())
			assert.Equal(t, tt.wantValid, g.Available())
			b.AssertExpectations(t)
		})
	}
}

func TestNew_InvalidCredentialsNeverCallBackend(t *testing.T) {
	b := &mockProbingBackend{}
	b.On("Probe", mock.Anything).Return(classified(resilience.KindAuth)).Once()

	g := New(context.Background(), b, testConfig())
	for _, task := range []Task{TaskSentiment, TaskNER, TaskSummarization, TaskGeneration} {
		res := g.Call(context.Background(), Request{Task: task, Input: "The company grew."})
		assert.Equal(t, StatusMock, res.Status, task)
		assert.False(t, res.Live())
	}
	b.AssertNotCalled(t, "Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRoute(t *testing.T) {
	g := New(context.Background(), nil, testConfig())
	assert.Equal(t, Route{Primary: "primary", Fallback: "fallback"}, g.Route(TaskSentiment))
	assert.Equal(t, Route{}, g.Route(TaskGeneration))
}

func TestConfigFrom(t *testing.T) {
	models := map[string]config.ModelRoute{}
	for k, v := range config.DefaultModels() {
		models[k] = v
	}
	cfg := &config.Config{
		Analysis: config.AnalysisConfig{
			MaxInputTokens:     1024,
			MaxRetries:         4,
			RequestTimeoutSecs: 30,
			RetryBaseDelayMs:   500,
		},
		Gateway: config.GatewayConfig{
			RequestsPerMinute: 120,
			BreakerThreshold:  7,
			BreakerResetSecs:  10,
			Models:            models,
		},
	}

	gc := ConfigFrom(cfg)
	assert.Equal(t, "ProsusAI/finbert", gc.Models[TaskSentiment].Primary)
	assert.Equal(t, "dslim/bert-base-NER", gc.Models[TaskNER].Primary)
	assert.Equal(t, 4, gc.Policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, gc.Policy.BaseDelay)
	assert.NotNil(t, gc.Policy.OnRetry)
	assert.Equal(t, 30*time.Second, gc.RequestTimeout)
	assert.Equal(t, 1024, gc.MaxInputTokens)
	assert.Equal(t, 120, gc.RequestsPerMinute)
	assert.Equal(t, 7, gc.Breakers.FailureThreshold)
	assert.Equal(t, 10*time.Second, gc.Breakers.ResetTimeout)
}

func TestMockPayload(t *testing.T) {
	s := MockPayload(TaskSentiment, "")
	require.Len(t, s.Labels, 3)
	assert.Equal(t, "positive", s.Labels[0].Label)
	assert.InDelta(t, 0.75, s.Labels[0].Score, 1e-9)

	n := MockPayload(TaskNER, "")
	require.Len(t, n.Tokens, 4)
	assert.Equal(t, "B-ORG", n.Tokens[0].Tag)

	long := strings.Repeat("é", 150)
	sum := MockPayload(TaskSummarization, long)
	assert.Equal(t, "Mock summary of the text: "+strings.Repeat("é", 100)+"...", sum.Text)
}

func TestShrinkInput(t *testing.T) {
	in := "abcdefghijklmnop" // 16 bytes
	assert.Equal(t, "abcdefgh", shrinkInput(in, 1))
	assert.Equal(t, "efghijkl", shrinkInput(in, 2))
	assert.Equal(t, "a", shrinkInput("a", 1))

	multi := strings.Repeat("€", 5) // 15 bytes
	assert.Equal(t, "€€", shrinkInput(multi, 1))
}
