package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/matna449/annual-report-analyzer/internal/gateway"
	"github.com/matna449/annual-report-analyzer/internal/model"
	"github.com/matna449/annual-report-analyzer/internal/resilience"
)

// --- Inferencer Mock ---

type mockInferencer struct {
	mock.Mock
}

func (m *mockInferencer) Call(ctx context.Context, req gateway.Request) gateway.Result {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Result)
}

func (m *mockInferencer) Available() bool {
	return m.Called().Bool(0)
}

func (m *mockInferencer) Route(task gateway.Task) gateway.Route {
	return m.Called(task).Get(0).(gateway.Route)
}

func newMockInferencer(available bool) *mockInferencer {
	m := &mockInferencer{}
	m.On("Available").Return(available).Maybe()
	return m
}

// --- Backend Mock ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Infer(ctx context.Context, modelID string, task gateway.Task, input string, params gateway.Params) (gateway.Payload, error) {
	args := m.Called(ctx, modelID, task, input, params)
	return args.Get(0).(gateway.Payload), args.Error(1)
}

// --- Helpers ---

func testGateway(t *testing.T, b gateway.Backend) *gateway.Gateway {
	t.Helper()
	policy := resilience.NewRetryPolicy(3, time.Millisecond)
	policy.JitterFraction = 0
	return gateway.New(context.Background(), b, gateway.Config{
		Models: map[gateway.Task]gateway.Route{
			gateway.TaskSentiment:     {Primary: "finbert", Fallback: "finbert-tone"},
			gateway.TaskNER:           {Primary: "bert-ner"},
			gateway.TaskSummarization: {Primary: "bart", Fallback: "distilbart"},
			gateway.TaskGeneration:    {Primary: "flan"},
		},
		Policy: policy,
	})
}

func liveResult(modelID string, task gateway.Task, p gateway.Payload) gateway.Result {
	return gateway.Result{
		Requested: modelID,
		Model:     modelID,
		Task:      task,
		Status:    gateway.StatusOK,
		Payload:   p,
		Attempts:  1,
	}
}

func mockResult(task gateway.Task, kind resilience.Kind) gateway.Result {
	return gateway.Result{
		Task:     task,
		Status:   gateway.StatusMock,
		Payload:  gateway.MockPayload(task, ""),
		Attempts: 3,
		Err:      resilience.NewError(kind, errors.New("upstream failure")),
	}
}

func labels(pos, neu, neg float64) gateway.Payload {
	return gateway.Payload{Labels: []gateway.Label{
		{Label: "positive", Score: pos},
		{Label: "neutral", Score: neu},
		{Label: "negative", Score: neg},
	}}
}

func taskIs(task gateway.Task) any {
	return mock.MatchedBy(func(r gateway.Request) bool { return r.Task == task })
}

// chunksOf builds contiguous chunks over parts joined by single spaces.
func chunksOf(parts ...string) (string, []model.Chunk) {
	var (
		text   string
		chunks []model.Chunk
	)
	for i, p := range parts {
		if i > 0 {
			text += " "
		}
		start := len(text)
		text += p
		chunks = append(chunks, model.Chunk{Index: i, Start: start, End: len(text), Text: p})
	}
	return text, chunks
}
