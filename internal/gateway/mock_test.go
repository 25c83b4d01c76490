package gateway

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/matna449/annual-report-analyzer/pkg/anthropic"
)

// --- Backend Mock ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Infer(ctx context.Context, model string, task Task, input string, params Params) (Payload, error) {
	args := m.Called(ctx, model, task, input, params)
	return args.Get(0).(Payload), args.Error(1)
}

// --- Backend with credential probe ---

type mockProbingBackend struct {
	mockBackend
}

func (m *mockProbingBackend) Probe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Anthropic client Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}
