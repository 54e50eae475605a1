package model

import (
	"context"

	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/tool"
)

// MockGateway is a test double for Gateway.
type MockGateway struct {
	ProviderName string
	NotReady     bool
	DecideFunc   func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error)
}

func (m *MockGateway) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

func (m *MockGateway) Ready() bool { return !m.NotReady }

func (m *MockGateway) Decide(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
	if m.DecideFunc != nil {
		return m.DecideFunc(ctx, history, tools)
	}
	return domain.FinalAnswer("mock answer"), nil
}
