package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/demolens/internal/source"
	"github.com/kiranshivaraju/demolens/pkg/models"
)

// MockSource satisfies source.Source for testing.
type MockSource struct {
	FetchFunc func(ctx context.Context, dataURL string) (*models.ThirdPartyResponse, error)

	calls atomic.Int64
}

func (m *MockSource) Fetch(ctx context.Context, dataURL string) (*models.ThirdPartyResponse, error) {
	m.calls.Add(1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, dataURL)
	}
	return &models.ThirdPartyResponse{Success: true, Data: source.ScenarioPayload(source.ScenarioClean)}, nil
}

// Calls reports how many times Fetch ran.
func (m *MockSource) Calls() int64 { return m.calls.Load() }

// NewMockSource returns a MockSource that always answers with the clean payload.
func NewMockSource() *MockSource {
	return NewScenarioSource(source.ScenarioClean)
}

// NewScenarioSource returns a MockSource that always answers with scenario s.
func NewScenarioSource(s source.Scenario) *MockSource {
	return &MockSource{
		FetchFunc: func(_ context.Context, _ string) (*models.ThirdPartyResponse, error) {
			return &models.ThirdPartyResponse{Success: true, Data: source.ScenarioPayload(s)}, nil
		},
	}
}

// NewFailingSource returns a MockSource that always returns the given error.
func NewFailingSource(err error) *MockSource {
	return &MockSource{
		FetchFunc: func(_ context.Context, _ string) (*models.ThirdPartyResponse, error) {
			return nil, err
		},
	}
}

// NewTimeoutSource returns a MockSource that blocks until context is cancelled.
func NewTimeoutSource() *MockSource {
	return &MockSource{
		FetchFunc: func(ctx context.Context, _ string) (*models.ThirdPartyResponse, error) {
			<-ctx.Done()
			return nil, source.ErrSourceTimeout
		},
	}
}

// Compile-time check that MockSource implements Source.
var _ source.Source = (*MockSource)(nil)
