// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) LLM() config.LLMRouterConfig {
	args := m.Called()
	return args.Get(0).(config.LLMRouterConfig)
}

func (m *MockConfig) Pipeline() config.PipelineConfig {
	args := m.Called()
	return args.Get(0).(config.PipelineConfig)
}

func (m *MockConfig) Repair() config.RepairConfig {
	args := m.Called()
	return args.Get(0).(config.RepairConfig)
}

// -- Generative Client Mock --

// MockGenerativeClient mocks schemas.GenerativeClient.
type MockGenerativeClient struct {
	mock.Mock
}

var _ schemas.GenerativeClient = (*MockGenerativeClient)(nil)

// Generate returns ctx.Err() without recording a call when the context is
// already done.
func (m *MockGenerativeClient) Generate(ctx context.Context, task schemas.Task, gc schemas.GenerationContext) (schemas.RawModelOutput, error) {
	if ctx.Err() != nil {
		return schemas.RawModelOutput{}, ctx.Err()
	}
	args := m.Called(ctx, task, gc)
	var out schemas.RawModelOutput
	if v := args.Get(0); v != nil {
		out = v.(schemas.RawModelOutput)
	}
	return out, args.Error(1)
}

// -- LLM Client Mock --

// MockLLMClient mocks schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Diagnostic Sink Mock --

// Record is one captured DiagnosticSink call.
type Record struct {
	Label string
	Data  any
}

// RecordingSink is a DiagnosticSink that keeps everything it receives.
type RecordingSink struct {
	mu      sync.Mutex
	records []Record
}

var _ schemas.DiagnosticSink = (*RecordingSink)(nil)

func (s *RecordingSink) Record(label string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{Label: label, Data: data})
}

// Records returns a copy of the captured records.
func (s *RecordingSink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Labels returns the labels of the captured records in order.
func (s *RecordingSink) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels := make([]string, len(s.records))
	for i, r := range s.records {
		labels[i] = r.Label
	}
	return labels
}
