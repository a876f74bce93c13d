package codegen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratval/adapters/llm"
)

func TestGeneratePrefersTemplate(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{"should not be called"}}
	gen := New(mock, "test-model", 1000)

	cand := candidateWith("STRAT-001", "momentum", map[string]any{"lookback": 126})
	prog, err := gen.Generate(context.Background(), cand)
	require.NoError(t, err)

	assert.Equal(t, "momentum", prog.Template)
	assert.Empty(t, prog.Model)
	assert.Empty(t, mock.Calls)
}

func TestGenerateFallsBackToModel(t *testing.T) {
	reply := "```python\nfrom AlgorithmImports import *\n\nclass Strat009Algorithm(QCAlgorithm):\n    def Initialize(self):\n        self.SetCash(100000)\n        self.AddEquity(\"SPY\", Resolution.Daily)\n```"
	mock := &llm.MockClient{Responses: []string{reply}}
	gen := New(mock, "test-model", 1000)

	// No parameters, so no template applies.
	cand := candidateWith("STRAT-009", "momentum", nil)
	prog, err := gen.Generate(context.Background(), cand)
	require.NoError(t, err)

	assert.Equal(t, "llm", prog.Template)
	assert.Equal(t, "test-model", prog.Model)
	// Model output goes through the post-processor.
	assert.Contains(t, prog.Source, "def initialize(self):")
	assert.Contains(t, prog.Source, "Resolution.DAILY")
	assert.Len(t, mock.Calls, 1)
}

func TestGenerateForceLLM(t *testing.T) {
	reply := "```python\nfrom AlgorithmImports import *\n\nclass Strat001Algorithm(QCAlgorithm):\n    def initialize(self):\n        self.set_cash(100000)\n```"
	mock := &llm.MockClient{Responses: []string{reply}}
	gen := New(mock, "test-model", 1000, WithForceLLM(true))

	cand := candidateWith("STRAT-001", "momentum", map[string]any{"lookback": 126})
	prog, err := gen.Generate(context.Background(), cand)
	require.NoError(t, err)
	assert.Equal(t, "llm", prog.Template)
	assert.Len(t, mock.Calls, 1)
}

func TestGenerateRetriesExtraction(t *testing.T) {
	good := "```python\nfrom AlgorithmImports import *\n\nclass Strat002Algorithm(QCAlgorithm):\n    def initialize(self):\n        self.set_cash(100000)\n```"
	mock := &llm.MockClient{Responses: []string{"no code here, sorry", good}}
	gen := New(mock, "test-model", 1000)

	cand := candidateWith("STRAT-002", "unknown_type", nil)
	prog, err := gen.Generate(context.Background(), cand)
	require.NoError(t, err)
	assert.Len(t, mock.Calls, 2)
	assert.Contains(t, prog.Source, "Strat002Algorithm")
}

func TestGenerateExtractionExhausted(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{"prose only"}}
	gen := New(mock, "test-model", 1000)

	cand := candidateWith("STRAT-003", "unknown_type", nil)
	_, err := gen.Generate(context.Background(), cand)
	require.Error(t, err)
	assert.Len(t, mock.Calls, extractionAttempts)
}

func TestGenerateWithoutModelFails(t *testing.T) {
	gen := New(nil, "", 0)
	cand := candidateWith("STRAT-004", "unknown_type", nil)
	_, err := gen.Generate(context.Background(), cand)
	assert.Error(t, err)
}

func TestCorrectUsesErrorContext(t *testing.T) {
	fixed := "```python\nfrom AlgorithmImports import *\n\nclass Strat005Algorithm(QCAlgorithm):\n    def initialize(self):\n        self.set_cash(100000)\n```"
	mock := &llm.MockClient{Responses: []string{fixed}}
	gen := New(mock, "test-model", 1000)

	cand := candidateWith("STRAT-005", "momentum", map[string]any{"lookback": 10})
	prog, err := gen.Correct(context.Background(), cand,
		"broken source", "AttributeError: 'Foo' object has no attribute 'bar'")
	require.NoError(t, err)

	assert.Contains(t, prog.Source, "Strat005Algorithm")
	require.Len(t, mock.Calls, 1)
	assert.Contains(t, mock.Calls[0], "AttributeError")
	assert.Contains(t, mock.Calls[0], "broken source")
}
