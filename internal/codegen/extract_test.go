package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAlgorithm = `from AlgorithmImports import *

class FooAlgorithm(QCAlgorithm):
    def initialize(self):
        self.set_cash(100000)`

func TestExtractCodeFencedPython(t *testing.T) {
	reply := "Here is the algorithm:\n\n```python\n" + sampleAlgorithm + "\n```\n\nLet me know."
	code, ok := ExtractCode(reply)
	require.True(t, ok)
	assert.Equal(t, sampleAlgorithm, code)
}

func TestExtractCodeGenericFence(t *testing.T) {
	reply := "```\n" + sampleAlgorithm + "\n```"
	code, ok := ExtractCode(reply)
	require.True(t, ok)
	assert.Equal(t, sampleAlgorithm, code)
}

func TestExtractCodeTildeFence(t *testing.T) {
	reply := "~~~python\n" + sampleAlgorithm + "\n~~~"
	code, ok := ExtractCode(reply)
	require.True(t, ok)
	assert.Equal(t, sampleAlgorithm, code)
}

func TestExtractCodePicksLargestBlock(t *testing.T) {
	small := "```python\nclass A:\n    def initialize(self):\n        pass\n```"
	reply := small + "\n\nFull version:\n\n```python\n" + sampleAlgorithm + "\n```"
	code, ok := ExtractCode(reply)
	require.True(t, ok)
	assert.Equal(t, sampleAlgorithm, code)
}

func TestExtractCodeBareReply(t *testing.T) {
	code, ok := ExtractCode(sampleAlgorithm)
	require.True(t, ok)
	assert.Equal(t, sampleAlgorithm, code)
}

func TestExtractCodeRejectsProse(t *testing.T) {
	_, ok := ExtractCode("I cannot write that algorithm for you, sorry.")
	assert.False(t, ok)

	_, ok = ExtractCode("```\njust some notes, no code here\n```")
	assert.False(t, ok)
}
