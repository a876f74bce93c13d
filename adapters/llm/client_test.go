package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratval/domain/core"
	"stratval/internal/config"
)

func TestNewClientWithoutKeyIsOffline(t *testing.T) {
	client := NewClient(config.LLMConfig{})

	_, err := client.ChatCompletion(context.Background(), "gpt-4o", "hello", 100)
	assert.ErrorIs(t, err, core.ErrLLMOffline)
}

func TestNewClientWithKey(t *testing.T) {
	client := NewClient(config.LLMConfig{APIKey: "sk-test", BaseURL: "https://example.test/v1"})

	oc, ok := client.(*OpenAIClient)
	require.True(t, ok)
	assert.Equal(t, "https://example.test/v1", oc.BaseURL)
}

func TestOpenAIClientChatCompletion(t *testing.T) {
	var gotAuth, gotModel, gotPrompt string
	var gotMaxTokens int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			MaxTokens int `json:"max_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model
		gotMaxTokens = body.MaxTokens
		for _, m := range body.Messages {
			if m.Role == "user" {
				gotPrompt = m.Content
			}
		}
		w.Write([]byte(`{"choices": [{"message": {"content": "def initialize(self): pass"}}]}`))
	}))
	defer srv.Close()

	client := &OpenAIClient{APIKey: "sk-test", BaseURL: srv.URL}
	reply, err := client.ChatCompletion(context.Background(), "gpt-4o", "write an algorithm", 2000)
	require.NoError(t, err)

	assert.Equal(t, "def initialize(self): pass", reply)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", gotModel)
	assert.Equal(t, "write an algorithm", gotPrompt)
	assert.Equal(t, 2000, gotMaxTokens)
}

func TestOpenAIClientRejectsMissingModel(t *testing.T) {
	client := &OpenAIClient{APIKey: "sk-test", BaseURL: "https://example.test/v1"}

	_, err := client.ChatCompletion(context.Background(), "  ", "prompt", 100)
	require.Error(t, err)
}

func TestOpenAIClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer srv.Close()

	client := &OpenAIClient{APIKey: "sk-test", BaseURL: srv.URL}
	_, err := client.ChatCompletion(context.Background(), "gpt-4o", "prompt", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := &OpenAIClient{APIKey: "sk-test", BaseURL: srv.URL}
	_, err := client.ChatCompletion(context.Background(), "gpt-4o", "prompt", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "choices")
}

func TestMockClientScriptedResponses(t *testing.T) {
	m := &MockClient{Responses: []string{"first", "second"}}
	ctx := context.Background()

	r1, err := m.ChatCompletion(ctx, "m", "p1", 10)
	require.NoError(t, err)
	r2, err := m.ChatCompletion(ctx, "m", "p2", 10)
	require.NoError(t, err)
	r3, err := m.ChatCompletion(ctx, "m", "p3", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "second"}, []string{r1, r2, r3})
	assert.Equal(t, []string{"p1", "p2", "p3"}, m.Calls)
}
