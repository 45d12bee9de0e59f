package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baria-go/internal/config"
)

type recorder struct {
	messages []string
}

func (r *recorder) WriteMessage(_ int, data []byte) error {
	r.messages = append(r.messages, string(data))
	return nil
}

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"  Пейте воду.  "}}]}`)
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "k", Model: "m",
		Generation: config.LLMGenerationConfig{Temperature: 0.2}})
	answer, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Пейте воду.", answer)
	assert.Equal(t, "m", got.Model)
	assert.False(t, got.Stream)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.2, *got.Temperature)
	assert.Nil(t, got.MaxTokens)
}

func TestChatNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(config.LLMConfig{BaseURL: srv.URL}).Chat(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Пей\"}}]}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"те\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	rec := &recorder{}
	temp := 0.5
	full, err := NewClient(config.LLMConfig{BaseURL: srv.URL}).StreamChat(context.Background(),
		[]Message{{Role: "user", Content: "q"}}, &GenerationParams{Temperature: &temp}, rec)
	require.NoError(t, err)
	assert.Equal(t, "Пейте", full)
	assert.Equal(t, []string{"Пей", "те"}, rec.messages)
}
