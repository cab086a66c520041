package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/agentswarm/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "1. parse\n2. emit"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	client := anthropic.NewClient(option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"), option.WithMaxRetries(0))
	m := NewModelFromClient(&client, WithModelName("claude-test"), func(o *Options) { o.MaxTokens = 64 })

	text, err := model.Collect(context.Background(), m, model.Request{Instructions: "plan", Prompt: "build X"})
	require.NoError(t, err)
	assert.Equal(t, "1. parse\n2. emit", text)

	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 64, body["max_tokens"])
	assert.NotEmpty(t, body["system"])
	assert.Equal(t, model.Info{Name: "claude-test", Provider: "anthropic"}, m.Info())
}

func TestModel_StreamingUnsupported(t *testing.T) {
	client := anthropic.NewClient(option.WithAPIKey("test"))
	m := NewModelFromClient(&client)

	_, err := model.Collect(context.Background(), m, model.Request{Prompt: "x", Stream: true})
	require.Error(t, err)
}

func TestModel_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	client := anthropic.NewClient(option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"), option.WithMaxRetries(0))
	_, err := model.Collect(context.Background(), NewModelFromClient(&client), model.Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic api error")
}
