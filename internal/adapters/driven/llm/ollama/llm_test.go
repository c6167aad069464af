package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

func TestLLMService_ChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, DefaultLLMModel, req.Model)

		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer server.Close()

	s := NewLLMService(LLMConfig{BaseURL: server.URL})
	stream, err := s.ChatStream(context.Background(), []driven.ChatMessage{{Role: "user", Content: "hi"}}, driven.ChatOptions{})
	require.NoError(t, err)
	defer stream.Close()

	var got string
	for {
		frag, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got += frag
	}
	assert.Equal(t, "Hello", got)
	assert.NoError(t, stream.Close())
}

func TestLLMService_ChatStream_ErrorLine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	s := NewLLMService(LLMConfig{BaseURL: server.URL})
	stream, err := s.ChatStream(context.Background(), nil, driven.ChatOptions{})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestLLMService_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		require.NotNil(t, req.Options)
		assert.Equal(t, 64, req.Options.NumPredict)

		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"},"done":true}`))
	}))
	defer server.Close()

	s := NewLLMService(LLMConfig{BaseURL: server.URL})
	reply, err := s.Chat(context.Background(), nil, driven.ChatOptions{MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestLLMService_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	assert.NoError(t, NewLLMService(LLMConfig{BaseURL: server.URL}).Ping(context.Background()))
}
