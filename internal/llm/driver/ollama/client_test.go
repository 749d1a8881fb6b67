package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chattwin/chattwin/internal/llm/driver"
)

func TestClientSendsRequestAndParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Equal(t, "llama3", payload["model"])
		require.Equal(t, false, payload["stream"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi back"},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":7}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.HTTPClient = server.Client()

	resp, err := client.Complete(context.Background(), &driver.Request{
		Model:    "llama3",
		Messages: []driver.Message{{Role: driver.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hi back", resp.Content)
	require.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	require.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestClientErrorsOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.HTTPClient = server.Client()

	_, err := client.Complete(context.Background(), &driver.Request{Model: "missing", Messages: []driver.Message{{Role: driver.RoleUser, Content: "hi"}}})
	require.Error(t, err)

	var provErr *driver.ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, "ollama", provErr.Provider)
	require.Equal(t, http.StatusNotFound, provErr.StatusCode)
}

func TestClientRequiresMessages(t *testing.T) {
	client := NewClient("")
	_, err := client.Complete(context.Background(), &driver.Request{Model: "llama3"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "messages")
}
