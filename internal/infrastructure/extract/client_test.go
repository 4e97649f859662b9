package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckgen-api/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Collaborators.Extract.Endpoint = srv.URL
	cfg.Collaborators.Extract.Timeout = 5 * time.Second
	return NewClient(cfg)
}

func TestExtractURL(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract/url", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://example.com", payload["url"])

		json.NewEncoder(w).Encode(extractResponse{Content: "page text", Title: "示例页面"})
	}))

	content, title, err := client.ExtractURL(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "page text", content)
	assert.Equal(t, "示例页面", title)
}

func TestExtractFile(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract/file", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "notes.txt", header.Filename)

		json.NewEncoder(w).Encode(extractResponse{Content: "file text"})
	}))

	content, title, err := client.ExtractFile(context.Background(), "notes.txt", strings.NewReader("raw"), 3)
	require.NoError(t, err)
	assert.Equal(t, "file text", content)
	assert.Empty(t, title, "missing title passes through empty")
}

func TestExtractUpstreamErrorIsSurfaced(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "fetch blocked by robots.txt", http.StatusBadGateway)
	}))

	_, _, err := client.ExtractURL(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch blocked by robots.txt")
}
