package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/jmorganca/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOllama struct {
	mu       sync.Mutex
	requests []api.ChatRequest
	chunks   []string
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/chat":
		req := api.ChatRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, c := range f.chunks {
			_ = enc.Encode(map[string]any{
				"model":   req.Model,
				"message": map[string]string{"role": "assistant", "content": c},
				"done":    false,
			})
		}
		_ = enc.Encode(map[string]any{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": ""},
			"done":    true,
		})
	case "/api/tags":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "llama3:latest", "size": 4661224676, "modified_at": time.Now()},
				{"name": "mistral:7b", "size": 4109865159, "modified_at": time.Now()},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeOllama) *api.Client {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	t.Setenv("OLLAMA_HOST", server.URL)
	client, err := NewClient("")
	require.NoError(t, err)
	return client
}

func TestStreamedChat(t *testing.T) {
	ctx := context.Background()
	fake := &fakeOllama{chunks: []string{"You ", "are ", "anonymous."}}
	g := NewGenerator(newTestClient(t, fake), "llama3", true)

	root := conversation.NewRoot("What is my name?", conversation.FromStrings("Anonymous."))
	child := root.AskWith("Why?", g)

	var fragments []string
	for f, err := range child.Drive().Seq(ctx) {
		require.NoError(t, err)
		fragments = append(fragments, f)
	}
	assert.Equal(t, []string{"You ", "are ", "anonymous."}, fragments)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, "llama3", req.Model)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Equal(t, "Anonymous.", req.Messages[1].Content)
	assert.Equal(t, "Why?", req.Messages[2].Content)
	require.NotNil(t, req.Stream)
	assert.True(t, *req.Stream)
}

func TestChatFailureKeepsNodePending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer server.Close()
	t.Setenv("OLLAMA_HOST", server.URL)
	client, err := NewClient("")
	require.NoError(t, err)

	root := conversation.NewRootWith("q", NewGenerator(client, "nope", true))
	_, err = root.AwaitAnswer(context.Background())
	require.Error(t, err)
	assert.False(t, root.IsDone())
}

func TestCancelledPull(t *testing.T) {
	fake := &fakeOllama{chunks: []string{"a", "b"}}
	g := NewGenerator(newTestClient(t, fake), "llama3", true)

	src, err := g.Generate(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	require.Error(t, err)
	_, err = src.Next(context.Background())
	require.Error(t, err)
}

func TestListAndWriteModels(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, &fakeOllama{})

	models, err := ListModels(ctx, client, "")
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3:latest with Ollama", models[0].LocalName)
	assert.Equal(t, int64(4661224676), models[0].Size)

	models, err = ListModels(ctx, client, "mistral*")
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "mistral:7b", models[0].Model)

	filename := filepath.Join(t.TempDir(), "out", "ollama_models_gen.json")
	require.NoError(t, WriteModelsConfig(filename, models))

	b, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(b), "\n    \"models\"")

	cfg := ModelsConfig{}
	require.NoError(t, json.Unmarshal(b, &cfg))
	assert.Equal(t, models, cfg.Models)
	assert.Equal(t, "ollama", cfg.Models[0].Provider)
	assert.True(t, cfg.Models[0].Stream)
}

func TestChunksWithoutMessageAreSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"model": "llama3", "done": false})
		_ = enc.Encode(map[string]any{
			"model":   "llama3",
			"message": map[string]string{"role": "assistant", "content": "only"},
			"done":    false,
		})
		_ = enc.Encode(map[string]any{"model": "llama3", "done": true})
	}))
	defer server.Close()
	t.Setenv("OLLAMA_HOST", server.URL)
	client, err := NewClient("")
	require.NoError(t, err)

	root := conversation.NewRootWith("q", NewGenerator(client, "llama3", true))
	var fragments []string
	for f, err := range root.Drive().Seq(context.Background()) {
		require.NoError(t, err)
		fragments = append(fragments, f)
	}
	assert.Equal(t, []string{"only"}, fragments)
	assert.True(t, root.IsDone())
}
