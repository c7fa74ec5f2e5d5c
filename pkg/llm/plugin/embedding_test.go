package plugin

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/metrics"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
)

func embeddingResponseBody(dim int) map[string]any {
	vec := make([]float64, dim)
	for i := range vec {
		vec[i] = float64(i) / float64(dim)
	}
	return map[string]any{
		"object": "list",
		"data":   []any{map[string]any{"object": "embedding", "index": 0, "embedding": vec}},
		"model":  "text-embedding-3-small",
		"usage":  map[string]any{"prompt_tokens": 4, "total_tokens": 4},
	}
}

func TestPlugin_Embed(t *testing.T) {
	var body map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		body = readJSON(t, r)
		writeJSON(t, w, http.StatusOK, embeddingResponseBody(512))
	})
	rt := newRuntime(u, map[string]string{llm.SettingEmbeddingDimensions: "512"})

	vec, err := newTestPlugin().Embed(context.Background(), rt, &llm.EmbeddingParams{Text: "  hello world  "})
	require.NoError(t, err)
	assert.Len(t, vec, 512)
	assert.InDelta(t, 1.0/512, vec[1], 1e-9)

	assert.Equal(t, llm.DefaultEmbeddingModel, body["model"])
	assert.Equal(t, "hello world", body["input"])
	assert.EqualValues(t, 512, body["dimensions"])

	events := rt.Events()
	require.Len(t, events, 1)
	assert.Equal(t, llm.ModelTypeTextEmbedding, events[0].Type)
	assert.EqualValues(t, 4, events[0].Tokens.InputTokens)
	assert.EqualValues(t, 4, events[0].Tokens.TotalTokens)
}

func TestPlugin_Embed_DimensionsOnlyForV3Models(t *testing.T) {
	var body map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		body = readJSON(t, r)
		writeJSON(t, w, http.StatusOK, embeddingResponseBody(1536))
	})
	rt := newRuntime(u, map[string]string{llm.SettingEmbeddingModel: "text-embedding-ada-002"})

	vec, err := newTestPlugin().Embed(context.Background(), rt, &llm.EmbeddingParams{Text: "hi"})
	require.NoError(t, err)
	assert.Len(t, vec, 1536)
	assert.NotContains(t, body, "dimensions")
}

func TestPlugin_Embed_DedicatedEndpoint(t *testing.T) {
	main := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("embedding request went to the chat endpoint")
	})
	dedicated := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-embed", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, embeddingResponseBody(1536))
	})
	rt := newRuntime(main, map[string]string{
		llm.SettingEmbeddingURL:    dedicated.baseURL(),
		llm.SettingEmbeddingAPIKey: "sk-embed",
	})

	vec, err := newTestPlugin().Embed(context.Background(), rt, &llm.EmbeddingParams{Text: "hi"})
	require.NoError(t, err)
	assert.Len(t, vec, 1536)
	assert.EqualValues(t, 1, dedicated.calls.Load())
}

func TestPlugin_Embed_SentinelVectors(t *testing.T) {
	const dim = 256

	tests := []struct {
		name      string
		params    *llm.EmbeddingParams
		handler   http.HandlerFunc
		closed    bool
		marker    float64
		wantCalls int32
		reason    string
	}{
		{
			name:   "nil params",
			params: nil,
			marker: SentinelNilParams,
			reason: fallbackNilParams,
		},
		{
			name:   "empty text",
			params: &llm.EmbeddingParams{Text: " \n\t "},
			marker: SentinelEmptyText,
			reason: fallbackEmptyText,
		},
		{
			name:   "http status",
			params: &llm.EmbeddingParams{Text: "hi"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("bad gateway"))
			},
			marker:    SentinelHTTPStatus,
			wantCalls: 1,
			reason:    fallbackStatus,
		},
		{
			name:   "malformed body",
			params: &llm.EmbeddingParams{Text: "hi"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte("{not json"))
			},
			marker:    SentinelMalformed,
			wantCalls: 1,
			reason:    fallbackMalformed,
		},
		{
			name:   "wrong length",
			params: &llm.EmbeddingParams{Text: "hi"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusOK, embeddingResponseBody(dim+1))
			},
			marker:    SentinelMalformed,
			wantCalls: 1,
			reason:    fallbackMalformed,
		},
		{
			name:   "empty data",
			params: &llm.EmbeddingParams{Text: "hi"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusOK, map[string]any{"data": []any{}})
			},
			marker:    SentinelMalformed,
			wantCalls: 1,
			reason:    fallbackMalformed,
		},
		{
			name:   "transport error",
			params: &llm.EmbeddingParams{Text: "hi"},
			closed: true,
			marker: SentinelTransportFail,
			reason: fallbackTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := tt.handler
			if handler == nil {
				handler = func(w http.ResponseWriter, r *http.Request) {
					t.Error("unexpected request")
				}
			}
			u := newUpstream(t, handler)
			rt := newRuntime(u, map[string]string{llm.SettingEmbeddingDimensions: "256"})
			if tt.closed {
				u.Close()
			}

			c := metrics.NewCollector()
			vec, err := newTestPlugin(WithMetrics(c)).Embed(context.Background(), rt, tt.params)
			require.NoError(t, err)
			require.Len(t, vec, dim)
			assert.Equal(t, tt.marker, vec[0])
			for _, v := range vec[1:] {
				require.Zero(t, v)
			}
			assert.Equal(t, tt.wantCalls, u.calls.Load())
			assert.Empty(t, rt.Events())

			expected := `
# HELP openai_plugin_embedding_fallbacks_total Embedding calls answered with a sentinel vector
# TYPE openai_plugin_embedding_fallbacks_total counter
openai_plugin_embedding_fallbacks_total{reason="` + tt.reason + `"} 1
`
			require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "openai_plugin_embedding_fallbacks_total"))
		})
	}
}

func TestPlugin_Embed_ConfigErrors(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin()

	t.Run("invalid dimension", func(t *testing.T) {
		rt := runtime.NewMemory(runtime.WithSettings(map[string]string{
			llm.SettingAPIKey:              "sk-test",
			llm.SettingEmbeddingDimensions: "1000",
		}))
		_, err := p.Embed(ctx, rt, &llm.EmbeddingParams{Text: "hi"})
		require.Error(t, err)
		assert.True(t, llm.IsConfigError(err))
		assert.Contains(t, err.Error(), "1000")
	})

	t.Run("non numeric dimension", func(t *testing.T) {
		rt := runtime.NewMemory(runtime.WithSettings(map[string]string{
			llm.SettingAPIKey:              "sk-test",
			llm.SettingEmbeddingDimensions: "large",
		}))
		_, err := p.Embed(ctx, rt, nil)
		assert.True(t, llm.IsConfigError(err))
	})
}

func TestSentinelVector(t *testing.T) {
	v := SentinelVector(3, 0.4)
	assert.Equal(t, []float64{0.4, 0, 0}, v)
	assert.Empty(t, SentinelVector(0, 0.4))
}
