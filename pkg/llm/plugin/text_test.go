package plugin

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
)

func ptr[T any](v T) *T { return &v }

// ═══════════════════════════════════════════════════════════════════════════
// GenerateText
// ═══════════════════════════════════════════════════════════════════════════

func TestPlugin_GenerateText(t *testing.T) {
	var body map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body = readJSON(t, r)
		writeJSON(t, w, http.StatusOK, chatResponse("Hello there", map[string]any{
			"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15,
		}))
	})
	rt := runtime.NewMemory(runtime.WithSettings(map[string]string{
		llm.SettingAPIKey:     "sk-test",
		llm.SettingBaseURL:    u.baseURL(),
		llm.SettingLargeModel: "gpt-4.1",
	}), runtime.WithSystemPrompt("You are a pirate."))

	text, err := newTestPlugin().GenerateText(context.Background(), rt, llm.ModelTypeTextLarge, &llm.TextParams{
		Prompt:        "Say hello",
		StopSequences: []string{"END"},
		MaxTokens:     ptr(64),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)

	assert.Equal(t, "gpt-4.1", body["model"])
	assert.EqualValues(t, 64, body["max_tokens"])
	assert.EqualValues(t, llm.DefaultTemperature, body["temperature"])
	assert.EqualValues(t, llm.DefaultFrequencyPenalty, body["frequency_penalty"])
	assert.EqualValues(t, llm.DefaultPresencePenalty, body["presence_penalty"])
	assert.Equal(t, []any{"END"}, body["stop"])

	wantMessages := []any{
		map[string]any{"role": "system", "content": "You are a pirate."},
		map[string]any{"role": "user", "content": "Say hello"},
	}
	if diff := cmp.Diff(wantMessages, body["messages"]); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	events := rt.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "openai", ev.Provider)
	assert.Equal(t, llm.ModelTypeTextLarge, ev.Type)
	assert.Equal(t, "gpt-4.1", ev.Model)
	assert.Equal(t, "Say hello", ev.Prompt)
	assert.Equal(t, llm.TokenUsage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15}, ev.Tokens)
}

func TestPlugin_GenerateText_ExplicitSystemWins(t *testing.T) {
	var body map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		body = readJSON(t, r)
		writeJSON(t, w, http.StatusOK, chatResponse("ok", nil))
	})
	rt := newRuntime(u, nil)

	_, err := newTestPlugin().GenerateText(context.Background(), rt, llm.ModelTypeTextSmall, &llm.TextParams{
		Prompt: "hi",
		System: "Be terse.",
	})
	require.NoError(t, err)

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "Be terse.", messages[0].(map[string]any)["content"])
	assert.Equal(t, llm.DefaultSmallModel, body["model"])

	// 无 usage 时不发送用量事件
	assert.Empty(t, rt.Events())
}

func TestPlugin_GenerateText_ReasoningModel(t *testing.T) {
	var body map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		body = readJSON(t, r)
		writeJSON(t, w, http.StatusOK, chatResponse("ok", nil))
	})
	rt := newRuntime(u, map[string]string{llm.SettingSmallModel: "o4-mini"})

	_, err := newTestPlugin().GenerateText(context.Background(), rt, llm.ModelTypeTextSmall, &llm.TextParams{Prompt: "hi"})
	require.NoError(t, err)

	assert.EqualValues(t, llm.DefaultMaxTokens, body["max_completion_tokens"])
	assert.NotContains(t, body, "max_tokens")
	assert.EqualValues(t, 1, body["temperature"])
	assert.NotContains(t, body, "frequency_penalty")
}

func TestPlugin_GenerateText_UpstreamError(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", "req_123")
		writeJSON(t, w, http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"message": "upstream exploded", "code": "server_error"},
		})
	})
	rt := newRuntime(u, nil)

	_, err := newTestPlugin().GenerateText(context.Background(), rt, llm.ModelTypeTextSmall, &llm.TextParams{Prompt: "hi"})
	require.Error(t, err)

	apiErr, ok := llm.GetAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, "req_123", apiErr.RequestID)
	assert.Equal(t, "server_error", apiErr.ErrorCode)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "upstream exploded")
	assert.EqualValues(t, 1, u.calls.Load())
	assert.Empty(t, rt.Events())
}

func TestPlugin_GenerateText_Validation(t *testing.T) {
	p := newTestPlugin()
	rt := runtime.NewMemory(runtime.WithSettings(map[string]string{llm.SettingAPIKey: "sk-test"}))
	ctx := context.Background()

	_, err := p.GenerateText(ctx, rt, llm.ModelTypeImage, &llm.TextParams{Prompt: "hi"})
	assert.True(t, llm.IsConfigError(err))

	_, err = p.GenerateText(ctx, rt, llm.ModelTypeTextSmall, nil)
	assert.True(t, llm.IsConfigError(err))
}

// ═══════════════════════════════════════════════════════════════════════════
// StreamText
// ═══════════════════════════════════════════════════════════════════════════

func TestPlugin_StreamText(t *testing.T) {
	var body map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		body = readJSON(t, r)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		chunks := []string{
			`{"choices":[{"delta":{"role":"assistant","content":""}}]}`,
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		}
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})
	rt := newRuntime(u, nil)

	events, err := newTestPlugin().StreamText(context.Background(), rt, llm.ModelTypeTextSmall, &llm.TextParams{Prompt: "greet"})
	require.NoError(t, err)

	var text, finish string
	var usage *llm.TokenUsage
	for ev := range events {
		switch ev.Type {
		case llm.EventTypeText:
			text += ev.TextDelta
		case llm.EventTypeDone:
			finish = ev.FinishReason
		case llm.EventTypeUsage:
			usage = ev.Usage
		case llm.EventTypeError:
			t.Fatalf("unexpected error event: %v", ev.Error)
		}
	}

	assert.Equal(t, "Hello", text)
	assert.Equal(t, "stop", finish)
	require.NotNil(t, usage)
	assert.EqualValues(t, 7, usage.TotalTokens)

	assert.Equal(t, true, body["stream"])
	assert.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])

	recorded := rt.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, "greet", recorded[0].Prompt)
	assert.EqualValues(t, 5, recorded[0].Tokens.InputTokens)
}

func TestPlugin_StreamText_UpstreamError(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{"message": "slow down", "code": "rate_limit_exceeded"},
		})
	})

	_, err := newTestPlugin().StreamText(context.Background(), newRuntime(u, nil), llm.ModelTypeTextSmall, &llm.TextParams{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, 429, llm.GetStatusCode(err))
	assert.Contains(t, err.Error(), "slow down")
}

func TestPlugin_StreamText_ErrorMidStream(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: {\"error\":{\"message\":\"provider overloaded\"}}\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"never\"}}]}\n\n")
	})

	events, err := newTestPlugin().StreamText(context.Background(), newRuntime(u, nil), llm.ModelTypeTextSmall, &llm.TextParams{Prompt: "hi"})
	require.NoError(t, err)

	var text string
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case llm.EventTypeText:
			text += ev.TextDelta
		case llm.EventTypeError:
			streamErr = ev.Error
		}
	}

	assert.Equal(t, "par", text)
	require.Error(t, streamErr)
	assert.True(t, llm.IsStreamError(streamErr))
	assert.Contains(t, streamErr.Error(), "provider overloaded")
}

func TestPlugin_StreamText_CancelStopsRelay(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		// 保持连接直到客户端断开
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := newTestPlugin().StreamText(ctx, newRuntime(u, nil), llm.ModelTypeTextSmall, &llm.TextParams{Prompt: "hi"})
	require.NoError(t, err)

	first := <-events
	require.NotNil(t, first)
	assert.Equal(t, "first", first.TextDelta)

	// 停止读取并取消，channel 仍应关闭
	cancel()
	closed := make(chan struct{})
	go func() {
		for range events {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("stream channel not closed after cancel")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// GenerateObject
// ═══════════════════════════════════════════════════════════════════════════

func TestPlugin_GenerateObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]any
		wantErr bool
	}{
		{
			name:    "plain JSON",
			content: `{"name":"Ada","age":36}`,
			want:    map[string]any{"name": "Ada", "age": float64(36)},
		},
		{
			name:    "fenced JSON",
			content: "```json\n{\"name\":\"Ada\"}\n```",
			want:    map[string]any{"name": "Ada"},
		},
		{
			name:    "surrounding prose",
			content: "Here you go: {\"ok\": true} hope it helps",
			want:    map[string]any{"ok": true},
		},
		{
			name:    "not JSON",
			content: "I cannot do that",
			wantErr: true,
		},
		{
			name:    "array",
			content: `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				body = readJSON(t, r)
				writeJSON(t, w, http.StatusOK, chatResponse(tt.content, nil))
			})

			obj, err := newTestPlugin().GenerateObject(context.Background(), newRuntime(u, nil), llm.ModelTypeObjectLarge, &llm.ObjectParams{
				Prompt: "Describe Ada",
				Schema: map[string]any{"type": "object"},
			})

			assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
			assert.Equal(t, llm.DefaultLargeModel, body["model"])

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, llm.IsResponseError(err))
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, obj); diff != "" {
				t.Errorf("object mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestObjectSystemPrompt(t *testing.T) {
	got, err := objectSystemPrompt("", nil)
	require.NoError(t, err)
	assert.Equal(t, objectInstruction, got)

	got, err = objectSystemPrompt("Be exact.", map[string]any{"type": "object"})
	require.NoError(t, err)
	assert.Contains(t, got, "Be exact.")
	assert.Contains(t, got, objectInstruction)
	assert.Contains(t, got, `{"type":"object"}`)
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"prefix {\"a\":{\"b\":2}} suffix", `{"a":{"b":2}}`},
		{"no braces", "no braces"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, repairJSON(tt.in), "input %q", tt.in)
	}
}
