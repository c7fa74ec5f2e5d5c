package plugin

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// GenerateImage
// ═══════════════════════════════════════════════════════════════════════════

func TestPlugin_GenerateImage(t *testing.T) {
	var body map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body = readJSON(t, r)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"created": 1700000000,
			"data": []any{
				map[string]any{"url": "https://images.example.com/1.png", "revised_prompt": "a fluffy cat"},
				map[string]any{"b64_json": "aGVsbG8="},
			},
		})
	})

	images, err := newTestPlugin().GenerateImage(context.Background(), newRuntime(u, nil), &llm.ImageParams{
		Prompt: "a cat",
		N:      2,
		Size:   "512x512",
	})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, llm.ImageResult{URL: "https://images.example.com/1.png", RevisedPrompt: "a fluffy cat"}, images[0])
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", images[1].URL)

	assert.Equal(t, "a cat", body["prompt"])
	assert.Equal(t, "dall-e-3", body["model"])
	assert.EqualValues(t, 2, body["n"])
	assert.Equal(t, "512x512", body["size"])
	assert.EqualValues(t, 1, u.calls.Load())
}

func TestPlugin_GenerateImage_Defaults(t *testing.T) {
	var body map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		body = readJSON(t, r)
		writeJSON(t, w, http.StatusOK, map[string]any{"created": 1, "data": []any{}})
	})
	rt := newRuntime(u, map[string]string{llm.SettingImageModel: "gpt-image-1"})

	images, err := newTestPlugin().GenerateImage(context.Background(), rt, &llm.ImageParams{Prompt: "a dog"})
	require.NoError(t, err)
	assert.Empty(t, images)
	assert.Equal(t, "gpt-image-1", body["model"])
	assert.EqualValues(t, llm.DefaultImageCount, body["n"])
	assert.Equal(t, llm.DefaultImageSize, body["size"])
}

func TestPlugin_GenerateImage_UpstreamError(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"message": "Your request was rejected by the safety system.",
				"type":    "invalid_request_error",
				"code":    "content_policy_violation",
			},
		})
	})

	_, err := newTestPlugin().GenerateImage(context.Background(), newRuntime(u, nil), &llm.ImageParams{Prompt: "x"})
	require.Error(t, err)

	apiErr, ok := llm.GetAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "content_policy_violation", apiErr.ErrorCode)
	assert.Contains(t, err.Error(), "safety system")
	// 不重试
	assert.EqualValues(t, 1, u.calls.Load())
}

func TestPlugin_GenerateImage_EmptyPrompt(t *testing.T) {
	_, err := newTestPlugin().GenerateImage(context.Background(), nil, &llm.ImageParams{Prompt: "  "})
	assert.True(t, llm.IsConfigError(err))
}

// ═══════════════════════════════════════════════════════════════════════════
// DescribeImage
// ═══════════════════════════════════════════════════════════════════════════

func TestPlugin_DescribeImage(t *testing.T) {
	var body map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body = readJSON(t, r)
		writeJSON(t, w, http.StatusOK, chatResponse("Title: Sunset Over Water\nA vivid orange sunset reflected on a calm lake.", map[string]any{
			"prompt_tokens": 800, "completion_tokens": 20,
		}))
	})
	rt := newRuntime(u, map[string]string{llm.SettingImageDescriptionMaxToken: "300"})

	desc, err := newTestPlugin().DescribeImage(context.Background(), rt, &llm.ImageDescriptionParams{
		ImageURL: "https://example.com/sunset.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sunset Over Water", desc.Title)
	assert.Equal(t, "A vivid orange sunset reflected on a calm lake.", desc.Description)
	assert.Empty(t, desc.Raw)

	assert.Equal(t, llm.DefaultImageDescriptionModel, body["model"])
	assert.EqualValues(t, 300, body["max_tokens"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, defaultDescribePrompt, parts[0].(map[string]any)["text"])
	assert.Equal(t, "https://example.com/sunset.jpg", parts[1].(map[string]any)["image_url"].(map[string]any)["url"])

	events := rt.Events()
	require.Len(t, events, 1)
	assert.EqualValues(t, 820, events[0].Tokens.TotalTokens)
}

func TestPlugin_DescribeImage_CustomPrompt(t *testing.T) {
	const answer = "There are three birds on the wire."
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, chatResponse(answer, nil))
	})

	desc, err := newTestPlugin().DescribeImage(context.Background(), newRuntime(u, nil), &llm.ImageDescriptionParams{
		ImageURL: "https://example.com/birds.jpg",
		Prompt:   "How many birds?",
	})
	require.NoError(t, err)
	assert.Equal(t, answer, desc.Raw)
	assert.Equal(t, defaultImageTitle, desc.Title)
	assert.Equal(t, answer, desc.Description)
}

func TestPlugin_DescribeImage_UpstreamError(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "invalid image url", "code": "invalid_image_url"},
		})
	})

	_, err := newTestPlugin().DescribeImage(context.Background(), newRuntime(u, nil), &llm.ImageDescriptionParams{
		ImageURL: "not-a-url",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, llm.GetStatusCode(err))
}

func TestParseImageDescription(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantTitle string
		wantDesc  string
	}{
		{
			name:      "title line first",
			content:   "Title: A Cat\nA grey cat sleeping.",
			wantTitle: "A Cat",
			wantDesc:  "A grey cat sleeping.",
		},
		{
			name:      "lowercase without colon",
			content:   "title The Dog\nA brown dog.",
			wantTitle: "The Dog",
			wantDesc:  "A brown dog.",
		},
		{
			name:      "title line in the middle",
			content:   "Intro.\nTitle: Middle\nMore text.",
			wantTitle: "Middle",
			wantDesc:  "Intro.\nMore text.",
		},
		{
			name:      "no title",
			content:   "Just a description.",
			wantTitle: defaultImageTitle,
			wantDesc:  "Just a description.",
		},
		{
			name:      "title at end",
			content:   "Description first.\nTitle: Last",
			wantTitle: "Last",
			wantDesc:  "Description first.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseImageDescription(tt.content)
			assert.Equal(t, tt.wantTitle, got.Title)
			assert.Equal(t, tt.wantDesc, got.Description)
		})
	}
}
