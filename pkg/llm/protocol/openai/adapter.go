package openai

import (
	"errors"
	"strings"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// Chat Completions 适配器
// ═══════════════════════════════════════════════════════════════════════════

// ChatOptions 单次 Chat Completions 请求的选项
type ChatOptions struct {
	MaxTokens        int
	Temperature      *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string

	// JSONMode 启用 response_format: json_object
	JSONMode bool

	// Stream 流式请求，同时请求末尾的 usage chunk
	Stream bool
}

// Adapter OpenAI Chat Completions 协议适配器
//
// 负责宿主参数与 /chat/completions 请求体、响应体之间的转换。
//
// 关键协议约束：
//  1. 系统消息内联在消息数组开头
//  2. 视觉输入使用 content 数组（text + image_url）
//  3. Reasoning 模型使用 max_completion_tokens，temperature 固定为 1，不接受 penalty
//  4. Token 字段名：prompt_tokens, completion_tokens
type Adapter struct{}

// NewAdapter 创建 OpenAI 协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建
// ═══════════════════════════════════════════════════════════════════════════

// BuildMessages 构建文本对话消息
//
// system 为空时不生成系统消息。
func (a *Adapter) BuildMessages(system, prompt string) []map[string]any {
	msgs := make([]map[string]any, 0, 2)
	if system != "" {
		msgs = append(msgs, map[string]any{
			"role":    string(RoleSystem),
			"content": system,
		})
	}
	msgs = append(msgs, map[string]any{
		"role":    string(RoleUser),
		"content": prompt,
	})
	return msgs
}

// BuildVisionMessages 构建图像理解消息
//
//	[{"role": "user", "content": [
//	    {"type": "text", "text": "..."},
//	    {"type": "image_url", "image_url": {"url": "..."}}
//	]}]
func (a *Adapter) BuildVisionMessages(prompt, imageURL string) []map[string]any {
	return []map[string]any{
		{
			"role": string(RoleUser),
			"content": []map[string]any{
				{"type": "text", "text": prompt},
				{"type": "image_url", "image_url": map[string]any{"url": imageURL}},
			},
		},
	}
}

// BuildRequest 构建 /chat/completions 请求体
func (a *Adapter) BuildRequest(model string, messages []map[string]any, opts *ChatOptions) map[string]any {
	if opts == nil {
		opts = &ChatOptions{}
	}

	req := map[string]any{
		"model":    model,
		"messages": messages,
	}

	reasoning := IsReasoningModel(model)

	if opts.MaxTokens > 0 {
		if reasoning {
			req["max_completion_tokens"] = opts.MaxTokens
		} else {
			req["max_tokens"] = opts.MaxTokens
		}
	}
	if opts.Temperature != nil {
		req["temperature"] = AdaptTemperatureForModel(model, *opts.Temperature)
	}
	if !reasoning {
		if opts.FrequencyPenalty != nil {
			req["frequency_penalty"] = *opts.FrequencyPenalty
		}
		if opts.PresencePenalty != nil {
			req["presence_penalty"] = *opts.PresencePenalty
		}
	}
	if len(opts.Stop) > 0 {
		req["stop"] = opts.Stop
	}
	if opts.JSONMode {
		req["response_format"] = map[string]any{"type": "json_object"}
	}
	if opts.Stream {
		req["stream"] = true
		req["stream_options"] = map[string]any{"include_usage": true}
	}

	return req
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应解析
// ═══════════════════════════════════════════════════════════════════════════

// errNoChoices 响应中没有 choices
var (
	errNoChoices = errors.New("no choices in response")
	errBadChoice = errors.New("unexpected choice shape")
)

// ConvertFromAPI 解析 Chat Completions 响应
//
// OpenAI 响应格式：
//
//	{
//	  "choices": [{
//	    "message": {"role": "assistant", "content": "..."},
//	    "finish_reason": "stop"
//	  }]
//	}
//
// 没有 choices 时返回 [llm.ResponseError]。content 为 null 时返回空字符串。
func (a *Adapter) ConvertFromAPI(resp map[string]any) (text, finishReason string, err error) {
	choices, _ := resp["choices"].([]any)
	if len(choices) == 0 {
		return "", "", llm.NewResponseError("choices", errNoChoices)
	}

	choice := core.FirstMap(choices)
	if choice == nil {
		return "", "", llm.NewResponseError("choices[0]", errBadChoice)
	}
	finishReason = core.GetString(choice["finish_reason"])

	return extractContent(core.Path(choice, "message", "content")), finishReason, nil
}

// ConvertUsage 解析 OpenAI 的 Token 使用量
//
// 支持两套字段名：
//   - Chat: prompt_tokens, completion_tokens, total_tokens
//   - Embeddings: prompt_tokens, total_tokens
//
// 无 usage 字段时返回 nil；total_tokens 缺失时按输入+输出计算。
func (a *Adapter) ConvertUsage(resp map[string]any) *llm.TokenUsage {
	usage := core.GetMap(resp["usage"])
	if usage == nil {
		return nil
	}

	result := &llm.TokenUsage{
		InputTokens:  core.GetInt64(usage["prompt_tokens"]),
		OutputTokens: core.GetInt64(usage["completion_tokens"]),
		TotalTokens:  core.GetInt64(usage["total_tokens"]),
	}
	if result.TotalTokens == 0 {
		result.TotalTokens = result.InputTokens + result.OutputTokens
	}

	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// extractContent 提取 message.content
//
// 兼容服务偶尔返回 content 数组（[{"type": "text", "text": "..."}]）。
func extractContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, part := range v {
			p := core.GetMap(part)
			if core.GetString(p["type"]) == "text" {
				sb.WriteString(core.GetString(p["text"]))
			}
		}
		return sb.String()
	default:
		return ""
	}
}

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)
