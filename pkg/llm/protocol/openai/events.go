package openai

import (
	"errors"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// OpenAI SSE 事件处理器
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler OpenAI SSE 事件处理器
//
// 实现 core.EventHandler 接口，处理 OpenAI 流式响应的特有格式。
//
// OpenAI 流式格式：
//   - 无显式事件类型（eventType 总是空字符串）
//   - 数据结构：choices[0].delta
//   - 终止信号：data: [DONE]
//
// delta 结构：
//
//	{
//	  "choices": [{
//	    "delta": {
//	      "content": "...",            // 文本增量
//	      "reasoning_content": "..."   // 推理内容 (DeepSeek R1)
//	    },
//	    "finish_reason": "stop"
//	  }]
//	}
//
// 请求带 stream_options.include_usage 时，最后一个 chunk 的 choices 为空，
// 只携带 usage。
type EventHandler struct {
	adapter *Adapter
}

// NewEventHandler 创建 OpenAI 事件处理器
func NewEventHandler() *EventHandler {
	return &EventHandler{adapter: NewAdapter()}
}

// ═══════════════════════════════════════════════════════════════════════════
// HandleEvent - 处理流式事件
// ═══════════════════════════════════════════════════════════════════════════

// HandleEvent 处理 OpenAI 流式事件
//
// OpenAI 特点：
//   - eventType 参数未使用（总是空字符串）
//   - 增量信息在 data["choices"][0] 中
//   - usage 在顶层，通常位于最后一个 chunk
func (h *EventHandler) HandleEvent(eventType string, data map[string]any) ([]*llm.Event, bool) {
	// 流中途的错误对象：{"error": {"message": "...", "code": ...}}
	if errObj := core.GetMap(data["error"]); errObj != nil {
		return []*llm.Event{streamErrorEvent(errObj)}, true
	}

	var result []*llm.Event

	if choice := core.FirstMap(data["choices"]); choice != nil {
		result = append(result, h.handleChoice(choice)...)
	}

	// usage chunk
	if usage := h.adapter.ConvertUsage(data); usage != nil {
		result = append(result, &llm.Event{
			Type:  llm.EventTypeUsage,
			Usage: usage,
		})
	}

	return result, false
}

// handleChoice 处理单个 choice 的 delta 与完成原因
func (h *EventHandler) handleChoice(choice map[string]any) []*llm.Event {
	var result []*llm.Event

	if delta := core.GetMap(choice["delta"]); delta != nil {
		// 处理文本内容
		if content := core.GetString(delta["content"]); content != "" {
			result = append(result, &llm.Event{
				Type:      llm.EventTypeText,
				TextDelta: content,
			})
		}

		// 处理推理内容 (DeepSeek R1, Kimi thinking)
		if reasoning := core.GetString(delta["reasoning_content"]); reasoning != "" {
			result = append(result, &llm.Event{
				Type:           llm.EventTypeReasoning,
				ReasoningDelta: reasoning,
			})
		}
	}

	// 完成原因放在增量之后
	if fr := core.GetString(choice["finish_reason"]); fr != "" {
		result = append(result, &llm.Event{
			Type:         llm.EventTypeDone,
			FinishReason: fr,
		})
	}

	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// ShouldStopOnData - 检查终止信号
// ═══════════════════════════════════════════════════════════════════════════

// ShouldStopOnData 检查 OpenAI 的 [DONE] 终止信号
//
// OpenAI 使用特殊字符串 "[DONE]" 表示流结束：
//
//	data: [DONE]
func (h *EventHandler) ShouldStopOnData(data string) bool {
	return data == "[DONE]"
}

// streamErrorEvent 把流内错误对象转换为错误事件
func streamErrorEvent(errObj map[string]any) *llm.Event {
	msg := core.GetString(errObj["message"])
	if msg == "" {
		msg = "unknown error"
	}
	streamErr := llm.NewStreamError("upstream error in stream", errors.New(msg))
	return &llm.Event{
		Type:         llm.EventTypeError,
		Error:        streamErr,
		ErrorMessage: streamErr.Error(),
	}
}

// 确保 EventHandler 实现了 core.EventHandler 接口
var _ core.EventHandler = (*EventHandler)(nil)
