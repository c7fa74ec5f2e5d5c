package llm

import "time"

// ═══════════════════════════════════════════════════════════════════════════
// 流式事件
// ═══════════════════════════════════════════════════════════════════════════

// EventType 事件类型
type EventType string

const (
	EventTypeText      EventType = "text"      // 文本增量
	EventTypeReasoning EventType = "reasoning" // 推理过程增量
	EventTypeUsage     EventType = "usage"     // 用量（流末尾的 usage chunk）
	EventTypeDone      EventType = "done"      // 完成
	EventTypeError     EventType = "error"     // 错误
)

// Event 流式文本生成事件
//
// 使用示例：
//
//	events, _ := p.StreamText(ctx, rt, llm.ModelTypeTextSmall, params)
//	for event := range events {
//	    switch event.Type {
//	    case llm.EventTypeText:
//	        fmt.Print(event.TextDelta)
//	    case llm.EventTypeDone:
//	        fmt.Printf("\nDone! Reason: %s\n", event.FinishReason)
//	    }
//	}
type Event struct {
	Type EventType `json:"type"`

	TextDelta      string `json:"text_delta,omitempty"`
	ReasoningDelta string `json:"reasoning_delta,omitempty"`

	Usage *TokenUsage `json:"usage,omitempty"`

	FinishReason string `json:"finish_reason,omitempty"`

	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 用量事件
// ═══════════════════════════════════════════════════════════════════════════

// ModelUsedEvent 用量记账事件
//
// 上游响应携带 usage 时由插件发送给宿主运行时。
type ModelUsedEvent struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	Type      ModelType  `json:"type"`
	Model     string     `json:"model,omitempty"`
	Prompt    string     `json:"prompt"`
	Tokens    TokenUsage `json:"tokens"`
	Timestamp time.Time  `json:"timestamp"`
}
