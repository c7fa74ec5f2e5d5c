package core

import (
	"bufio"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// EventHandler
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler 把单个 SSE 数据块翻译为 [llm.Event]
//
// Chat Completions 流只有 "data:" 行并以 [DONE] 结束；部分兼容服务会额外
// 发送 "event:" 行，此时 eventType 非空。
type EventHandler interface {
	// HandleEvent 处理一个已解码的数据块，stop 为 true 时解析器立即退出
	HandleEvent(eventType string, data map[string]any) (events []*llm.Event, stop bool)

	// ShouldStopOnData 判断原始数据是否为终止标记
	ShouldStopOnData(data string) bool
}

// ═══════════════════════════════════════════════════════════════════════════
// SSEParser
// ═══════════════════════════════════════════════════════════════════════════

// maxSSELineBytes 单行及跨行累积数据的上限
const maxSSELineBytes = 1 << 20

// SSEParser 逐行读取 SSE 流并把数据块交给 [EventHandler]
//
// 处理规则：
//   - ":" 开头的注释行（keep-alive）忽略
//   - 单行能解码为 JSON 时立即分发
//   - 单行不完整时与后续 data 行拼接，直到能解码或遇到空行
//   - 无法解码的数据在空行处丢弃
type SSEParser struct {
	handler EventHandler
}

// NewSSEParser 创建解析器
func NewSSEParser(handler EventHandler) *SSEParser {
	return &SSEParser{handler: handler}
}

// Parse 读取 body 直到结束、终止标记或 handler 要求停止
//
// 应在独立 goroutine 中调用。返回前关闭 body 与 events；
// 读取失败时先发送一个 [llm.EventTypeError] 事件。
// 终止标记只在 handler 尚未产生完成事件时补发一个 finish_reason 为 "stop" 的完成事件。
//
//	events := make(chan *llm.Event, 10)
//	go parser.Parse(resp.RawBody(), events)
func (p *SSEParser) Parse(body io.ReadCloser, events chan<- *llm.Event) {
	defer func() { _ = body.Close() }()
	defer close(events)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineBytes)

	var (
		eventType string
		pending   strings.Builder
		done      bool // 已转发过 handler 产生的完成事件
	)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			// 空行结束一个 SSE 事件
			eventType = ""
			pending.Reset()
			continue
		case strings.HasPrefix(line, ":"):
			continue
		}

		if after, ok := strings.CutPrefix(line, "event:"); ok {
			eventType = strings.TrimSpace(after)
			continue
		}

		after, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data := strings.TrimSpace(after)

		if p.handler.ShouldStopOnData(data) {
			if !done {
				events <- &llm.Event{Type: llm.EventTypeDone, FinishReason: "stop"}
			}
			return
		}

		payload, ok := decodeChunk(data)
		if ok {
			pending.Reset()
		} else {
			if pending.Len() > 0 {
				pending.WriteByte('\n')
			}
			pending.WriteString(data)
			if pending.Len() > maxSSELineBytes {
				pending.Reset()
				continue
			}
			if payload, ok = decodeChunk(pending.String()); !ok {
				continue
			}
			pending.Reset()
		}

		parsed, stop := p.handler.HandleEvent(eventType, payload)
		for _, ev := range parsed {
			if ev.Type == llm.EventTypeDone {
				done = true
			}
			events <- ev
		}
		if stop {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		streamErr := llm.NewStreamError("read stream", err)
		events <- &llm.Event{
			Type:         llm.EventTypeError,
			Error:        streamErr,
			ErrorMessage: streamErr.Error(),
		}
	}
}

// decodeChunk 解码一个 JSON 对象数据块
func decodeChunk(data string) (map[string]any, bool) {
	if data == "" {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, false
	}
	return payload, true
}
