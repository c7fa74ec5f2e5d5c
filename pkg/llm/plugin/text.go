package plugin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/core"
	openaiproto "github.com/lwmacct/251217-go-plugin-openai/pkg/llm/protocol/openai"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/settings"
)

const chatCompletionsPath = "/chat/completions"

// objectInstruction 追加到结构化输出的系统消息；json_object 模式要求消息中出现 "JSON"
const objectInstruction = "Respond only with a single valid JSON object. Do not wrap it in markdown."

// ═══════════════════════════════════════════════════════════════════════════
// 模型选择
// ═══════════════════════════════════════════════════════════════════════════

// chatModel 按规格解析模型名：OPENAI_{SMALL,LARGE}_MODEL → {SMALL,LARGE}_MODEL → 默认值
func chatModel(r *settings.Resolver, size llm.Size) string {
	if size == llm.SizeSmall {
		return r.First(llm.DefaultSmallModel, llm.SettingSmallModel, llm.SettingSmallModelFallback)
	}
	return r.First(llm.DefaultLargeModel, llm.SettingLargeModel, llm.SettingLargeModelFallback)
}

// ═══════════════════════════════════════════════════════════════════════════
// 文本生成
// ═══════════════════════════════════════════════════════════════════════════

// GenerateText 文本生成（TEXT_SMALL / TEXT_LARGE）
func (p *Plugin) GenerateText(ctx context.Context, rt runtime.Runtime, t llm.ModelType, params *llm.TextParams) (text string, err error) {
	defer p.observe(t, time.Now(), &err)

	client, model, req, err := p.prepareText(rt, t, params, false)
	if err != nil {
		return "", err
	}

	p.logger.Debug("generating text", "model_type", t, "model", model)

	var resp map[string]any
	if err := client.PostJSON(ctx, chatCompletionsPath, req, &resp); err != nil {
		p.logger.Error("text generation failed", "model_type", t, "model", model, "error", err)
		return "", err
	}

	text, _, err = p.adapter.ConvertFromAPI(resp)
	if err != nil {
		return "", err
	}

	p.emitUsage(ctx, rt, t, model, params.Prompt, p.adapter.ConvertUsage(resp))
	return text, nil
}

// StreamText 流式文本生成
//
// 返回的 channel 在流结束后关闭。调用方要么读完 channel，要么在提前停止读取时
// 取消 ctx；否则转发 goroutine 会阻塞在发送上，上游连接也不会释放。
// 流末尾的 usage chunk 会作为 [llm.EventTypeUsage] 事件转发，同时发送用量事件。
func (p *Plugin) StreamText(ctx context.Context, rt runtime.Runtime, t llm.ModelType, params *llm.TextParams) (<-chan *llm.Event, error) {
	start := time.Now()

	client, model, req, err := p.prepareText(rt, t, params, true)
	if err != nil {
		p.observe(t, start, &err)
		return nil, err
	}

	p.logger.Debug("streaming text", "model_type", t, "model", model)

	upstream, err := client.Stream(ctx, chatCompletionsPath, req, openaiproto.NewEventHandler())
	if err != nil {
		p.logger.Error("text stream failed", "model_type", t, "model", model, "error", err)
		p.observe(t, start, &err)
		return nil, err
	}

	out := make(chan *llm.Event, 10)
	go func() {
		defer close(out)

		var streamErr error
		for ev := range upstream {
			switch ev.Type {
			case llm.EventTypeUsage:
				p.emitUsage(ctx, rt, t, model, params.Prompt, ev.Usage)
			case llm.EventTypeError:
				streamErr = ev.Error
			}

			// 调用方放弃后继续读空上游，让解析 goroutine 退出
			if ctx.Err() != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		if streamErr == nil && ctx.Err() != nil {
			streamErr = ctx.Err()
		}
		p.observe(t, start, &streamErr)
	}()

	return out, nil
}

func (p *Plugin) prepareText(rt runtime.Runtime, t llm.ModelType, params *llm.TextParams, stream bool) (client *core.Client, model string, req map[string]any, err error) {
	if !t.IsText() {
		return nil, "", nil, llm.NewUnsupportedModelTypeError(t)
	}
	if params == nil {
		return nil, "", nil, llm.NewConfigError("text params are required", nil)
	}

	r := p.resolver(rt)
	c, err := p.chatClient(r)
	if err != nil {
		return nil, "", nil, err
	}

	model = chatModel(r, t.Size())
	temperature := params.GetTemperature()
	frequency := params.GetFrequencyPenalty()
	presence := params.GetPresencePenalty()

	req = p.adapter.BuildRequest(model,
		p.adapter.BuildMessages(systemPrompt(rt, params.System), params.Prompt),
		&openaiproto.ChatOptions{
			MaxTokens:        params.GetMaxTokens(),
			Temperature:      &temperature,
			FrequencyPenalty: &frequency,
			PresencePenalty:  &presence,
			Stop:             params.StopSequences,
			Stream:           stream,
		},
	)
	return c, model, req, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 结构化输出
// ═══════════════════════════════════════════════════════════════════════════

// GenerateObject 结构化输出（OBJECT_SMALL / OBJECT_LARGE）
//
// 使用 json_object 模式；模型返回的 JSON 无法直接解析时，
// 去掉 markdown 代码围栏后在本地重试一次。
func (p *Plugin) GenerateObject(ctx context.Context, rt runtime.Runtime, t llm.ModelType, params *llm.ObjectParams) (obj map[string]any, err error) {
	defer p.observe(t, time.Now(), &err)

	if !t.IsObject() {
		return nil, llm.NewUnsupportedModelTypeError(t)
	}
	if params == nil {
		return nil, llm.NewConfigError("object params are required", nil)
	}

	r := p.resolver(rt)
	client, err := p.chatClient(r)
	if err != nil {
		return nil, err
	}

	model := chatModel(r, t.Size())
	system, err := objectSystemPrompt(systemPrompt(rt, params.System), params.Schema)
	if err != nil {
		return nil, err
	}

	opts := &openaiproto.ChatOptions{JSONMode: true}
	if params.Temperature != nil {
		opts.Temperature = params.Temperature
	}
	req := p.adapter.BuildRequest(model, p.adapter.BuildMessages(system, params.Prompt), opts)

	p.logger.Debug("generating object", "model_type", t, "model", model)

	var resp map[string]any
	if err := client.PostJSON(ctx, chatCompletionsPath, req, &resp); err != nil {
		p.logger.Error("object generation failed", "model_type", t, "model", model, "error", err)
		return nil, err
	}

	text, _, err := p.adapter.ConvertFromAPI(resp)
	if err != nil {
		return nil, err
	}

	p.emitUsage(ctx, rt, t, model, params.Prompt, p.adapter.ConvertUsage(resp))

	obj, err = parseObject(text)
	if err != nil {
		p.logger.Warn("object response is not valid JSON", "model", model, "error", err)
		return nil, err
	}
	return obj, nil
}

func objectSystemPrompt(base string, schema map[string]any) (string, error) {
	parts := make([]string, 0, 3)
	if base != "" {
		parts = append(parts, base)
	}
	parts = append(parts, objectInstruction)
	if len(schema) > 0 {
		data, err := json.Marshal(schema)
		if err != nil {
			return "", llm.NewRequestError("marshal schema", err)
		}
		parts = append(parts, "The JSON must conform to this JSON Schema: "+string(data))
	}
	return strings.Join(parts, "\n\n"), nil
}

var errNotObject = errors.New("response is not a JSON object")

// parseObject 解析 JSON 对象，失败时修复一次
func parseObject(text string) (map[string]any, error) {
	obj, err := decodeObject(text)
	if err == nil {
		return obj, nil
	}

	repaired := repairJSON(text)
	if repaired == text {
		return nil, llm.NewResponseError("object", err)
	}
	obj, err = decodeObject(repaired)
	if err != nil {
		return nil, llm.NewResponseError("object", err)
	}
	return obj, nil
}

func decodeObject(text string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNotObject
	}
	return obj, nil
}

// repairJSON 去掉 ```json 围栏和对象前后的多余文本
func repairJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
