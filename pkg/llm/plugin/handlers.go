package plugin

import (
	"context"
	"fmt"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
)

// Handler 宿主调用的统一入口
//
// params 接受对应的参数结构体（值或指针），也接受宽松形式：
//   - string: 文本、结构化输出、向量、分词、图像生成的提示词，
//     图像描述的图片 URL，语音合成的文本
//   - []byte: 语音转写的音频
//   - []int: 反分词的 token
//   - nil: 向量维度探测
type Handler func(ctx context.Context, rt runtime.Runtime, params any) (any, error)

// Models 返回 ModelType 到 Handler 的映射
func (p *Plugin) Models() map[llm.ModelType]Handler {
	text := func(t llm.ModelType) Handler {
		return func(ctx context.Context, rt runtime.Runtime, params any) (any, error) {
			tp, err := asParams(t, params, func(v any) (*llm.TextParams, bool) {
				s, ok := v.(string)
				return &llm.TextParams{Prompt: s}, ok
			})
			if err != nil {
				return nil, err
			}
			return p.GenerateText(ctx, rt, t, tp)
		}
	}
	object := func(t llm.ModelType) Handler {
		return func(ctx context.Context, rt runtime.Runtime, params any) (any, error) {
			op, err := asParams(t, params, func(v any) (*llm.ObjectParams, bool) {
				s, ok := v.(string)
				return &llm.ObjectParams{Prompt: s}, ok
			})
			if err != nil {
				return nil, err
			}
			return p.GenerateObject(ctx, rt, t, op)
		}
	}

	return map[llm.ModelType]Handler{
		llm.ModelTypeTextSmall:   text(llm.ModelTypeTextSmall),
		llm.ModelTypeTextLarge:   text(llm.ModelTypeTextLarge),
		llm.ModelTypeObjectSmall: object(llm.ModelTypeObjectSmall),
		llm.ModelTypeObjectLarge: object(llm.ModelTypeObjectLarge),

		llm.ModelTypeTextEmbedding: func(ctx context.Context, rt runtime.Runtime, params any) (any, error) {
			ep, err := asParams(llm.ModelTypeTextEmbedding, params, func(v any) (*llm.EmbeddingParams, bool) {
				switch s := v.(type) {
				case nil:
					return nil, true
				case string:
					return &llm.EmbeddingParams{Text: s}, true
				}
				return nil, false
			})
			if err != nil {
				return nil, err
			}
			return p.Embed(ctx, rt, ep)
		},

		llm.ModelTypeTokenizerEncode: func(ctx context.Context, rt runtime.Runtime, params any) (any, error) {
			tp, err := asParams(llm.ModelTypeTokenizerEncode, params, func(v any) (*llm.TokenizeParams, bool) {
				s, ok := v.(string)
				return &llm.TokenizeParams{Prompt: s}, ok
			})
			if err != nil {
				return nil, err
			}
			return p.Tokenize(ctx, rt, tp)
		},

		llm.ModelTypeTokenizerDecode: func(ctx context.Context, rt runtime.Runtime, params any) (any, error) {
			dp, err := asParams(llm.ModelTypeTokenizerDecode, params, func(v any) (*llm.DetokenizeParams, bool) {
				tokens, ok := v.([]int)
				return &llm.DetokenizeParams{Tokens: tokens}, ok
			})
			if err != nil {
				return nil, err
			}
			return p.Detokenize(ctx, rt, dp)
		},

		llm.ModelTypeImage: func(ctx context.Context, rt runtime.Runtime, params any) (any, error) {
			ip, err := asParams(llm.ModelTypeImage, params, func(v any) (*llm.ImageParams, bool) {
				s, ok := v.(string)
				return &llm.ImageParams{Prompt: s}, ok
			})
			if err != nil {
				return nil, err
			}
			return p.GenerateImage(ctx, rt, ip)
		},

		llm.ModelTypeImageDescription: func(ctx context.Context, rt runtime.Runtime, params any) (any, error) {
			dp, err := asParams(llm.ModelTypeImageDescription, params, func(v any) (*llm.ImageDescriptionParams, bool) {
				s, ok := v.(string)
				return &llm.ImageDescriptionParams{ImageURL: s}, ok
			})
			if err != nil {
				return nil, err
			}
			return p.DescribeImage(ctx, rt, dp)
		},

		llm.ModelTypeTranscription: func(ctx context.Context, rt runtime.Runtime, params any) (any, error) {
			tp, err := asParams(llm.ModelTypeTranscription, params, func(v any) (*llm.TranscriptionParams, bool) {
				data, ok := v.([]byte)
				return &llm.TranscriptionParams{Audio: data}, ok
			})
			if err != nil {
				return nil, err
			}
			return p.Transcribe(ctx, rt, tp)
		},

		llm.ModelTypeTextToSpeech: func(ctx context.Context, rt runtime.Runtime, params any) (any, error) {
			sp, err := asParams(llm.ModelTypeTextToSpeech, params, func(v any) (*llm.SpeechParams, bool) {
				s, ok := v.(string)
				return &llm.SpeechParams{Text: s}, ok
			})
			if err != nil {
				return nil, err
			}
			return p.Speak(ctx, rt, sp)
		},
	}
}

// Invoke 按 ModelType 分发调用
func (p *Plugin) Invoke(ctx context.Context, rt runtime.Runtime, t llm.ModelType, params any) (any, error) {
	h, ok := p.Models()[t]
	if !ok {
		return nil, llm.NewUnsupportedModelTypeError(t)
	}
	return h(ctx, rt, params)
}

// asParams 将宿主传入的参数转换为具体类型
func asParams[P any](t llm.ModelType, params any, loose func(any) (*P, bool)) (*P, error) {
	switch v := params.(type) {
	case *P:
		return v, nil
	case P:
		return &v, nil
	}
	if p, ok := loose(params); ok {
		return p, nil
	}
	return nil, llm.NewConfigError(fmt.Sprintf("unsupported params %T for %s", params, t), nil)
}
