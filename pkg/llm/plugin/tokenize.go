package plugin

import (
	"context"
	"time"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
)

// tokenizerModel 分词使用的模型名，默认按大模型
func (p *Plugin) tokenizerModel(rt runtime.Runtime, t llm.ModelType) string {
	size := t.Size()
	if size == "" {
		size = llm.SizeLarge
	}
	return chatModel(p.resolver(rt), size)
}

// Tokenize 本地分词（TEXT_TOKENIZER_ENCODE），不访问网络
func (p *Plugin) Tokenize(_ context.Context, rt runtime.Runtime, params *llm.TokenizeParams) (tokens []int, err error) {
	defer p.observe(llm.ModelTypeTokenizerEncode, time.Now(), &err)

	if params == nil {
		return nil, llm.NewConfigError("tokenize params are required", nil)
	}
	return p.tokenizer.Encode(p.tokenizerModel(rt, params.ModelType), params.Prompt)
}

// Detokenize 本地反分词（TEXT_TOKENIZER_DECODE），不访问网络
func (p *Plugin) Detokenize(_ context.Context, rt runtime.Runtime, params *llm.DetokenizeParams) (text string, err error) {
	defer p.observe(llm.ModelTypeTokenizerDecode, time.Now(), &err)

	if params == nil {
		return "", llm.NewConfigError("detokenize params are required", nil)
	}
	return p.tokenizer.Decode(p.tokenizerModel(rt, params.ModelType), params.Tokens)
}
