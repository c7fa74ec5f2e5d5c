// Package tokenizer 基于 tiktoken 的本地分词
//
// 编码按模型名选择并缓存；无法识别的模型按家族回退：
// gpt-4o / gpt-5 / o 系列使用 o200k_base，其余使用 cl100k_base。
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
)

const (
	EncodingO200K  = "o200k_base"
	EncodingCL100K = "cl100k_base"
)

// Tokenizer 带缓存的 tiktoken 编码器集合
//
// 零值可用，并发安全。
type Tokenizer struct {
	cache sync.Map // 规范化模型名 -> *tiktoken.Tiktoken
}

// New 创建分词器
func New() *Tokenizer {
	return &Tokenizer{}
}

// Encode 将文本编码为 token ID
func (t *Tokenizer) Encode(model, text string) ([]int, error) {
	enc, err := t.encoding(model)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return []int{}, nil
	}
	return enc.Encode(text, nil, nil), nil
}

// Decode 将 token ID 还原为文本
func (t *Tokenizer) Decode(model string, tokens []int) (string, error) {
	enc, err := t.encoding(model)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", nil
	}
	return enc.Decode(tokens), nil
}

// EncodingName 返回模型对应的编码名称（不加载 BPE 数据）
func EncodingName(model string) string {
	base := normalizeModelName(model)
	if enc, ok := tiktoken.MODEL_TO_ENCODING[base]; ok {
		return enc
	}
	// 取最长前缀匹配
	best, bestLen := "", 0
	for prefix, enc := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if len(prefix) > bestLen && strings.HasPrefix(base, prefix) {
			best, bestLen = enc, len(prefix)
		}
	}
	if best != "" {
		return best
	}
	return fallbackEncoding(base)
}

func (t *Tokenizer) encoding(model string) (*tiktoken.Tiktoken, error) {
	base := normalizeModelName(model)
	if cached, ok := t.cache.Load(base); ok {
		return cached.(*tiktoken.Tiktoken), nil
	}

	enc, err := tiktoken.EncodingForModel(base)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding(base))
		if err != nil {
			return nil, llm.NewConfigError("load encoding for "+model, err)
		}
	}

	actual, _ := t.cache.LoadOrStore(base, enc)
	return actual.(*tiktoken.Tiktoken), nil
}

func fallbackEncoding(base string) string {
	switch {
	case strings.HasPrefix(base, "gpt-4o"),
		strings.HasPrefix(base, "gpt-5"),
		isOSeries(base):
		return EncodingO200K
	default:
		return EncodingCL100K
	}
}

// isOSeries 匹配 o1 / o3 / o4-mini 等
func isOSeries(base string) bool {
	return len(base) >= 2 && base[0] == 'o' && base[1] >= '0' && base[1] <= '9'
}

func normalizeModelName(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if idx := strings.LastIndex(model, "/"); idx >= 0 && idx+1 < len(model) {
		return model[idx+1:]
	}
	return model
}
