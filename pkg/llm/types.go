package llm

import "io"

// ═══════════════════════════════════════════════════════════════════════════
// 文本生成
// ═══════════════════════════════════════════════════════════════════════════

// TextParams 文本生成参数
//
// 指针字段为 nil 时使用默认值（见 config.go）。
type TextParams struct {
	Prompt        string   `json:"prompt"`
	System        string   `json:"system,omitempty"` // 为空时使用运行时的角色设定
	StopSequences []string `json:"stop_sequences,omitempty"`

	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// GetMaxTokens 返回 max_tokens（含默认值）
func (p *TextParams) GetMaxTokens() int {
	if p.MaxTokens != nil {
		return *p.MaxTokens
	}
	return DefaultMaxTokens
}

// GetTemperature 返回 temperature（含默认值）
func (p *TextParams) GetTemperature() float64 {
	return floatOr(p.Temperature, DefaultTemperature)
}

// GetFrequencyPenalty 返回 frequency_penalty（含默认值）
func (p *TextParams) GetFrequencyPenalty() float64 {
	return floatOr(p.FrequencyPenalty, DefaultFrequencyPenalty)
}

// GetPresencePenalty 返回 presence_penalty（含默认值）
func (p *TextParams) GetPresencePenalty() float64 {
	return floatOr(p.PresencePenalty, DefaultPresencePenalty)
}

// ObjectParams 结构化输出参数
type ObjectParams struct {
	Prompt      string         `json:"prompt"`
	System      string         `json:"system,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"` // 可选，作为提示附加到系统消息
	Temperature *float64       `json:"temperature,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 向量与分词
// ═══════════════════════════════════════════════════════════════════════════

// EmbeddingParams 向量参数
type EmbeddingParams struct {
	Text string `json:"text"`
}

// TokenizeParams 分词参数
type TokenizeParams struct {
	Prompt    string    `json:"prompt"`
	ModelType ModelType `json:"model_type,omitempty"` // 默认 TEXT_LARGE
}

// DetokenizeParams 反分词参数
type DetokenizeParams struct {
	Tokens    []int     `json:"tokens"`
	ModelType ModelType `json:"model_type,omitempty"` // 默认 TEXT_LARGE
}

// ═══════════════════════════════════════════════════════════════════════════
// 图像
// ═══════════════════════════════════════════════════════════════════════════

// ImageParams 图像生成参数
type ImageParams struct {
	Prompt string `json:"prompt"`
	N      int    `json:"n,omitempty"`    // 默认 1
	Size   string `json:"size,omitempty"` // 默认 1024x1024
}

// ImageResult 单张生成图像
type ImageResult struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageDescriptionParams 图像描述参数
type ImageDescriptionParams struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt,omitempty"` // 为空时使用默认提示
}

// ImageDescription 图像描述结果
type ImageDescription struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Raw         string `json:"raw,omitempty"` // 自定义提示时的原始回答
}

// ═══════════════════════════════════════════════════════════════════════════
// 音频
// ═══════════════════════════════════════════════════════════════════════════

// TranscriptionParams 语音转写参数
type TranscriptionParams struct {
	Audio       []byte   `json:"-"`
	Filename    string   `json:"filename,omitempty"`  // 默认 recording.mp3
	MimeType    string   `json:"mime_type,omitempty"` // 默认 audio/mpeg
	Model       string   `json:"model,omitempty"`     // 覆盖设置中的模型
	Language    string   `json:"language,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// SpeechParams 语音合成参数
type SpeechParams struct {
	Text         string `json:"text"`
	Model        string `json:"model,omitempty"`
	Voice        string `json:"voice,omitempty"`
	Format       string `json:"format,omitempty"` // mp3, wav, flac, aac, opus, pcm
	Instructions string `json:"instructions,omitempty"`
}

// Audio 语音合成结果
//
// Body 由调用方负责关闭。
type Audio struct {
	Body        io.ReadCloser
	ContentType string
}

// ═══════════════════════════════════════════════════════════════════════════
// 用量
// ═══════════════════════════════════════════════════════════════════════════

// TokenUsage Token 使用量
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

func floatOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
