package llm

import (
	"slices"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 设置键
// ═══════════════════════════════════════════════════════════════════════════

// 设置键按 运行时设置 → 环境变量 → 默认值 的顺序解析，
// 见 [pkg/llm/settings]。
const (
	SettingAPIKey                   = "OPENAI_API_KEY"
	SettingBaseURL                  = "OPENAI_BASE_URL"
	SettingEmbeddingURL             = "OPENAI_EMBEDDING_URL"
	SettingEmbeddingAPIKey          = "OPENAI_EMBEDDING_API_KEY"
	SettingSmallModel               = "OPENAI_SMALL_MODEL"
	SettingLargeModel               = "OPENAI_LARGE_MODEL"
	SettingSmallModelFallback       = "SMALL_MODEL"
	SettingLargeModelFallback       = "LARGE_MODEL"
	SettingEmbeddingModel           = "OPENAI_EMBEDDING_MODEL"
	SettingEmbeddingDimensions      = "OPENAI_EMBEDDING_DIMENSIONS"
	SettingImageModel               = "OPENAI_IMAGE_MODEL"
	SettingImageDescriptionModel    = "OPENAI_IMAGE_DESCRIPTION_MODEL"
	SettingImageDescriptionMaxToken = "OPENAI_IMAGE_DESCRIPTION_MAX_TOKENS"
	SettingTranscriptionModel       = "OPENAI_TRANSCRIPTION_MODEL"
	SettingTTSModel                 = "OPENAI_TTS_MODEL"
	SettingTTSVoice                 = "OPENAI_TTS_VOICE"
	SettingTTSInstructions          = "OPENAI_TTS_INSTRUCTIONS"
	SettingTimeout                  = "OPENAI_TIMEOUT"
)

// ═══════════════════════════════════════════════════════════════════════════
// 默认值
// ═══════════════════════════════════════════════════════════════════════════

const (
	DefaultBaseURL                  = "https://api.openai.com/v1"
	DefaultSmallModel               = "gpt-4o-mini"
	DefaultLargeModel               = "gpt-4o"
	DefaultEmbeddingModel           = "text-embedding-3-small"
	DefaultEmbeddingDimensions      = 1536
	DefaultImageDescriptionModel    = "gpt-4o-mini"
	DefaultImageDescriptionMaxToken = 8192
	DefaultTranscriptionModel       = "gpt-4o-mini-transcribe"
	DefaultTTSModel                 = "gpt-4o-mini-tts"
	DefaultTTSVoice                 = "nova"
	DefaultTimeout                  = 120 * time.Second

	// 文本生成参数默认值
	DefaultMaxTokens        = 8192
	DefaultTemperature      = 0.7
	DefaultFrequencyPenalty = 0.7
	DefaultPresencePenalty  = 0.7

	// 图像生成默认值
	DefaultImageModel = "dall-e-3"
	DefaultImageCount = 1
	DefaultImageSize  = "1024x1024"
)

// ValidEmbeddingDimensions 允许的向量维度
var ValidEmbeddingDimensions = []int{256, 384, 512, 768, 1024, 1536, 3072}

// IsValidEmbeddingDimension 判断向量维度是否受支持
func IsValidEmbeddingDimension(dim int) bool {
	return slices.Contains(ValidEmbeddingDimensions, dim)
}

// ProviderName 上游服务名称，用于错误和用量事件
const ProviderName = "openai"
