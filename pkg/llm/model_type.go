package llm

// ModelType 模型能力类型
//
// 宿主运行时通过 ModelType 请求某类能力，而不关心具体的上游服务。
type ModelType string

const (
	// ModelTypeTextSmall 小模型文本生成
	ModelTypeTextSmall ModelType = "TEXT_SMALL"

	// ModelTypeTextLarge 大模型文本生成
	ModelTypeTextLarge ModelType = "TEXT_LARGE"

	// ModelTypeObjectSmall 小模型结构化输出
	ModelTypeObjectSmall ModelType = "OBJECT_SMALL"

	// ModelTypeObjectLarge 大模型结构化输出
	ModelTypeObjectLarge ModelType = "OBJECT_LARGE"

	// ModelTypeTextEmbedding 文本向量
	ModelTypeTextEmbedding ModelType = "TEXT_EMBEDDING"

	// ModelTypeTokenizerEncode 文本转 token
	ModelTypeTokenizerEncode ModelType = "TEXT_TOKENIZER_ENCODE"

	// ModelTypeTokenizerDecode token 转文本
	ModelTypeTokenizerDecode ModelType = "TEXT_TOKENIZER_DECODE"

	// ModelTypeImage 图像生成
	ModelTypeImage ModelType = "IMAGE"

	// ModelTypeImageDescription 图像描述（视觉模型）
	ModelTypeImageDescription ModelType = "IMAGE_DESCRIPTION"

	// ModelTypeTranscription 语音转文字
	ModelTypeTranscription ModelType = "TRANSCRIPTION"

	// ModelTypeTextToSpeech 文字转语音
	ModelTypeTextToSpeech ModelType = "TEXT_TO_SPEECH"
)

// Size 模型规格
type Size string

const (
	SizeSmall Size = "small"
	SizeLarge Size = "large"
)

// AllModelTypes 返回插件支持的全部 ModelType
func AllModelTypes() []ModelType {
	return []ModelType{
		ModelTypeTextSmall,
		ModelTypeTextLarge,
		ModelTypeObjectSmall,
		ModelTypeObjectLarge,
		ModelTypeTextEmbedding,
		ModelTypeTokenizerEncode,
		ModelTypeTokenizerDecode,
		ModelTypeImage,
		ModelTypeImageDescription,
		ModelTypeTranscription,
		ModelTypeTextToSpeech,
	}
}

// String 返回字符串表示
func (t ModelType) String() string {
	return string(t)
}

// IsValid 判断是否为已知类型
func (t ModelType) IsValid() bool {
	for _, v := range AllModelTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// IsText 判断是否为文本生成类型
func (t ModelType) IsText() bool {
	return t == ModelTypeTextSmall || t == ModelTypeTextLarge
}

// IsObject 判断是否为结构化输出类型
func (t ModelType) IsObject() bool {
	return t == ModelTypeObjectSmall || t == ModelTypeObjectLarge
}

// Size 返回文本/结构化类型对应的模型规格
//
// 非文本类型返回空字符串。
func (t ModelType) Size() Size {
	switch t {
	case ModelTypeTextSmall, ModelTypeObjectSmall:
		return SizeSmall
	case ModelTypeTextLarge, ModelTypeObjectLarge:
		return SizeLarge
	default:
		return ""
	}
}
