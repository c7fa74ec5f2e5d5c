package openai

import "strings"

// ═══════════════════════════════════════════════════════════════════════════
// Reasoning 模型适配
// ═══════════════════════════════════════════════════════════════════════════

// reasoningModelPrefixes Reasoning 模型前缀列表
// 这些模型有特殊要求：temperature 必须为 1，不支持 penalty，使用 max_completion_tokens
var reasoningModelPrefixes = []string{
	"o1",
	"o3",
	"o4",
	"gpt-5",
	"deepseek-reasoner",
	"deepseek-r1",
}

// IsReasoningModel 判断是否为 Reasoning 模型
//
// 带路径前缀的模型名（如 "openai/o3-mini"）按最后一段判断。
func IsReasoningModel(model string) bool {
	modelLower := strings.ToLower(model)
	if idx := strings.LastIndex(modelLower, "/"); idx >= 0 {
		modelLower = modelLower[idx+1:]
	}
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(modelLower, prefix) {
			return true
		}
	}
	return false
}

// AdaptTemperatureForModel 根据模型类型适配温度参数
//
// Reasoning 模型强制返回 1.0，其他模型返回原值
func AdaptTemperatureForModel(model string, requestedTemp float64) float64 {
	if IsReasoningModel(model) {
		return 1.0
	}
	return requestedTemp
}
