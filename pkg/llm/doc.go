// Package llm 定义插件与宿主运行时之间共享的类型
//
// 本包不发起任何网络请求，只包含：
//   - [ModelType]: 宿主请求的能力类型（TEXT_SMALL、TEXT_EMBEDDING 等）
//   - 各能力的参数与结果类型（[TextParams]、[EmbeddingParams] ...）
//   - [Event] 与 [ModelUsedEvent]：流式事件与用量记账事件
//   - 错误类型层次（[ConfigError]、[APIError] ...）
//   - 设置键与默认值
//
// # 设置解析
//
// 每个设置按以下顺序解析（空字符串视为未设置）：
//
//  1. 运行时设置（宿主提供）
//  2. 环境变量
//  3. 硬编码默认值
//
// 主要设置：
//   - OPENAI_API_KEY: 必需，缺失时所有调用在发起网络请求前失败
//   - OPENAI_BASE_URL: 默认 https://api.openai.com/v1
//   - OPENAI_SMALL_MODEL / SMALL_MODEL: 默认 gpt-4o-mini
//   - OPENAI_LARGE_MODEL / LARGE_MODEL: 默认 gpt-4o
//   - OPENAI_EMBEDDING_MODEL / OPENAI_EMBEDDING_DIMENSIONS
//
// # 子包
//
//   - [pkg/llm/settings]: 设置解析
//   - [pkg/llm/core]: 上游 HTTP 客户端与 SSE 解析
//   - [pkg/llm/protocol/openai]: Chat Completions 请求/响应转换
//   - [pkg/llm/tokenizer]: tiktoken 分词
//   - [pkg/llm/metrics]: Prometheus 指标
//   - [pkg/llm/runtime]: 宿主运行时接口
//   - [pkg/llm/plugin]: 按 ModelType 分发的插件本体
//
// # 包文件组织
//
//   - model_type.go: ModelType 枚举
//   - types.go: 参数与结果
//   - event.go: Event、ModelUsedEvent
//   - errors.go: 错误类型
//   - config.go: 设置键与默认值
package llm
