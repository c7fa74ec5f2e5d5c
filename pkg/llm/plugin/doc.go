// Package plugin 将宿主运行时的模型调用适配到 OpenAI 兼容 API
//
// 每种 [llm.ModelType] 对应一个类型化方法，也可以通过 [Plugin.Models]
// 返回的 Handler 表或 [Plugin.Invoke] 以宽松参数调用。
//
// # 调用约定
//
// 每次调用：
//  1. 解析设置（运行时设置 → 环境变量 → 默认值）
//  2. 校验凭据，缺少 API Key 时在任何网络请求之前返回 [llm.ConfigError]
//  3. 向上游发起恰好一次请求，不重试
//  4. 响应携带 usage 时向运行时发送 [llm.ModelUsedEvent]
//
// 上游错误以 [llm.APIError] 等类型返回；向量请求例外，
// 上游异常时返回哨兵向量（见 [Plugin.Embed]）。
//
// # 传输
//
// 文本、结构化输出、向量、图像描述与语音合成使用 [core.Client]（resty）；
// 图像生成与语音转写使用 openai-go SDK。
//
// # 使用示例
//
//	rt := runtime.NewMemory(runtime.WithSettings(map[string]string{
//	    llm.SettingAPIKey: os.Getenv("OPENAI_API_KEY"),
//	}))
//	p := plugin.New(plugin.WithLogger(slog.Default()))
//	_ = p.Init(ctx, rt)
//
//	text, err := p.GenerateText(ctx, rt, llm.ModelTypeTextSmall, &llm.TextParams{
//	    Prompt: "Say hello",
//	})
package plugin
