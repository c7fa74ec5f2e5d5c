package plugin

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/core"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/metrics"
	openaiproto "github.com/lwmacct/251217-go-plugin-openai/pkg/llm/protocol/openai"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/settings"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/tokenizer"
)

const description = "OpenAI-compatible model provider: text, objects, embeddings, images, audio and tokenization"

// ═══════════════════════════════════════════════════════════════════════════
// 选项
// ═══════════════════════════════════════════════════════════════════════════

// Option 插件选项
type Option func(*Plugin)

// WithLogger 设置日志记录器
func WithLogger(logger *slog.Logger) Option {
	return func(p *Plugin) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Plugin) {
		p.metrics = c
	}
}

// WithHTTPClient 替换所有上游请求使用的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(p *Plugin) {
		p.httpClient = c
	}
}

// WithEnv 替换环境变量查找
func WithEnv(fn settings.LookupEnv) Option {
	return func(p *Plugin) {
		p.lookupEnv = fn
	}
}

// WithTokenizer 替换分词器
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(p *Plugin) {
		if t != nil {
			p.tokenizer = t
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Plugin
// ═══════════════════════════════════════════════════════════════════════════

// Plugin OpenAI 兼容 API 的模型插件
//
// 不保存调用间状态：每次调用都重新解析设置并构建上游客户端，
// 因此宿主在运行期间修改设置会立即生效。可并发使用。
type Plugin struct {
	logger     *slog.Logger
	metrics    *metrics.Collector
	httpClient *http.Client
	lookupEnv  settings.LookupEnv
	tokenizer  *tokenizer.Tokenizer
	adapter    *openaiproto.Adapter
}

// New 创建插件
func New(opts ...Option) *Plugin {
	p := &Plugin{
		logger:    slog.Default(),
		tokenizer: tokenizer.New(),
		adapter:   openaiproto.NewAdapter(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 插件名称
func (p *Plugin) Name() string {
	return llm.ProviderName
}

// Description 插件描述
func (p *Plugin) Description() string {
	return description
}

// Init 校验凭据
//
// 未配置 API Key 时只记录警告；配置了则请求 GET /models 探测，
// 探测失败同样只记录警告。Init 不会返回错误，插件始终可加载。
func (p *Plugin) Init(ctx context.Context, rt runtime.Runtime) error {
	r := p.resolver(rt)
	if _, ok := r.Lookup(llm.SettingAPIKey); !ok {
		p.logger.Warn("OPENAI_API_KEY is not set; model calls will fail until it is configured")
		return nil
	}

	client, err := p.chatClient(r)
	if err != nil {
		p.logger.Warn("openai client configuration invalid", "error", err)
		return nil
	}

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := client.GetJSON(ctx, "/models", &resp); err != nil {
		p.logger.Warn("openai credential probe failed",
			"base_url", client.BaseURL(),
			"status", llm.GetStatusCode(err),
			"error", err,
		)
		return nil
	}

	p.logger.Info("openai credentials verified",
		"base_url", client.BaseURL(),
		"models", len(resp.Data),
	)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 设置与客户端
// ═══════════════════════════════════════════════════════════════════════════

func (p *Plugin) resolver(rt runtime.Runtime) *settings.Resolver {
	var opts []settings.Option
	if p.lookupEnv != nil {
		opts = append(opts, settings.WithLookupEnv(p.lookupEnv))
	}
	if rt == nil {
		return settings.New(nil, opts...)
	}
	return settings.New(rt, opts...)
}

// newClient 构建 resty 客户端；apiKey 为空时返回 [llm.ConfigError]
func (p *Plugin) newClient(r *settings.Resolver, apiKey, baseURL string) (*core.Client, error) {
	if apiKey == "" {
		return nil, llm.NewMissingAPIKeyError(llm.SettingAPIKey)
	}
	timeout, err := r.Duration(llm.SettingTimeout, llm.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return core.NewClient(&core.Config{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Timeout:    timeout,
		HTTPClient: p.httpClient,
	})
}

func (p *Plugin) chatClient(r *settings.Resolver) (*core.Client, error) {
	return p.newClient(r,
		r.Get(llm.SettingAPIKey, ""),
		r.Get(llm.SettingBaseURL, llm.DefaultBaseURL),
	)
}

// embeddingClient 向量请求可使用独立的地址与密钥，未设置时回退到通用设置
func (p *Plugin) embeddingClient(r *settings.Resolver) (*core.Client, error) {
	return p.newClient(r,
		r.First("", llm.SettingEmbeddingAPIKey, llm.SettingAPIKey),
		r.First(llm.DefaultBaseURL, llm.SettingEmbeddingURL, llm.SettingBaseURL),
	)
}

// sdkClient 构建 openai-go 客户端，用于图像生成与语音转写
func (p *Plugin) sdkClient(r *settings.Resolver) (openai.Client, error) {
	apiKey := r.Get(llm.SettingAPIKey, "")
	if apiKey == "" {
		return openai.Client{}, llm.NewMissingAPIKeyError(llm.SettingAPIKey)
	}
	timeout, err := r.Duration(llm.SettingTimeout, llm.DefaultTimeout)
	if err != nil {
		return openai.Client{}, err
	}
	baseURL := strings.TrimRight(r.Get(llm.SettingBaseURL, llm.DefaultBaseURL), "/") + "/"

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if p.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(p.httpClient))
	}
	return openai.NewClient(opts...), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 用量与指标
// ═══════════════════════════════════════════════════════════════════════════

// emitUsage 上游报告了用量时向宿主发送 ModelUsedEvent
//
// 发送失败只记录日志，不影响调用结果。
func (p *Plugin) emitUsage(ctx context.Context, rt runtime.Runtime, t llm.ModelType, model, prompt string, usage *llm.TokenUsage) {
	if usage == nil {
		return
	}
	p.metrics.AddTokens(t.String(), usage.InputTokens, usage.OutputTokens)
	if rt == nil {
		return
	}

	event := &llm.ModelUsedEvent{
		ID:        uuid.NewString(),
		Provider:  llm.ProviderName,
		Type:      t,
		Model:     model,
		Prompt:    prompt,
		Tokens:    *usage,
		Timestamp: time.Now(),
	}
	if err := rt.EmitModelUsed(ctx, event); err != nil {
		p.logger.Warn("emit model usage failed", "model_type", t, "error", err)
	}
}

// observe 记录调用耗时与结果，配合 defer 使用：
//
//	defer p.observe(llm.ModelTypeImage, time.Now(), &err)
func (p *Plugin) observe(t llm.ModelType, start time.Time, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	p.metrics.ObserveRequest(t.String(), e, time.Since(start))
}

// systemPrompt 参数中的系统提示优先，否则使用运行时的角色设定
func systemPrompt(rt runtime.Runtime, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if rt == nil {
		return ""
	}
	return rt.SystemPrompt()
}
