package core

import (
	"context"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
)

// maxErrorBodyBytes 读取错误响应体的上限
const maxErrorBodyBytes = 64 << 10

// ═══════════════════════════════════════════════════════════════════════════
// 配置
// ═══════════════════════════════════════════════════════════════════════════

// Config 上游客户端配置
type Config struct {
	// APIKey API 密钥（必需）
	APIKey string

	// BaseURL API 基础地址，默认 https://api.openai.com/v1
	BaseURL string

	// Timeout 请求超时时间，默认 120 秒
	Timeout time.Duration

	// Headers 额外的请求头
	Headers map[string]string

	// HTTPClient 自定义底层 HTTP 客户端（可选）
	HTTPClient *http.Client
}

// ═══════════════════════════════════════════════════════════════════════════
// Client
// ═══════════════════════════════════════════════════════════════════════════

// Client OpenAI 兼容 API 的 HTTP 客户端
//
// 封装 resty：认证头、基础地址、超时、错误分类。
// 每个方法只发起一次请求，不做重试。
//
// 错误分类：
//   - 请求体序列化失败: [llm.RequestError]
//   - 网络/超时: [llm.HTTPError]
//   - 状态码 >= 400: [llm.APIError]（含状态码、响应文本、X-Request-ID）
//   - 响应体解析失败: [llm.ResponseError]
type Client struct {
	config *Config
	resty  *resty.Client
}

// NewClient 创建客户端
//
// APIKey 为空时返回 [llm.ConfigError]，不会发起任何请求。
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, llm.NewConfigError("config is required", nil)
	}
	if config.APIKey == "" {
		return nil, llm.NewMissingAPIKeyError(llm.SettingAPIKey)
	}

	cfg := *config
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = llm.DefaultBaseURL
	}
	cfg.Timeout = GetDefaultTimeout(cfg.Timeout)

	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}
	maps.Copy(headers, cfg.Headers)

	var r *resty.Client
	if cfg.HTTPClient != nil {
		// resty 会写入 Timeout 与 Jar，调用方的客户端可能被并发共享，只改副本
		hc := *cfg.HTTPClient
		r = resty.NewWithClient(&hc)
	} else {
		r = resty.New()
	}
	r.SetBaseURL(cfg.BaseURL)
	r.SetTimeout(cfg.Timeout)
	r.SetJSONMarshaler(json.Marshal)
	r.SetJSONUnmarshaler(json.Unmarshal)
	for k, v := range headers {
		r.SetHeader(k, v)
	}

	return &Client{
		config: &cfg,
		resty:  r,
	}, nil
}

// BaseURL 返回规范化后的基础地址
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// PostJSON 发送 JSON 请求并解析 JSON 响应
//
// out 为 nil 时忽略响应体。
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return llm.NewRequestError("marshal", err)
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(bodyBytes).
		Post(path)
	if err != nil {
		return llm.NewHTTPError("request failed", err)
	}

	if resp.StatusCode() >= 400 {
		return c.apiError(resp.StatusCode(), resp.String(), resp.Header())
	}

	return decodeBody(resp.Body(), out)
}

// GetJSON 发送 GET 请求并解析 JSON 响应
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return llm.NewHTTPError("request failed", err)
	}

	if resp.StatusCode() >= 400 {
		return c.apiError(resp.StatusCode(), resp.String(), resp.Header())
	}

	return decodeBody(resp.Body(), out)
}

// PostRaw 发送 JSON 请求并返回未解析的响应体
//
// 用于二进制响应（如语音合成）。调用方负责关闭返回的 body。
// contentType 为响应的 Content-Type。
func (c *Client) PostRaw(ctx context.Context, path string, body any, accept string) (rc io.ReadCloser, contentType string, err error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, "", llm.NewRequestError("marshal", err)
	}

	req := c.resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(bodyBytes).
		SetDoNotParseResponse(true)
	if accept != "" {
		req.SetHeader("Accept", accept)
	}

	resp, err := req.Post(path)
	if err != nil {
		return nil, "", llm.NewHTTPError("request failed", err)
	}

	if resp.StatusCode() >= 400 {
		return nil, "", c.rawAPIError(resp)
	}

	return resp.RawBody(), resp.Header().Get("Content-Type"), nil
}

// Stream 发送流式请求
//
// 返回的 channel 缓冲区大小为 10，SSE 解析在 goroutine 中进行，
// 完成或出错后 channel 自动关闭。
func (c *Client) Stream(ctx context.Context, path string, body any, handler EventHandler) (<-chan *llm.Event, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewRequestError("marshal", err)
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetBody(bodyBytes).
		SetDoNotParseResponse(true).
		Post(path)
	if err != nil {
		return nil, llm.NewHTTPError("request failed", err)
	}

	if resp.StatusCode() >= 400 {
		return nil, c.rawAPIError(resp)
	}

	events := make(chan *llm.Event, 10)
	go NewSSEParser(handler).Parse(resp.RawBody(), events)

	return events, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助方法
// ═══════════════════════════════════════════════════════════════════════════

// apiError 构建 API 错误
func (c *Client) apiError(status int, body string, header http.Header) error {
	apiErr := llm.NewAPIError(status, body).WithProvider(llm.ProviderName)
	if requestID := header.Get("X-Request-ID"); requestID != "" {
		apiErr = apiErr.WithRequestID(requestID)
	}
	if code := errorCode(body); code != "" {
		apiErr = apiErr.WithErrorCode(code)
	}
	return apiErr
}

// rawAPIError 读取未解析的响应体并构建 API 错误
func (c *Client) rawAPIError(resp *resty.Response) error {
	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	return c.apiError(resp.StatusCode(), string(data), resp.Header())
}

// errorCode 提取 OpenAI 错误体中的 error.code
//
//	{"error": {"message": "...", "type": "...", "code": "invalid_api_key"}}
func errorCode(body string) string {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return ""
	}
	return GetString(Path(payload, "error", "code"))
}

func decodeBody(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return llm.NewResponseError("body", err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// GetDefaultTimeout 获取默认超时时间的辅助函数
//
// 如果 timeout 为 0，返回默认的 120 秒。
func GetDefaultTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return llm.DefaultTimeout
	}
	return timeout
}
