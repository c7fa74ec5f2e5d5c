package plugin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
)

const embeddingsPath = "/embeddings"

// 哨兵向量首元素：区分向量降级的原因，长度始终等于配置维度
const (
	SentinelNilParams     = 0.1
	SentinelEmptyText     = 0.3
	SentinelHTTPStatus    = 0.4
	SentinelMalformed     = 0.5
	SentinelTransportFail = 0.6
)

// 降级原因（指标标签）
const (
	fallbackNilParams = "nil_params"
	fallbackEmptyText = "empty_text"
	fallbackStatus    = "http_status"
	fallbackMalformed = "malformed_response"
	fallbackTransport = "transport"
)

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage *struct {
		PromptTokens int64 `json:"prompt_tokens"`
		TotalTokens  int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Embed 文本向量（TEXT_EMBEDDING）
//
// 配置错误（维度非法、缺少 API Key）直接返回错误，不发起请求。
// 其余异常返回长度为配置维度的哨兵向量而不是错误：
//   - params 为 nil（宿主的维度探测调用）: [0]=0.1
//   - 文本为空: [0]=0.3
//   - 上游非 2xx: [0]=0.4
//   - 响应格式错误或维度不符: [0]=0.5
//   - 网络错误: [0]=0.6
func (p *Plugin) Embed(ctx context.Context, rt runtime.Runtime, params *llm.EmbeddingParams) (vec []float64, err error) {
	const t = llm.ModelTypeTextEmbedding

	// 记录上游错误而不是返回值，哨兵路径同样计为失败
	var upstreamErr error
	start := time.Now()
	defer func() {
		if err != nil {
			upstreamErr = err
		}
		p.observe(t, start, &upstreamErr)
	}()

	r := p.resolver(rt)
	model := r.Get(llm.SettingEmbeddingModel, llm.DefaultEmbeddingModel)
	dim, err := r.Int(llm.SettingEmbeddingDimensions, llm.DefaultEmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	if !llm.IsValidEmbeddingDimension(dim) {
		return nil, llm.NewSettingError(llm.SettingEmbeddingDimensions,
			fmt.Sprintf("invalid embedding dimension %d, must be one of %v", dim, llm.ValidEmbeddingDimensions), nil)
	}

	client, err := p.embeddingClient(r)
	if err != nil {
		return nil, err
	}

	if params == nil {
		p.logger.Debug("embedding called without params, returning probe vector", "dimensions", dim)
		return p.sentinel(dim, SentinelNilParams, fallbackNilParams), nil
	}
	text := strings.TrimSpace(params.Text)
	if text == "" {
		p.logger.Warn("embedding called with empty text", "dimensions", dim)
		return p.sentinel(dim, SentinelEmptyText, fallbackEmptyText), nil
	}

	body := map[string]any{
		"model": model,
		"input": text,
	}
	// 只有 text-embedding-3 系列接受 dimensions 参数
	if strings.HasPrefix(model, "text-embedding-3") {
		body["dimensions"] = dim
	}

	p.logger.Debug("requesting embedding", "model", model, "dimensions", dim)

	var resp embeddingResponse
	if err := client.PostJSON(ctx, embeddingsPath, body, &resp); err != nil {
		upstreamErr = err
		switch {
		case llm.IsAPIError(err):
			p.logger.Warn("embedding request rejected", "model", model, "status", llm.GetStatusCode(err), "error", err)
			return p.sentinel(dim, SentinelHTTPStatus, fallbackStatus), nil
		case llm.IsResponseError(err):
			p.logger.Warn("embedding response malformed", "model", model, "error", err)
			return p.sentinel(dim, SentinelMalformed, fallbackMalformed), nil
		default:
			p.logger.Warn("embedding request failed", "model", model, "error", err)
			return p.sentinel(dim, SentinelTransportFail, fallbackTransport), nil
		}
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) != dim {
		got := 0
		if len(resp.Data) > 0 {
			got = len(resp.Data[0].Embedding)
		}
		upstreamErr = llm.NewResponseError("data[0].embedding",
			fmt.Errorf("expected %d dimensions, got %d", dim, got))
		p.logger.Warn("embedding response has unexpected shape", "model", model, "expected", dim, "got", got)
		return p.sentinel(dim, SentinelMalformed, fallbackMalformed), nil
	}

	if resp.Usage != nil {
		p.emitUsage(ctx, rt, t, model, text, &llm.TokenUsage{
			InputTokens: resp.Usage.PromptTokens,
			TotalTokens: resp.Usage.TotalTokens,
		})
	}

	return resp.Data[0].Embedding, nil
}

func (p *Plugin) sentinel(dim int, marker float64, reason string) []float64 {
	p.metrics.EmbeddingFallback(reason)
	return SentinelVector(dim, marker)
}

// SentinelVector 返回首元素为 marker、其余为 0 的向量
func SentinelVector(dim int, marker float64) []float64 {
	v := make([]float64, dim)
	if dim > 0 {
		v[0] = marker
	}
	return v
}
