// Package metrics 插件调用的 Prometheus 指标
//
// Collector 持有独立的 Registry，同一进程可创建多个实例互不冲突。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
)

const namespace = "openai_plugin"

// StatusSuccess 成功调用的 status 标签；失败调用使用 [llm.KindOf] 的错误分类
const StatusSuccess = "success"

// Token 种类标签
const (
	TokenKindInput  = "input"
	TokenKindOutput = "output"
)

// LatencyBuckets 请求耗时直方图分桶（秒）
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120,
}

// Collector 插件指标集合
type Collector struct {
	registry *prometheus.Registry

	requests           *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	tokens             *prometheus.CounterVec
	embeddingFallbacks *prometheus.CounterVec
}

// NewCollector 创建指标集合并注册到新的 Registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of model invocations",
			},
			[]string{"model_type", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Model invocation latency in seconds",
				Buckets:   LatencyBuckets,
			},
			[]string{"model_type"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens reported by the upstream API",
			},
			[]string{"model_type", "kind"},
		),
		embeddingFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_fallbacks_total",
				Help:      "Embedding calls answered with a sentinel vector",
			},
			[]string{"reason"},
		),
	}

	c.registry.MustRegister(c.requests, c.duration, c.tokens, c.embeddingFallbacks)
	return c
}

// Registry 返回指标所在的 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRequest 记录一次调用的结果与耗时
//
// nil Collector 上调用为空操作。
func (c *Collector) ObserveRequest(modelType string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = string(llm.KindOf(err))
	}
	c.requests.WithLabelValues(modelType, status).Inc()
	c.duration.WithLabelValues(modelType).Observe(elapsed.Seconds())
}

// AddTokens 累加上游报告的 token 数
func (c *Collector) AddTokens(modelType string, input, output int64) {
	if c == nil {
		return
	}
	if input > 0 {
		c.tokens.WithLabelValues(modelType, TokenKindInput).Add(float64(input))
	}
	if output > 0 {
		c.tokens.WithLabelValues(modelType, TokenKindOutput).Add(float64(output))
	}
}

// EmbeddingFallback 记录一次哨兵向量回退
func (c *Collector) EmbeddingFallback(reason string) {
	if c == nil {
		return
	}
	c.embeddingFallbacks.WithLabelValues(reason).Inc()
}
