// Package settings 实现插件的设置解析
//
// 每个键按 运行时设置 → 环境变量 → 默认值 的顺序解析，
// 任一层返回空字符串都视为未设置，继续查找下一层。
//
// 基本用法：
//
//	r := settings.New(runtime)
//	apiKey := r.Get(llm.SettingAPIKey, "")
//	model := r.First(llm.DefaultSmallModel, llm.SettingSmallModel, llm.SettingSmallModelFallback)
package settings

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
)

// Source 运行时设置来源
//
// 宿主运行时实现此接口；未设置的键返回空字符串。
type Source interface {
	GetSetting(key string) string
}

// LookupEnv 环境变量查找函数，签名同 [os.LookupEnv]
type LookupEnv func(key string) (string, bool)

// Option Resolver 选项
type Option func(*Resolver)

// WithLookupEnv 替换环境变量查找（测试用）
func WithLookupEnv(fn LookupEnv) Option {
	return func(r *Resolver) {
		r.lookupEnv = fn
	}
}

// Resolver 设置解析器
//
// 构造后不可变，可并发使用。
type Resolver struct {
	source    Source
	lookupEnv LookupEnv
}

// New 创建解析器，source 可以为 nil
func New(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:    source,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup 按优先级查找键，找不到时 ok 为 false
func (r *Resolver) Lookup(key string) (value string, ok bool) {
	if r.source != nil {
		if v := strings.TrimSpace(r.source.GetSetting(key)); v != "" {
			return v, true
		}
	}
	if r.lookupEnv != nil {
		if v, found := r.lookupEnv(key); found {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// Get 解析单个键，未设置时返回 def
func (r *Resolver) Get(key, def string) string {
	if v, ok := r.Lookup(key); ok {
		return v
	}
	return def
}

// First 依次尝试多个键（每个键都经过完整的优先级链），都未设置时返回 def
func (r *Resolver) First(def string, keys ...string) string {
	for _, key := range keys {
		if v, ok := r.Lookup(key); ok {
			return v
		}
	}
	return def
}

// Int 解析整数设置
func (r *Resolver) Int(key string, def int) (int, error) {
	v, ok := r.Lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, llm.NewSettingError(key, fmt.Sprintf("invalid integer %q", v), err)
	}
	return n, nil
}

// Bool 解析布尔设置
func (r *Resolver) Bool(key string, def bool) (bool, error) {
	v, ok := r.Lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, llm.NewSettingError(key, fmt.Sprintf("invalid boolean %q", v), err)
	}
	return b, nil
}

// Duration 解析时长设置
//
// 支持 Go 时长格式（"30s"、"2m"），纯数字按秒处理。
func (r *Resolver) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := r.Lookup(key)
	if !ok {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, llm.NewSettingError(key, fmt.Sprintf("invalid duration %q", v), err)
	}
	return d, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Map 设置来源
// ═══════════════════════════════════════════════════════════════════════════

// Map 基于 map 的设置来源
type Map map[string]string

// GetSetting 实现 Source 接口
func (m Map) GetSetting(key string) string {
	return m[key]
}
