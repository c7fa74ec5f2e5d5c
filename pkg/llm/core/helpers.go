package core

import (
	"strconv"

	"github.com/goccy/go-json"
)

// ═══════════════════════════════════════════════════════════════════════════
// 响应字段读取
// ═══════════════════════════════════════════════════════════════════════════
//
// 上游响应统一解码为 map[string]any，以下函数在字段缺失或类型不符时返回零值，
// 调用方不必逐层断言。

// GetInt64 读取 token 计数等整数字段
//
// 接受 float64（JSON 默认数字类型）、int、int64 与 json.Number；
// 部分兼容服务把计数写成字符串，同样尝试解析。
func GetInt64(val any) int64 {
	switch v := val.(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// GetString 读取字符串字段，非字符串返回 ""
func GetString(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// GetMap 读取对象字段，非对象返回 nil
//
// 对 nil map 取值是安全的，因此可以链式读取：
//
//	code := GetString(GetMap(payload["error"])["code"])
func GetMap(val any) map[string]any {
	m, _ := val.(map[string]any)
	return m
}

// FirstMap 读取数组的第一个对象元素
//
// 用于 choices[0]、data[0] 这类只关心首项的字段；空数组或首项不是对象时返回 nil。
func FirstMap(val any) map[string]any {
	items, _ := val.([]any)
	if len(items) == 0 {
		return nil
	}
	return GetMap(items[0])
}

// Path 沿键路径逐层读取嵌套对象
//
//	Path(resp, "usage", "prompt_tokens")
func Path(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj := GetMap(cur)
		if obj == nil {
			return nil
		}
		cur = obj[k]
	}
	return cur
}
