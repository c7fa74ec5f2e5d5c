package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// LoadFile 从文件加载扁平的设置
//
// 文件格式由扩展名决定：.yaml、.yml 或 .json。
//
//	OPENAI_API_KEY: sk-xxx
//	OPENAI_SMALL_MODEL: gpt-4o-mini
//	OPENAI_EMBEDDING_DIMENSIONS: 1536
func LoadFile(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	return LoadBytes(data, ext)
}

// LoadBytes 从字节数据加载设置
//
// 值可以是任意标量，统一转换为字符串；嵌套结构视为错误。
func LoadBytes(data []byte, format string) (Map, error) {
	raw := map[string]any{}

	// 规范化格式字符串（支持 ".yaml" 或 "yaml"）
	format = strings.TrimPrefix(strings.ToLower(format), ".")

	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s (expected yaml, yml, or json)", format)
	}

	m := make(Map, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case map[string]any, []any:
			return nil, fmt.Errorf("setting %s: nested values are not supported", k)
		case string:
			m[k] = val
		default:
			m[k] = fmt.Sprint(val)
		}
	}
	return m, nil
}
