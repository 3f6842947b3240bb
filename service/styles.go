package service

import (
	"fmt"

	"DiaryToWebtoon-server/config"
)

// StyleModel 画风 -> 生成模型的映射项
type StyleModel struct {
	Model   string
	Version string
}

// StyleRegistry 不可变的画风注册表，构造后只读
type StyleRegistry struct {
	styles map[string]StyleModel
}

func NewStyleRegistry(cfg map[string]config.StyleModel) *StyleRegistry {
	styles := make(map[string]StyleModel, len(cfg))
	for tag, m := range cfg {
		styles[tag] = StyleModel{Model: m.Model, Version: m.Version}
	}
	return &StyleRegistry{styles: styles}
}

// Resolve 按画风标签取模型，未注册的画风返回错误
func (r *StyleRegistry) Resolve(styleTag string) (StyleModel, error) {
	m, ok := r.styles[styleTag]
	if !ok {
		return StyleModel{}, fmt.Errorf("unknown character style: %s", styleTag)
	}
	return m, nil
}
