// Package extract 负责从结果页提取估值字段
// 页面结构经常改版,因此提取走策略链: 依次尝试,首个命中者胜出
package extract

import (
	"errors"
	"fmt"

	"github.com/mioym/homeval/internal/utils"
)

// ErrNotFound 所有策略均未在页面中找到目标字段
var ErrNotFound = errors.New("页面中未找到估值字段")

// Fields 提取结果
type Fields struct {
	RawValue string // 页面原文(如 "$1,234,567")
	Value    int64  // 解析后的整数值
	Strategy string // 命中的策略名称
}

// Strategy 单个提取策略
// found为false表示本策略未命中,应继续尝试下一个;err表示页面本身异常
type Strategy interface {
	Name() string
	Extract(html string) (value string, found bool, err error)
}

// Chain 策略链
type Chain struct {
	strategies []Strategy
}

// NewChain 按优先级组装策略链
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Run 依次运行策略直到命中,并对命中值做两段式解析
func (c *Chain) Run(html string) (Fields, error) {
	for _, s := range c.strategies {
		raw, found, err := s.Extract(html)
		if err != nil {
			return Fields{}, fmt.Errorf("提取策略 %s 执行失败: %w", s.Name(), err)
		}
		if !found {
			continue
		}
		value, err := ParseValue(raw)
		if err != nil {
			utils.Warnf("策略 %s 命中但值无法解析: %q", s.Name(), raw)
			continue
		}
		return Fields{RawValue: raw, Value: value, Strategy: s.Name()}, nil
	}
	return Fields{}, ErrNotFound
}
