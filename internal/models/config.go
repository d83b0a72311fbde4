package models

import (
	"fmt"
	"net/url"
)

// EngineConfig 浏览器作业引擎配置
type EngineConfig struct {
	PagePoolSize   int  `json:"page_pool_size" mapstructure:"page_pool_size"`       // 标签页池容量 (默认:4)
	PagesPerProxy  int  `json:"pages_per_proxy" mapstructure:"pages_per_proxy"`      // 单代理标签页配额,超过后回收 (默认:20)
	NavTimeout     int  `json:"nav_timeout_seconds" mapstructure:"nav_timeout_sec"`  // 导航超时(秒) (默认:30)
	ResultsTimeout int  `json:"results_timeout_sec" mapstructure:"results_timeout_sec"`  // 结果等待超时(秒) (默认:20)
	HardTimeout    int  `json:"hard_timeout_seconds" mapstructure:"hard_timeout_sec"` // 单项硬超时上限(秒) (默认:90)
	RetrySubmit    bool `json:"retry_submit" mapstructure:"retry_submit"`         // 允许一次额外提交重试
	Headless       bool `json:"headless" mapstructure:"headless"`             // 无头模式 (默认:true)
	KeepAlive      bool `json:"keep_alive" mapstructure:"keep_alive"`           // 退出时不关闭浏览器(外部托管生命周期)
}

// Validate 验证引擎配置
func (c *EngineConfig) Validate() error {
	if c.PagePoolSize < 1 || c.PagePoolSize > 32 {
		return fmt.Errorf("标签页池容量必须在1-32之间,当前值: %d", c.PagePoolSize)
	}
	if c.PagesPerProxy < 1 {
		return fmt.Errorf("单代理标签页配额必须大于0,当前值: %d", c.PagesPerProxy)
	}
	if c.NavTimeout < 1 || c.NavTimeout > 300 {
		return fmt.Errorf("导航超时必须在1-300秒之间,当前值: %d", c.NavTimeout)
	}
	if c.ResultsTimeout < 1 || c.ResultsTimeout > 300 {
		return fmt.Errorf("结果等待超时必须在1-300秒之间,当前值: %d", c.ResultsTimeout)
	}
	if c.HardTimeout < c.ResultsTimeout {
		return fmt.Errorf("硬超时(%d秒)不能小于结果等待超时(%d秒)", c.HardTimeout, c.ResultsTimeout)
	}
	return nil
}

// RunConfig 调度运行配置
type RunConfig struct {
	Vendor      string `json:"vendor" mapstructure:"vendor"`           // 本轮处理的估值站点键名
	EntryURL    string `json:"entry_url" mapstructure:"entry_url"`        // 站点入口URL(地址输入页)
	CanaryURL   string `json:"canary_url" mapstructure:"canary_url"`       // 代理健康探测URL
	Concurrency int    `json:"concurrency" mapstructure:"concurrency"`      // 并行worker数(块间并发) (默认:2)
	BatchSize   int    `json:"batch_size" mapstructure:"batch_size"`       // 单轮最多拉取的工作项数 (默认:100)
	ChunkSize   int    `json:"chunk_size" mapstructure:"chunk_size"`       // 单worker块大小 (默认:10)
	Cooldown    int    `json:"cooldown_seconds" mapstructure:"cooldown_sec"` // 块内项间冷却(秒) (默认:2)
	SingleItem  string `json:"single_item" mapstructure:"single_item"`      // 调试模式: 只处理这一个地址,绕过批处理
	MaxTries    int    `json:"max_tries" mapstructure:"max_tries"`        // 代理轮换最大候选数 (默认:3)
}

// Validate 验证运行配置
func (c *RunConfig) Validate() error {
	if c.Vendor == "" {
		return fmt.Errorf("必须指定vendor键名")
	}
	if c.EntryURL == "" {
		return fmt.Errorf("必须指定站点入口URL")
	}
	if _, err := url.Parse(c.EntryURL); err != nil {
		return fmt.Errorf("入口URL格式无效: %w", err)
	}
	if c.Concurrency < 1 || c.Concurrency > 16 {
		return fmt.Errorf("并发数必须在1-16之间,当前值: %d", c.Concurrency)
	}
	if c.BatchSize < 1 || c.BatchSize > 10000 {
		return fmt.Errorf("批大小必须在1-10000之间,当前值: %d", c.BatchSize)
	}
	if c.ChunkSize < 1 || c.ChunkSize > 100 {
		return fmt.Errorf("块大小必须在1-100之间,当前值: %d", c.ChunkSize)
	}
	if c.Cooldown < 0 || c.Cooldown > 120 {
		return fmt.Errorf("冷却时间必须在0-120秒之间,当前值: %d", c.Cooldown)
	}
	if c.MaxTries < 1 || c.MaxTries > 20 {
		return fmt.Errorf("代理候选数必须在1-20之间,当前值: %d", c.MaxTries)
	}
	return nil
}

// DedupConfig 去重缓存配置
type DedupConfig struct {
	Enabled          bool   `json:"enabled" mapstructure:"enabled"`           // 是否启用 (默认:true)
	TTLMinutes       int    `json:"ttl_minutes" mapstructure:"ttl_minutes"`       // 条目存活时间(分钟) (默认:360)
	Capacity         int    `json:"capacity" mapstructure:"capacity"`          // 最大条目数,超过后逐出最旧 (默认:10000)
	RememberFailures bool   `json:"remember_failures" mapstructure:"remember_failures"` // 失败项也记入,避免每轮重试
	CheckpointFile   string `json:"checkpoint_file" mapstructure:"checkpoint_file"`   // 快照文件路径(空则不持久化)
}

// Validate 验证去重配置
func (c *DedupConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TTLMinutes < 1 {
		return fmt.Errorf("去重TTL必须大于0分钟,当前值: %d", c.TTLMinutes)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("去重容量必须大于0,当前值: %d", c.Capacity)
	}
	return nil
}
