package main

import (
	"fmt"
	"sort"

	"github.com/mioym/homeval/internal/core"
)

// SiteProfile 单个估值站点的页面交互配置
// 选择器按优先级排列,站点改版时只动这里
type SiteProfile struct {
	EntryURL  string
	CanaryURL string

	InputSelectors     []string
	SuggestionSelector string
	BannerSelectors    []string

	ValueSelectors []string // 结果页估值元素选择器
	ValueLabel     string   // 选择器全部失效时按标签文本邻近兜底
}

// siteProfiles 内置站点配置
var siteProfiles = map[string]SiteProfile{
	"estately": {
		EntryURL:  "https://www.estately.com",
		CanaryURL: "https://www.estately.com",
		InputSelectors: []string{
			`input[data-testid="search-input"]`,
			`input[name="search_terms"]`,
			`input[type="search"]`,
			`#search-box-input`,
		},
		SuggestionSelector: `[data-testid="search-suggestion"], .search-autocomplete li`,
		BannerSelectors: []string{
			`button[aria-label="Close"]`,
			`[data-testid="modal-close"]`,
			`.modal-close`,
			`#onetrust-accept-btn-handler`,
		},
		ValueSelectors: []string{
			`[data-testid="home-value"]`,
			`.home-value-estimate .value`,
			`.estimate-amount`,
		},
		ValueLabel: "Estately Estimate",
	},
}

// siteProfile 按厂商键名取站点配置
func siteProfile(vendor string) (SiteProfile, error) {
	profile, ok := siteProfiles[vendor]
	if !ok {
		names := make([]string, 0, len(siteProfiles))
		for name := range siteProfiles {
			names = append(names, name)
		}
		sort.Strings(names)
		return SiteProfile{}, fmt.Errorf("未知的估值站点: %s (内置站点: %v)", vendor, names)
	}
	return profile, nil
}

// applyProfileDefaults 配置文件未覆盖的URL回退到站点内置值
func applyProfileDefaults(cfg *core.Config, profile SiteProfile) {
	if cfg.Run.EntryURL == "" {
		cfg.Run.EntryURL = profile.EntryURL
	}
	if cfg.Run.CanaryURL == "" {
		cfg.Run.CanaryURL = profile.CanaryURL
	}
}
