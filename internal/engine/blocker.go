package engine

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/mioym/homeval/internal/utils"
)

// BlockPredicate 判断一个子资源请求是否应被拦截
type BlockPredicate func(url string, resourceType proto.NetworkResourceType) bool

// DefaultBlockPredicate 默认拦截策略
// 拦截图片、媒体、字体和常见统计脚本,减少经代理的流量
func DefaultBlockPredicate(url string, resourceType proto.NetworkResourceType) bool {
	switch resourceType {
	case proto.NetworkResourceTypeImage,
		proto.NetworkResourceTypeMedia,
		proto.NetworkResourceTypeFont:
		return true
	}

	lower := strings.ToLower(url)
	for _, pattern := range blockedURLPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// blockedURLPatterns 统计与广告域名特征
var blockedURLPatterns = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
	"facebook.net",
	"hotjar.com",
	"segment.io",
	"/pixel?",
}

// EnableResourceBlocking 在页面上启用子资源拦截
// 注意: 必须在首次导航成功之后再启用,否则部分站点的
// 风控脚本会把资源缺失当作无头浏览器特征
func EnableResourceBlocking(page *rod.Page, headers map[string]string, predicate BlockPredicate) error {
	if predicate == nil {
		predicate = DefaultBlockPredicate
	}

	router := page.HijackRequests()
	err := router.Add("*", "", func(ctx *rod.Hijack) {
		if predicate(ctx.Request.URL().String(), ctx.Request.Type()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		// 应用自定义HTTP头部
		for name, value := range headers {
			ctx.Request.Req().Header.Set(name, value)
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return err
	}

	go router.Run()
	utils.Debugf("页面资源拦截已启用")
	return nil
}
