package utils

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// SensitiveKeywords 敏感头部名称关键字, 命中即脱敏
var SensitiveKeywords = []string{
	"authorization",
	"token",
	"key",
	"secret",
	"password",
	"credential",
	"api-key",
}

// HeaderRedactor 识别并脱敏敏感HTTP头部, 供日志输出使用
type HeaderRedactor struct {
	keywords []string
}

// NewHeaderRedactor 创建头部脱敏器
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{keywords: SensitiveKeywords}
}

// IsSensitiveHeader 按名称关键字判断头部是否敏感
func (hr *HeaderRedactor) IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range hr.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个头部值
// Bearer令牌只留前缀; 长密钥留前4后4; 短密钥全隐藏
func (hr *HeaderRedactor) RedactHeaderValue(name, value string) string {
	if !hr.IsSensitiveHeader(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// Redact 脱敏整个http.Header, 返回可安全落日志的map
// 多值头部只取第一个值
func (hr *HeaderRedactor) Redact(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		out[name] = hr.RedactHeaderValue(name, values[0])
	}
	return out
}

// RedactToString 脱敏并格式化为 "Name: value, ..." 形式, 按名称排序保证输出稳定
func (hr *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := hr.Redact(headers)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+redacted[name])
	}
	return strings.Join(parts, ", ")
}

// inlineCredPattern 匹配 user:pass@host 形态的内联凭证
var inlineCredPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)?[^\s:@/]+:[^\s@/]+@`)

// RedactProxyURL 脱敏代理连接串中的凭证 (用于日志)
// 接受URL形态和裸 user:pass@host:port 形态
func RedactProxyURL(raw string) string {
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.User != nil {
			// 手工拼接: 经url.User注入的掩码会被String()转义成%2A%2A%2A
			bare := *u
			bare.User = nil
			s := bare.String()
			if i := strings.Index(s, "://"); i != -1 {
				return s[:i+3] + "***@" + s[i+3:]
			}
			return s
		}
	}
	return inlineCredPattern.ReplaceAllStringFunc(raw, func(m string) string {
		scheme := ""
		if i := strings.Index(m, "://"); i != -1 {
			scheme = m[:i+3]
		}
		return scheme + "***@"
	})
}
