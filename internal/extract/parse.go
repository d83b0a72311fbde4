package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// strictValuePattern 严格形态: $1,234,567 或 $1234567
	strictValuePattern = regexp.MustCompile(`\$\s*([0-9]{1,3}(?:,[0-9]{3})+|[0-9]+)(?:\.[0-9]+)?`)

	// nonDigit 宽松解析时剔除的字符
	nonDigit = regexp.MustCompile(`[^0-9]`)
)

// ParseValue 两段式金额解析
// 先用严格正则提取美元金额;失败时退化为剔除非数字字符
// 解析结果落在合理区间之外视为解析失败
func ParseValue(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("金额原文为空")
	}

	// 第一段: 严格匹配
	if m := strictValuePattern.FindStringSubmatch(raw); m != nil {
		digits := strings.ReplaceAll(m[1], ",", "")
		v, err := strconv.ParseInt(digits, 10, 64)
		if err == nil && plausible(v) {
			return v, nil
		}
	}

	// 第二段: 宽松剔除
	digits := nonDigit.ReplaceAllString(raw, "")
	if digits == "" {
		return 0, fmt.Errorf("金额原文不含数字: %q", raw)
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("金额解析失败 %q: %w", raw, err)
	}
	if !plausible(v) {
		return 0, fmt.Errorf("金额超出合理区间: %d", v)
	}
	return v, nil
}

// plausible 住宅估值的合理区间
func plausible(v int64) bool {
	return v >= 1000 && v <= 1_000_000_000
}
