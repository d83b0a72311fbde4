package core

import "strings"

// suffixExpansions 街道后缀缩写到全称的映射
// 同一地址的不同写法归一到同一个去重键
var suffixExpansions = map[string]string{
	"ST":   "STREET",
	"AVE":  "AVENUE",
	"BLVD": "BOULEVARD",
	"DR":   "DRIVE",
	"RD":   "ROAD",
	"LN":   "LANE",
	"CT":   "COURT",
	"PL":   "PLACE",
	"PKWY": "PARKWAY",
	"HWY":  "HIGHWAY",
	"CIR":  "CIRCLE",
	"TER":  "TERRACE",
	"SQ":   "SQUARE",
	"APT":  "APARTMENT",
	"STE":  "SUITE",
}

// NormalizeAddress 归一化地址为去重键
// 规则: 转大写、剔除标点、折叠空白、展开街道后缀缩写
// 幂等: 归一化结果再次归一化不变
func NormalizeAddress(address string) string {
	// 剔除标点,仅保留字母数字和空白
	var b strings.Builder
	for _, r := range strings.ToUpper(address) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		if full, ok := suffixExpansions[w]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}
