package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// SelectorStrategy 基于CSS选择器列表的提取策略
// 选择器按优先级排列,页面改版时在配置中追加新选择器即可
type SelectorStrategy struct {
	name      string
	selectors []string
}

// NewSelectorStrategy 创建选择器策略
func NewSelectorStrategy(name string, selectors []string) *SelectorStrategy {
	return &SelectorStrategy{name: name, selectors: selectors}
}

// Name 策略名称
func (s *SelectorStrategy) Name() string { return s.name }

// Extract 依次尝试各选择器,返回首个非空文本
func (s *SelectorStrategy) Extract(rawHTML string) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", false, err
	}
	for _, sel := range s.selectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text, true, nil
		}
	}
	return "", false, nil
}

// LabelProximityStrategy 标签邻近提取策略
// 选择器全部失效时的兜底: 遍历DOM找到含标签文本的节点,
// 在其后续兄弟和父节点的后续兄弟中找首个含美元符号的文本
type LabelProximityStrategy struct {
	label string
}

// NewLabelProximityStrategy 创建标签邻近策略
func NewLabelProximityStrategy(label string) *LabelProximityStrategy {
	return &LabelProximityStrategy{label: label}
}

// Name 策略名称
func (s *LabelProximityStrategy) Name() string { return "label_proximity" }

// Extract 在标签节点附近搜寻金额文本
func (s *LabelProximityStrategy) Extract(rawHTML string) (string, bool, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", false, err
	}

	labelNode := findTextNode(root, strings.ToLower(s.label))
	if labelNode == nil {
		return "", false, nil
	}

	// 从标签节点向上最多三层,在每层的后续兄弟中找金额
	anchor := labelNode
	for depth := 0; depth < 3 && anchor != nil; depth++ {
		for sib := anchor.NextSibling; sib != nil; sib = sib.NextSibling {
			if text := findDollarText(sib); text != "" {
				return text, true, nil
			}
		}
		anchor = anchor.Parent
	}
	return "", false, nil
}

// findTextNode 深度优先查找包含目标文本的元素节点
func findTextNode(n *html.Node, label string) *html.Node {
	if n.Type == html.TextNode && strings.Contains(strings.ToLower(n.Data), label) {
		return n.Parent
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTextNode(c, label); found != nil {
			return found
		}
	}
	return nil
}

// findDollarText 在子树中找首个含$的文本
func findDollarText(n *html.Node) string {
	if n.Type == html.TextNode && strings.Contains(n.Data, "$") {
		return strings.TrimSpace(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text := findDollarText(c); text != "" {
			return text
		}
	}
	return ""
}
