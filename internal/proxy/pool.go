package proxy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mioym/homeval/internal/utils"
)

// ErrNoProxies 所有来源解析后池仍为空
// 属于配置错误,调用方应直接终止本次运行而非重试
var ErrNoProxies = errors.New("代理池为空: 所有配置来源均未产出可用端点")

// Sources 代理池的分层配置来源
// 优先级从高到低: 厂商专属列表 > 全局列表 > 单条URL > 网关三元组
type Sources struct {
	VendorLists map[string][]string // 厂商名 -> 端点列表
	GlobalList  []string
	SingleURL   string
	// 网关三元组: 主机+端口段,用于家宅代理出口网关
	GatewayHost  string
	GatewayPorts []int
	GatewayUser  string
	GatewayPass  string

	AllowedPorts []int // 非空时启用端口白名单
}

// Pool 解析完成的端点集合
type Pool struct {
	Endpoints []Endpoint
	Source    string // 实际生效的来源名称
}

// Size 池内端点数量
func (p *Pool) Size() int {
	return len(p.Endpoints)
}

// BuildPool 按分层来源构建代理池
// 首个产出非空端点集的来源胜出,后续来源被忽略
// 所有来源均为空时返回ErrNoProxies
func BuildPool(vendor string, src Sources) (*Pool, error) {
	type layer struct {
		name  string
		build func() ([]Endpoint, error)
	}

	layers := []layer{
		{"vendor_list", func() ([]Endpoint, error) { return parseList(src.VendorLists[vendor], vendor) }},
		{"global_list", func() ([]Endpoint, error) { return parseList(src.GlobalList, "global") }},
		{"single_url", func() ([]Endpoint, error) {
			if strings.TrimSpace(src.SingleURL) == "" {
				return nil, nil
			}
			ep, err := parseEndpoint(src.SingleURL, "single")
			if err != nil {
				return nil, err
			}
			return []Endpoint{ep}, nil
		}},
		{"gateway", func() ([]Endpoint, error) { return expandGateway(src) }},
	}

	for _, l := range layers {
		eps, err := l.build()
		if err != nil {
			return nil, fmt.Errorf("代理来源 %s 解析失败: %w", l.name, err)
		}
		eps = filterPorts(eps, src.AllowedPorts)
		if len(eps) > 0 {
			utils.Infof("🌐 代理池就绪: 来源=%s 端点数=%d", l.name, len(eps))
			return &Pool{Endpoints: eps, Source: l.name}, nil
		}
	}

	return nil, ErrNoProxies
}

func parseList(raw []string, labelPrefix string) ([]Endpoint, error) {
	var eps []Endpoint
	for i, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ep, err := parseEndpoint(line, fmt.Sprintf("%s-%d", labelPrefix, i))
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// expandGateway 将网关三元组展开为逐端口端点
func expandGateway(src Sources) ([]Endpoint, error) {
	if src.GatewayHost == "" || len(src.GatewayPorts) == 0 {
		return nil, nil
	}
	var eps []Endpoint
	for _, port := range src.GatewayPorts {
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("网关端口越界: %d", port)
		}
		eps = append(eps, Endpoint{
			Host:     src.GatewayHost,
			Port:     port,
			Username: src.GatewayUser,
			Password: src.GatewayPass,
			Label:    fmt.Sprintf("gw-%d", port),
		})
	}
	return eps, nil
}

func filterPorts(eps []Endpoint, allowed []int) []Endpoint {
	if len(allowed) == 0 {
		return eps
	}
	allow := make(map[int]bool, len(allowed))
	for _, p := range allowed {
		allow[p] = true
	}
	var out []Endpoint
	for _, ep := range eps {
		if allow[ep.Port] {
			out = append(out, ep)
		} else {
			utils.Debugf("端口不在白名单内,剔除端点: %s", ep.Label)
		}
	}
	return out
}
