package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mioym/homeval/internal/utils"
)

// DialCheck 对端点做TCP可达性预检
// 仅验证网关端口能建立连接,不验证上游出口是否可用
func DialCheck(ctx context.Context, ep Endpoint, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", ep.HostPort())
	if err != nil {
		return fmt.Errorf("代理TCP预检失败 [%s]: %w", ep.Label, err)
	}
	_ = conn.Close()
	return nil
}

// HeadCheck 经由端点发送HEAD请求,验证完整的代理隧道链路
// target应指向轻量的探测地址,避免触发目标站点的风控
func HeadCheck(ctx context.Context, ep Endpoint, target string, timeout time.Duration) error {
	transport := &http.Transport{
		Proxy:             http.ProxyURL(ep.URL()),
		DisableKeepAlives: true,
	}
	client := &http.Client{Transport: transport, Timeout: timeout}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return fmt.Errorf("构造预检请求失败: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("代理隧道预检失败 [%s]: %w", ep.Label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("代理隧道预检异常状态 [%s]: %d", ep.Label, resp.StatusCode)
	}
	utils.Debugf("代理预检通过: %s 状态=%d", ep.Label, resp.StatusCode)
	return nil
}
