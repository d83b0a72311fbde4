package engine

import (
	"errors"
	"strings"
)

// 错误分类哨兵
// 调度层据此决定处置: 隧道错误换代理重试,环境错误立即终止
var (
	// ErrTunnel 代理隧道不可用,更换出口后可恢复
	ErrTunnel = errors.New("代理隧道连接失败")

	// ErrEnvironment 宿主环境性故障,更换代理无济于事
	ErrEnvironment = errors.New("宿主环境故障")

	// ErrBotWall 目标站点返回风控拦截页
	ErrBotWall = errors.New("触发站点风控拦截")

	// ErrLaunchTimeout 等待浏览器会话就绪超时
	ErrLaunchTimeout = errors.New("等待浏览器会话就绪超时")

	// ErrAllCandidatesFailed 候选代理全部尝试失败
	ErrAllCandidatesFailed = errors.New("候选代理全部尝试失败")
)

// tunnelPatterns 浏览器导航错误中代理隧道故障的特征片段
var tunnelPatterns = []string{
	"ERR_TUNNEL_CONNECTION_FAILED",
	"ERR_PROXY_CONNECTION_FAILED",
	"ERR_CONNECTION_RESET",
	"ERR_EMPTY_RESPONSE",
	"ERR_SOCKS_CONNECTION_FAILED",
	"net::ERR_TIMED_OUT",
}

// environmentPatterns 宿主环境性故障的特征片段
var environmentPatterns = []string{
	"cannot open display",
	"too many open files",
	"no space left on device",
	"failed to launch the browser",
	"executable file not found",
}

// ClassifyNavError 给浏览器导航/启动错误归类
// 浏览器把底层网络错误塞进字符串,只能按特征片段识别
func ClassifyNavError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	for _, p := range environmentPatterns {
		if strings.Contains(msg, p) {
			return errors.Join(ErrEnvironment, err)
		}
	}
	for _, p := range tunnelPatterns {
		if strings.Contains(msg, p) {
			return errors.Join(ErrTunnel, err)
		}
	}
	return err
}

// IsTunnelError 是否为隧道类错误
func IsTunnelError(err error) bool {
	return errors.Is(err, ErrTunnel)
}

// IsEnvironmentError 是否为环境性故障
func IsEnvironmentError(err error) bool {
	return errors.Is(err, ErrEnvironment)
}
