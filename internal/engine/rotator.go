package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/mioym/homeval/internal/proxy"
	"github.com/mioym/homeval/internal/utils"
)

// RotatorConfig 代理轮换配置
type RotatorConfig struct {
	MaxCandidates   int           // 单次获取最多尝试的候选代理数
	FirstNavTimeout time.Duration // 金丝雀导航超时
	CanaryURL       string        // 验证代理可用性的导航目标
	Preflight       bool          // 是否在启动浏览器前做TCP预检
	PrecheckURL     string        // 非空时预检阶段额外经代理发HEAD验证隧道
	PreflightWait   time.Duration
	BackoffBase     time.Duration // 候选失败后的退避基数
}

// openFunc 打开代理绑定的浏览器会话
type openFunc func(proxyLabel, connArg string) (*Session, error)

// probeFunc 用金丝雀导航验证会话的代理链路
type probeFunc func(ctx context.Context, s *Session, ep proxy.Endpoint) error

// Rotator 代理健康轮换器
// 负责产出"已验证可用"的浏览器会话: 逐候选代理、逐连接串编码尝试,
// 隧道失败换下一个,环境性故障立即上抛
type Rotator struct {
	supplier proxy.Supplier
	registry *SessionRegistry
	monitor  *Monitor
	cfg      RotatorConfig

	// 可注入的打开/探测实现,测试时替换
	open  openFunc
	probe probeFunc

	rotations atomic.Int64
}

// NewRotator 创建代理轮换器
func NewRotator(supplier proxy.Supplier, registry *SessionRegistry, monitor *Monitor, cfg RotatorConfig) *Rotator {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}
	if cfg.FirstNavTimeout <= 0 {
		cfg.FirstNavTimeout = 25 * time.Second
	}
	if cfg.PreflightWait <= 0 {
		cfg.PreflightWait = 5 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}

	r := &Rotator{
		supplier: supplier,
		registry: registry,
		monitor:  monitor,
		cfg:      cfg,
	}
	r.open = func(proxyLabel, connArg string) (*Session, error) {
		return registry.Obtain(proxyLabel, connArg)
	}
	r.probe = r.canaryProbe
	return r
}

// Rotations 累计轮换次数
func (r *Rotator) Rotations() int64 {
	return r.rotations.Load()
}

// OpenHealthy 获取一个经金丝雀验证的浏览器会话
// key用于粘性供给;返回的端点用于日志和后续页面级代理认证
func (r *Rotator) OpenHealthy(ctx context.Context, key string) (*Session, proxy.Endpoint, error) {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxCandidates; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, proxy.Endpoint{}, err
		}
		if r.monitor != nil {
			if err := r.monitor.CheckEnvironment(); err != nil {
				return nil, proxy.Endpoint{}, err
			}
		}

		ep := r.supplier.Next(key)

		if r.cfg.Preflight {
			if err := proxy.DialCheck(ctx, ep, r.cfg.PreflightWait); err != nil {
				utils.Warnf("候选代理预检失败,换下一个: %v", err)
				lastErr = err
				r.rotate(key)
				continue
			}
			// 拨号通过后再走一次代理HEAD, 提前识别隧道/认证坏点, 省掉一次浏览器启动
			if r.cfg.PrecheckURL != "" {
				if err := proxy.HeadCheck(ctx, ep, r.cfg.PrecheckURL, r.cfg.PreflightWait); err != nil {
					utils.Warnf("候选代理隧道预检失败,换下一个: %v", err)
					lastErr = err
					r.rotate(key)
					continue
				}
			}
		}

		s, err := r.tryCandidate(ctx, ep)
		if err == nil {
			return s, ep, nil
		}
		if IsEnvironmentError(err) {
			return nil, proxy.Endpoint{}, err
		}

		lastErr = err
		utils.Warnf("候选代理不可用 [%s] (第%d/%d个): %v",
			ep.Label, attempt+1, r.cfg.MaxCandidates, err)
		r.rotate(key)
		r.backoff(ctx, attempt)
	}

	return nil, proxy.Endpoint{}, fmt.Errorf("%w: %v", ErrAllCandidatesFailed, lastErr)
}

// tryCandidate 对单个端点逐连接串编码尝试
// 不同网关接受的--proxy-server语法不同,按ConnArgs的优先级逐一试探
func (r *Rotator) tryCandidate(ctx context.Context, ep proxy.Endpoint) (*Session, error) {
	var lastErr error

	for _, connArg := range ep.ConnArgs() {
		s, err := r.open(ep.Label, connArg)
		if err != nil {
			err = ClassifyNavError(err)
			if IsEnvironmentError(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if err := r.probe(ctx, s, ep); err != nil {
			err = ClassifyNavError(err)
			if IsEnvironmentError(err) {
				return nil, err
			}
			// 该编码建立的会话不可用,作废后尝试下一种编码
			r.registry.Invalidate(ep.Label)
			lastErr = err
			utils.Debugf("连接串编码不可用 [%s] %s: %v", ep.Label, utils.RedactProxyURL(connArg), err)
			continue
		}

		utils.Infof("✅ 代理验证通过: %s (编码=%s)", ep.Label, utils.RedactProxyURL(connArg))
		return s, nil
	}

	if lastErr == nil {
		lastErr = ErrTunnel
	}
	return nil, lastErr
}

// canaryProbe 默认探测实现: 带超时的金丝雀导航
func (r *Rotator) canaryProbe(ctx context.Context, s *Session, ep proxy.Endpoint) error {
	// 代理凭证未编码进连接串时走带外认证
	if ep.HasCredentials() {
		go s.Browser.HandleAuth(ep.Username, ep.Password)()
	}

	page, err := s.Browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("创建探测标签页失败: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx).Timeout(r.cfg.FirstNavTimeout)
	if err := page.Navigate(r.cfg.CanaryURL); err != nil {
		return fmt.Errorf("金丝雀导航失败: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("金丝雀页面加载失败: %w", err)
	}
	return nil
}

// rotate 记一次轮换;粘性供给器需要重新分配绑定
func (r *Rotator) rotate(key string) {
	r.rotations.Add(1)
	if sticky, ok := r.supplier.(*proxy.Sticky); ok {
		sticky.Reassign(key)
	}
}

// backoff 候选失败后的随机化退避,避免对网关形成同步重试风暴
func (r *Rotator) backoff(ctx context.Context, attempt int) {
	base := r.cfg.BackoffBase * time.Duration(attempt+1)
	jitter := time.Duration(rand.Int63n(int64(base / 2)))
	select {
	case <-ctx.Done():
	case <-time.After(base + jitter):
	}
}
