package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/google/uuid"

	"github.com/mioym/homeval/internal/utils"
)

// SessionDescriptor 会话描述文件内容
// 落盘在代理标签专属目录下,其他进程/协程据此附着到同一浏览器
type SessionDescriptor struct {
	SessionID  string    `json:"session_id"`
	ControlURL string    `json:"control_url"`
	ProxyLabel string    `json:"proxy_label"`
	PID        int       `json:"pid"`
	LaunchedAt time.Time `json:"launched_at"`
}

// SessionConfig 浏览器会话配置
type SessionConfig struct {
	BaseDir    string        // 描述文件与浏览器配置目录的根
	Headless   bool
	KeepAlive  bool          // 运行结束后保留浏览器进程
	LaunchWait time.Duration // 等待他人完成启动的上限
	PollEvery  time.Duration
}

// Session 单个代理出口绑定的浏览器会话
type Session struct {
	ID         string
	Browser    *rod.Browser
	ProxyLabel string
	launched   bool // 本进程启动(而非附着)

	closeBrowser func() error // 关闭底层浏览器进程

	invalidated bool
	mu          sync.Mutex
}

// Invalidated 会话是否已被判定失效
func (s *Session) Invalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

func (s *Session) invalidate() {
	s.mu.Lock()
	s.invalidated = true
	s.mu.Unlock()
}

// SessionRegistry 浏览器会话注册表
// 同一代理标签只维护一个浏览器实例: 先到者启动并写描述文件,
// 后到者附着;启动互斥通过O_CREATE|O_EXCL锁文件实现
type SessionRegistry struct {
	cfg SessionConfig

	mu       sync.Mutex
	sessions map[string]*Session // proxyLabel -> session
}

// NewSessionRegistry 创建会话注册表
func NewSessionRegistry(cfg SessionConfig) *SessionRegistry {
	if cfg.LaunchWait <= 0 {
		cfg.LaunchWait = 30 * time.Second
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 500 * time.Millisecond
	}
	return &SessionRegistry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// labelDir 代理标签专属目录
func (r *SessionRegistry) labelDir(proxyLabel string) string {
	return filepath.Join(r.cfg.BaseDir, "sessions", proxyLabel)
}

// Obtain 获取代理标签对应的会话
// 流程: 内存缓存 > 描述文件附着 > 抢锁启动 > 等待他人启动完成
func (r *SessionRegistry) Obtain(proxyLabel string, proxyArg string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[proxyLabel]; ok && !s.Invalidated() {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	dir := r.labelDir(proxyLabel)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建会话目录失败: %w", err)
	}

	// 1. 尝试附着现有会话
	if s, err := r.attach(proxyLabel, dir); err == nil {
		r.remember(proxyLabel, s)
		return s, nil
	}

	// 2. 抢启动锁
	lockPath := filepath.Join(dir, "launch.lock")
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err == nil {
		// 本协程是启动者
		_, _ = fmt.Fprintf(lockFile, "%d\n", os.Getpid())
		_ = lockFile.Close()
		defer os.Remove(lockPath)

		s, err := r.launch(proxyLabel, proxyArg, dir)
		if err != nil {
			return nil, err
		}
		r.remember(proxyLabel, s)
		return s, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("创建启动锁失败: %w", err)
	}

	// 3. 他人正在启动,轮询描述文件直至超时
	deadline := time.Now().Add(r.cfg.LaunchWait)
	for time.Now().Before(deadline) {
		if s, err := r.attach(proxyLabel, dir); err == nil {
			r.remember(proxyLabel, s)
			return s, nil
		}
		time.Sleep(r.cfg.PollEvery)
	}
	return nil, fmt.Errorf("%w: 代理标签=%s", ErrLaunchTimeout, proxyLabel)
}

// attach 按描述文件附着到既有浏览器
func (r *SessionRegistry) attach(proxyLabel, dir string) (*Session, error) {
	descPath := filepath.Join(dir, "session.json")
	data, err := os.ReadFile(descPath)
	if err != nil {
		return nil, err
	}

	var desc SessionDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		// 描述文件损坏,移除后走启动路径
		_ = os.Remove(descPath)
		return nil, fmt.Errorf("会话描述文件损坏: %w", err)
	}

	browser := rod.New().ControlURL(desc.ControlURL)
	if err := browser.Connect(); err != nil {
		// 浏览器已死,清理陈旧描述文件
		_ = os.Remove(descPath)
		return nil, fmt.Errorf("附着浏览器失败: %w", err)
	}

	s := &Session{ID: desc.SessionID, Browser: browser, ProxyLabel: proxyLabel, closeBrowser: browser.Close}
	r.watchDisconnect(s)
	utils.Infof("🔗 附着到既有浏览器会话: %s (代理=%s)", desc.SessionID, proxyLabel)
	return s, nil
}

// launch 启动新浏览器并原子写入描述文件
func (r *SessionRegistry) launch(proxyLabel, proxyArg, dir string) (*Session, error) {
	l := launcher.New().
		Headless(r.cfg.Headless).
		UserDataDir(filepath.Join(dir, "profile")).
		Set("ignore-certificate-errors")

	if proxyArg != "" {
		l = l.Proxy(proxyArg)
	}
	if r.cfg.KeepAlive {
		l = l.Leakless(false)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, ClassifyNavError(fmt.Errorf("启动浏览器失败: %w", err))
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	desc := SessionDescriptor{
		SessionID:  uuid.New().String(),
		ControlURL: controlURL,
		ProxyLabel: proxyLabel,
		PID:        os.Getpid(),
		LaunchedAt: time.Now(),
	}

	// 先写临时文件再rename,附着方不会读到半截内容
	data, _ := json.MarshalIndent(desc, "", "  ")
	tmpPath := filepath.Join(dir, "session.json.tmp")
	descPath := filepath.Join(dir, "session.json")
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		browser.MustClose()
		return nil, fmt.Errorf("写会话描述文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, descPath); err != nil {
		browser.MustClose()
		return nil, fmt.Errorf("落盘会话描述文件失败: %w", err)
	}

	s := &Session{ID: desc.SessionID, Browser: browser, ProxyLabel: proxyLabel, launched: true, closeBrowser: browser.Close}
	r.watchDisconnect(s)
	utils.Infof("🚀 浏览器会话已启动: %s (代理=%s)", desc.SessionID, proxyLabel)
	return s, nil
}

// watchDisconnect 浏览器断连看门狗
// CDP事件流关闭即为连接断开: 标记会话失效并清理注册表,
// 下一次Obtain重新启动
func (r *SessionRegistry) watchDisconnect(s *Session) {
	go func() {
		for range s.Browser.Event() {
			// 只关心事件流何时关闭
		}
		if s.Invalidated() {
			// 主动作废或关停,清理已经做过
			return
		}
		s.invalidate()
		r.dropSession(s)
		utils.Warnf("浏览器会话已断开: %s (代理=%s)", s.ID, s.ProxyLabel)
	}()
}

// dropSession 从注册表移除指定会话实例
// 同标签的新会话可能已经就位,仅当映射仍指向本实例时才动表和描述文件
func (r *SessionRegistry) dropSession(s *Session) {
	r.mu.Lock()
	cur, ok := r.sessions[s.ProxyLabel]
	if ok && cur == s {
		delete(r.sessions, s.ProxyLabel)
		r.mu.Unlock()
		_ = os.Remove(filepath.Join(r.labelDir(s.ProxyLabel), "session.json"))
		return
	}
	r.mu.Unlock()
}

// Invalidate 作废代理标签的会话缓存和描述文件
// 本进程启动的浏览器一并关闭,防止探测失败的候选泄漏浏览器进程
func (r *SessionRegistry) Invalidate(proxyLabel string) {
	r.mu.Lock()
	s, ok := r.sessions[proxyLabel]
	if ok {
		s.invalidate()
		delete(r.sessions, proxyLabel)
	}
	r.mu.Unlock()
	_ = os.Remove(filepath.Join(r.labelDir(proxyLabel), "session.json"))

	if ok && s.launched && !r.cfg.KeepAlive && s.closeBrowser != nil {
		if err := s.closeBrowser(); err != nil {
			utils.Warnf("关闭失效浏览器失败: %v", err)
		}
	}
}

func (r *SessionRegistry) remember(proxyLabel string, s *Session) {
	r.mu.Lock()
	r.sessions[proxyLabel] = s
	r.mu.Unlock()
}

// Shutdown 关闭所有本进程启动的会话
// KeepAlive开启时保留浏览器进程和描述文件,仅断开连接
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if r.cfg.KeepAlive {
			utils.Infof("保留浏览器会话: %s (代理=%s)", s.ID, s.ProxyLabel)
			continue
		}
		s.invalidate()
		if s.launched {
			if s.closeBrowser != nil {
				if err := s.closeBrowser(); err != nil {
					utils.Warnf("关闭浏览器失败: %v", err)
				}
			}
			_ = os.Remove(filepath.Join(r.labelDir(s.ProxyLabel), "session.json"))
		}
	}
}
