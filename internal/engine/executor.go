package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/mioym/homeval/internal/extract"
	"github.com/mioym/homeval/internal/models"
	"github.com/mioym/homeval/internal/utils"
)

// ExecutorConfig 单任务执行配置
type ExecutorConfig struct {
	EntryURL           string
	InputSelectors     []string // 搜索框选择器,按优先级排列
	SuggestionSelector string   // 地址联想下拉项选择器
	BannerSelectors    []string // 弹窗/横幅关闭按钮选择器

	NavTimeout     time.Duration // 入口页导航超时
	ResultsTimeout time.Duration // 等待结果超时
	RetryTimeout   time.Duration // 重试提交后的等待超时(更短)
	HardTimeout    time.Duration // 单任务硬上限

	RetrySubmit      bool   // 结果超时后是否原地重试提交一次
	DebugDir         string // 非空时失败任务落盘页面HTML
	DebugScreenshots bool   // 配合DebugDir使用, 额外落盘页面截图

	Headers        map[string]string // 经请求拦截注入的自定义HTTP头部
	BlockResources bool              // 拦截图片/媒体/统计脚本,减少经代理的流量
}

// pageState 结果页状态分类
type pageState int

const (
	statePending pageState = iota // 尚无法判定
	stateBotWall                  // 风控拦截页
	stateNoData                   // 明确的查无数据
	stateResults                  // 出现估值结果
)

// botWallTokens 风控拦截页的特征文本
var botWallTokens = []string{
	"access denied",
	"unusual traffic",
	"are you a human",
	"verify you are human",
	"captcha",
	"request blocked",
	"pardon our interruption",
}

// noDataTokens 明确查无数据的特征文本
var noDataTokens = []string{
	"no results found",
	"we couldn't find",
	"we could not find",
	"0 results",
	"try another search",
}

// Executor 单任务执行器
// 在一个标签页上完成 输入地址 -> 提交 -> 等待结果 -> 提取估值 的状态机
type Executor struct {
	chain *extract.Chain
	cfg   ExecutorConfig
}

// NewExecutor 创建任务执行器
func NewExecutor(chain *extract.Chain, cfg ExecutorConfig) *Executor {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.ResultsTimeout <= 0 {
		cfg.ResultsTimeout = 20 * time.Second
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = cfg.ResultsTimeout / 2
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = 90 * time.Second
	}
	return &Executor{chain: chain, cfg: cfg}
}

// Execute 执行单个任务,永不panic,总是返回可归档的结果
// 硬上限到期时放弃执行中的步骤,任务以timeout状态收尾
func (e *Executor) Execute(ctx context.Context, h *Handle, item models.WorkItem) models.JobOutcome {
	start := time.Now()

	// 时间标记由任务体goroutine独占并随结果返回
	// 超限后被放弃的任务体可能仍在运行,共享可变标记会产生数据竞争
	outcome := runWithCeiling(ctx, e.cfg.HardTimeout, func(jobCtx context.Context) models.JobOutcome {
		return e.run(jobCtx, h, item, start)
	})

	if outcome.Marks.Start.IsZero() {
		outcome.Marks.Start = start
	}
	if outcome.Marks.DoneAt.IsZero() {
		outcome.Marks.DoneAt = time.Now()
	}
	return outcome
}

// runWithCeiling 在硬上限内运行任务体
// 任务体在独立goroutine中执行;超限后其结果被丢弃
func runWithCeiling(ctx context.Context, ceiling time.Duration, fn func(context.Context) models.JobOutcome) models.JobOutcome {
	jobCtx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	done := make(chan models.JobOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- models.JobOutcome{
					Status:     models.StatusError,
					ReasonText: fmt.Sprintf("任务执行panic: %v", r),
				}
			}
		}()
		done <- fn(jobCtx)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-jobCtx.Done():
		if ctx.Err() != nil {
			return models.JobOutcome{Status: models.StatusError, ReasonText: "运行被取消"}
		}
		return models.JobOutcome{Status: models.StatusTimeout, ReasonText: "超出单任务硬上限"}
	}
}

// run 任务体: 状态机主流程
func (e *Executor) run(ctx context.Context, h *Handle, item models.WorkItem, start time.Time) (outcome models.JobOutcome) {
	marks := models.TimingMarks{Start: start}
	defer func() {
		if marks.DoneAt.IsZero() {
			marks.DoneAt = time.Now()
		}
		outcome.Marks = marks
	}()

	page := h.Page.Context(ctx)

	if err := e.ensureEntry(page); err != nil {
		return e.fail(page, item, models.StatusError, fmt.Sprintf("入口页不可用: %v", err))
	}

	// 资源拦截只在首次导航成功后挂载,每个标签页一次
	if (e.cfg.BlockResources || len(e.cfg.Headers) > 0) && !h.hijacked.Swap(true) {
		if err := EnableResourceBlocking(h.Page, e.cfg.Headers, nil); err != nil {
			utils.Warnf("启用资源拦截失败: %v", err)
		}
	}

	e.dismissBanners(page)

	if err := e.fillAddress(page, item.Address); err != nil {
		return e.fail(page, item, models.StatusError, fmt.Sprintf("填写地址失败: %v", err))
	}
	marks.TypedAt = time.Now()

	if err := e.submit(page, item.Address); err != nil {
		return e.fail(page, item, models.StatusError, fmt.Sprintf("提交搜索失败: %v", err))
	}

	state, html := e.awaitResults(page, e.cfg.ResultsTimeout)

	// 结果超时且允许重试: 原地重新提交一次,用更短的等待窗口
	retried := false
	if state == statePending && e.cfg.RetrySubmit {
		utils.Debugf("等待结果超时,原地重试提交: %s", item.Address)
		retried = true
		if err := e.submit(page, item.Address); err == nil {
			state, html = e.awaitResults(page, e.cfg.RetryTimeout)
		}
	}
	marks.ResultsAt = time.Now()

	outcome = e.conclude(page, item, state, html)
	outcome.Retried = retried
	return outcome
}

// conclude 按结果页状态收尾
func (e *Executor) conclude(page *rod.Page, item models.WorkItem, state pageState, html string) models.JobOutcome {
	switch state {
	case stateBotWall:
		return e.fail(page, item, models.StatusBlocked, "触发站点风控拦截")
	case stateNoData:
		return models.JobOutcome{Status: models.StatusNoData, ReasonText: "站点查无该地址"}
	case statePending:
		return e.fail(page, item, models.StatusTimeout, "等待结果超时")
	}

	fields, err := e.chain.Run(html)
	if err != nil {
		return e.fail(page, item, models.StatusNoData, fmt.Sprintf("结果页无法提取估值: %v", err))
	}
	return models.JobOutcome{Status: models.StatusEstimate, Value: float64(fields.Value)}
}

// ensureEntry 保证页面停留在入口页
func (e *Executor) ensureEntry(page *rod.Page) error {
	info, err := page.Info()
	if err == nil && strings.HasPrefix(info.URL, e.cfg.EntryURL) {
		return nil
	}
	return e.Recover(page)
}

// Recover 重载入口页,恢复标签页到可执行状态
func (e *Executor) Recover(page *rod.Page) error {
	p := page.Timeout(e.cfg.NavTimeout)
	if err := p.Navigate(e.cfg.EntryURL); err != nil {
		return ClassifyNavError(err)
	}
	if err := p.WaitLoad(); err != nil {
		return ClassifyNavError(err)
	}
	e.dismissBanners(page)
	return nil
}

// dismissBanners 关闭遮挡输入框的弹窗,尽力而为
func (e *Executor) dismissBanners(page *rod.Page) {
	for _, sel := range e.cfg.BannerSelectors {
		el, err := page.Timeout(time.Second).Element(sel)
		if err != nil {
			continue
		}
		if err := el.Click("left", 1); err == nil {
			utils.Debugf("已关闭页面横幅: %s", sel)
		}
	}
}

// fillAddress 定位搜索框并输入地址
// 选择器按优先级尝试,页面改版时在配置中追加
func (e *Executor) fillAddress(page *rod.Page, address string) error {
	var lastErr error
	for _, sel := range e.cfg.InputSelectors {
		el, err := page.Timeout(3 * time.Second).Element(sel)
		if err != nil {
			lastErr = err
			continue
		}
		if err := el.SelectAllText(); err == nil {
			_ = el.Input("")
		}
		if err := el.Input(address); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("所有搜索框选择器均未命中")
	}
	return lastErr
}

// submit 提交搜索
// 优先点击匹配的地址联想项,联想未出现时退化为回车提交
func (e *Executor) submit(page *rod.Page, address string) error {
	if e.cfg.SuggestionSelector != "" {
		if el, err := page.Timeout(3 * time.Second).Element(e.cfg.SuggestionSelector); err == nil {
			text, _ := el.Text()
			if suggestionMatches(text, address) {
				if err := el.Click("left", 1); err == nil {
					return nil
				}
			}
		}
	}
	return page.Keyboard.Press(input.Enter)
}

// awaitResults 轮询等待结果页进入可判定状态
// 返回最终状态和当时的页面HTML
func (e *Executor) awaitResults(page *rod.Page, timeout time.Duration) (pageState, string) {
	deadline := time.Now().Add(timeout)
	var html string

	for time.Now().Before(deadline) {
		h, err := page.HTML()
		if err == nil {
			html = h
			if state := classifyPageHTML(html, e.chain); state != statePending {
				return state, html
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return statePending, html
}

// classifyPageHTML 按特征文本和提取链对页面分类
func classifyPageHTML(html string, chain *extract.Chain) pageState {
	lower := strings.ToLower(html)

	for _, token := range botWallTokens {
		if strings.Contains(lower, token) {
			return stateBotWall
		}
	}
	for _, token := range noDataTokens {
		if strings.Contains(lower, token) {
			return stateNoData
		}
	}
	if chain != nil {
		if _, err := chain.Run(html); err == nil {
			return stateResults
		}
	}
	return statePending
}

// suggestionMatches 联想项文本与输入地址的宽松匹配
// 比较时忽略大小写和标点,要求联想项以地址的门牌+街道开头
func suggestionMatches(suggestion, address string) bool {
	s := normalizeForMatch(suggestion)
	a := normalizeForMatch(address)
	if s == "" || a == "" {
		return false
	}
	// 取地址前两段(门牌号+街道名首词)作为匹配锚点
	parts := strings.Fields(a)
	anchor := a
	if len(parts) > 2 {
		anchor = strings.Join(parts[:2], " ")
	}
	return strings.HasPrefix(s, anchor)
}

func normalizeForMatch(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// fail 组装失败结果,必要时落盘页面现场
func (e *Executor) fail(page *rod.Page, item models.WorkItem, status models.JobStatus, reason string) models.JobOutcome {
	if e.cfg.DebugDir != "" && page != nil {
		e.dumpDebugArtifacts(page, item)
	}
	return models.JobOutcome{Status: status, ReasonText: reason}
}

// dumpDebugArtifacts 落盘失败任务的页面HTML和截图,用于排查选择器失效
func (e *Executor) dumpDebugArtifacts(page *rod.Page, item models.WorkItem) {
	if err := os.MkdirAll(e.cfg.DebugDir, 0755); err != nil {
		return
	}
	stamp := fmt.Sprintf("%s_%d", sanitizeFilename(item.ID), time.Now().Unix())

	if html, err := page.Timeout(3 * time.Second).HTML(); err == nil {
		path := filepath.Join(e.cfg.DebugDir, stamp+".html")
		if err := os.WriteFile(path, []byte(html), 0644); err != nil {
			utils.Warnf("落盘调试HTML失败: %v", err)
		} else {
			utils.Debugf("已落盘调试HTML: %s", path)
		}
	}

	if !e.cfg.DebugScreenshots {
		return
	}
	shot, err := page.Timeout(5 * time.Second).Screenshot(false, nil)
	if err != nil {
		return
	}
	path := filepath.Join(e.cfg.DebugDir, stamp+".png")
	if err := os.WriteFile(path, shot, 0644); err != nil {
		utils.Warnf("落盘调试截图失败: %v", err)
		return
	}
	utils.Debugf("已落盘调试截图: %s", path)
}

func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
