package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mioym/homeval/internal/models"
	"github.com/mioym/homeval/internal/utils"
)

// bucketBounds 耗时直方图的桶上界
var bucketBounds = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	6 * time.Second,
	10 * time.Second,
	20 * time.Second,
	40 * time.Second,
}

// bucketLabels 与bucketBounds对应的展示标签
var bucketLabels = []string{
	"<1s", "1-3s", "3-6s", "6-10s", "10-20s", "20-40s", "40s+",
}

// histogram 单相位耗时直方图
type histogram struct {
	counts [7]int64
}

func (h *histogram) observe(d time.Duration) {
	for i, bound := range bucketBounds {
		if d < bound {
			h.counts[i]++
			return
		}
	}
	h.counts[len(bucketBounds)]++
}

func (h *histogram) render() string {
	parts := make([]string, 0, len(bucketLabels))
	for i, label := range bucketLabels {
		if h.counts[i] > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", label, h.counts[i]))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// Telemetry 运行期耗时遥测
// 按相位(输入/结果/总耗时)记录直方图,每处理N个任务输出一次汇总
type Telemetry struct {
	mu sync.Mutex

	typed   histogram
	results histogram
	total   histogram

	processed int64
	succeeded int64
	noData    int64
	blocked   int64
	timedOut  int64
	failed    int64
	retried   int64

	summaryEvery int
}

// NewTelemetry 创建遥测收集器
// summaryEvery为0时关闭周期性汇总
func NewTelemetry(summaryEvery int) *Telemetry {
	return &Telemetry{summaryEvery: summaryEvery}
}

// Observe 记录一个任务结果
func (t *Telemetry) Observe(outcome models.JobOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed++
	t.typed.observe(outcome.Marks.Typed())
	t.results.observe(outcome.Marks.Results())
	t.total.observe(outcome.Marks.Total())

	switch outcome.Status {
	case models.StatusEstimate:
		t.succeeded++
	case models.StatusNoData:
		t.noData++
	case models.StatusBlocked:
		t.blocked++
	case models.StatusTimeout:
		t.timedOut++
	default:
		t.failed++
	}
	if outcome.Retried {
		t.retried++
	}

	if t.summaryEvery > 0 && t.processed%int64(t.summaryEvery) == 0 {
		t.logSummaryLocked()
	}
}

// logSummaryLocked 输出汇总,调用方须持锁
func (t *Telemetry) logSummaryLocked() {
	utils.Infof("📊 耗时汇总 (共%d项): 成功=%d 无数据=%d 拦截=%d 超时=%d 失败=%d 重试=%d",
		t.processed, t.succeeded, t.noData, t.blocked, t.timedOut, t.failed, t.retried)
	utils.Infof("   输入相位: %s", t.typed.render())
	utils.Infof("   结果相位: %s", t.results.render())
	utils.Infof("   总耗时:   %s", t.total.render())
}

// LogSummary 立即输出一次汇总(运行结束时调用)
func (t *Telemetry) LogSummary() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logSummaryLocked()
}

// Counts 返回 (已处理, 成功, 失败类合计) 计数
func (t *Telemetry) Counts() (processed, succeeded, failedLike int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processed, t.succeeded, t.blocked + t.timedOut + t.failed
}
