package models

import "time"

// JobStatus 单个工作项的结局分类
type JobStatus string

const (
	StatusEstimate JobStatus = "estimate" // 成功取得估值
	StatusNoData   JobStatus = "nodata"   // 页面正常但无该地址数据
	StatusBlocked  JobStatus = "blocked"  // 命中反爬墙/验证码
	StatusTimeout  JobStatus = "timeout"  // 硬超时放弃
	StatusError    JobStatus = "error"    // 其他错误
)

// TimingMarks 各阶段时间标记
// 由执行器在状态推进时打点,用于直方图统计
type TimingMarks struct {
	Start     time.Time `json:"start"`      // 任务开始
	TypedAt   time.Time `json:"typed_at"`   // 地址输入完成
	ResultsAt time.Time `json:"results_at"` // 结果上下文就绪
	DoneAt    time.Time `json:"done_at"`    // 任务结束
}

// Typed 输入阶段耗时
func (m TimingMarks) Typed() time.Duration {
	if m.TypedAt.IsZero() {
		return 0
	}
	return m.TypedAt.Sub(m.Start)
}

// Results 等待结果阶段耗时
func (m TimingMarks) Results() time.Duration {
	if m.ResultsAt.IsZero() || m.TypedAt.IsZero() {
		return 0
	}
	return m.ResultsAt.Sub(m.TypedAt)
}

// Total 总耗时
func (m TimingMarks) Total() time.Duration {
	if m.DoneAt.IsZero() {
		return 0
	}
	return m.DoneAt.Sub(m.Start)
}

// JobOutcome 单个工作项的执行结果
// 调用方据此决定存储写回与统计分桶
type JobOutcome struct {
	Status     JobStatus   `json:"status"`
	Value      float64     `json:"value,omitempty"`       // Status==estimate时有效
	ReasonText string      `json:"reason_text,omitempty"` // 失败原因(已脱敏)
	Retried    bool        `json:"retried"`               // 是否执行过二次提交
	Marks      TimingMarks `json:"marks"`
}

// Success 是否成功取得估值
func (o JobOutcome) Success() bool {
	return o.Status == StatusEstimate
}

// Terminal 是否为目标站行为性失败(本轮内不再重试)
func (o JobOutcome) Terminal() bool {
	switch o.Status {
	case StatusNoData, StatusBlocked, StatusTimeout:
		return true
	default:
		return false
	}
}
