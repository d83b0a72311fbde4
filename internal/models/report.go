package models

import "time"

// RunStats 单轮运行统计
type RunStats struct {
	Fetched   int     `json:"fetched"`   // 从存储拉取的工作项数
	Deduped   int     `json:"deduped"`   // 因去重跳过的项数
	Processed int     `json:"processed"` // 实际执行的项数
	Succeeded int     `json:"succeeded"` // 取得估值的项数
	NoData    int     `json:"nodata"`    // 无数据的项数
	Blocked   int     `json:"blocked"`   // 被反爬墙拦截的项数
	TimedOut  int     `json:"timed_out"` // 硬超时的项数
	Failed    int     `json:"failed"`    // 其他失败的项数
	Rotations int     `json:"rotations"` // 代理轮换次数
	Duration  float64 `json:"duration"`  // 总耗时(秒)
}

// Add 按结局累加统计
func (s *RunStats) Add(o JobOutcome) {
	s.Processed++
	switch o.Status {
	case StatusEstimate:
		s.Succeeded++
	case StatusNoData:
		s.NoData++
	case StatusBlocked:
		s.Blocked++
	case StatusTimeout:
		s.TimedOut++
	default:
		s.Failed++
	}
}

// ItemResult 单项执行记录(写入运行报告)
type ItemResult struct {
	ItemID      string    `json:"item_id"`
	Address     string    `json:"address"`
	Outcome     JobOutcome `json:"outcome"`
	ProxyLabel  string    `json:"proxy_label,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// RunReport 运行报告
// 每轮调度结束后序列化到报告目录,供事后排查
type RunReport struct {
	RunID     string       `json:"run_id"`
	Vendor    string       `json:"vendor"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	Stats     RunStats     `json:"stats"`
	Items     []ItemResult `json:"items"`
	Config    RunConfig    `json:"config"`
}
