package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mioym/homeval/internal/engine"
	"github.com/mioym/homeval/internal/models"
	"github.com/mioym/homeval/internal/store"
	"github.com/mioym/homeval/internal/utils"
)

// Scheduler 组织一轮批处理运行
// 职责: 拉取待处理条目 -> 批内去重 -> 切块入队 -> 并发worker消费 -> 汇总报告
type Scheduler struct {
	store     store.Store
	sessions  SessionSource
	newRunner RunnerFactory
	dedup     *DedupCache
	telemetry *Telemetry
	reporter  *utils.Reporter
	cfg       *Config
}

// NewScheduler 创建调度器
func NewScheduler(
	st store.Store,
	sessions SessionSource,
	newRunner RunnerFactory,
	dedup *DedupCache,
	telemetry *Telemetry,
	reporter *utils.Reporter,
	cfg *Config,
) *Scheduler {
	return &Scheduler{
		store:     st,
		sessions:  sessions,
		newRunner: newRunner,
		dedup:     dedup,
		telemetry: telemetry,
		reporter:  reporter,
		cfg:       cfg,
	}
}

// Run 执行一轮完整运行,返回运行报告
// 环境性故障(如内存不足、文件描述符耗尽)会中止整轮并返回错误,
// 单项和单块的失败只计入统计,不中断运行
func (s *Scheduler) Run(ctx context.Context) (*models.RunReport, error) {
	runID := uuid.New().String()
	startTime := time.Now()

	report := &models.RunReport{
		RunID:     runID,
		Vendor:    s.cfg.Run.Vendor,
		StartTime: startTime,
		Config:    s.cfg.Run,
	}

	utils.Infof("🚀 开始估值采集运行 run_id=%s 厂商=%s", runID, s.cfg.Run.Vendor)

	items, err := s.collectItems(ctx)
	if err != nil {
		return report, err
	}
	report.Stats.Fetched = len(items)

	dispatch, skipped := s.filterBatch(items)
	report.Stats.Deduped = skipped

	if len(dispatch) == 0 {
		utils.Infof("✅ 无待处理条目,本轮结束 (拉取=%d 去重跳过=%d)", len(items), skipped)
		report.EndTime = time.Now()
		report.Stats.Duration = report.EndTime.Sub(startTime).Seconds()
		return report, s.finalize(report)
	}

	chunks := splitChunks(dispatch, s.cfg.Run.ChunkSize)
	utils.Infof("📋 本轮调度 %d 个条目 / %d 个块 (块大小=%d 并发=%d)",
		len(dispatch), len(chunks), s.cfg.Run.ChunkSize, s.concurrency())

	queue := NewChunkQueue(len(chunks))
	for _, chunk := range chunks {
		if err := queue.Push(chunk); err != nil {
			return report, fmt.Errorf("工作块入队失败: %w", err)
		}
	}
	queue.Close()

	bar := utils.NewProgressBar(len(dispatch), fmt.Sprintf("采集 %s 估值", s.cfg.Run.Vendor))

	var mu sync.Mutex
	record := func(result models.ItemResult) {
		mu.Lock()
		defer mu.Unlock()
		report.Items = append(report.Items, result)
		report.Stats.Add(result.Outcome)
	}

	worker := NewWorker(
		s.sessions,
		s.newRunner,
		s.store,
		s.dedup,
		s.telemetry,
		s.cfg.Engine,
		s.cfg.Run,
		s.cfg.Dedup,
		record,
		bar,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency(); i++ {
		g.Go(func() error {
			return worker.ProcessChunks(gctx, queue)
		})
	}
	runErr := g.Wait()
	_ = bar.Finish()
	fmt.Println()

	report.EndTime = time.Now()
	report.Stats.Duration = report.EndTime.Sub(startTime).Seconds()
	if rot, ok := s.sessions.(*engine.Rotator); ok {
		report.Stats.Rotations = int(rot.Rotations())
	}

	if runErr != nil {
		utils.Errorf("本轮运行中止: %v", runErr)
	} else {
		utils.Infof("✅ 本轮运行完成 处理=%d 成功=%d 耗时=%.1fs",
			report.Stats.Processed, report.Stats.Succeeded, report.Stats.Duration)
	}

	if err := s.finalize(report); err != nil {
		utils.Warnf("运行收尾失败: %v", err)
	}
	return report, runErr
}

// collectItems 拉取本轮工作项
// 单项调试模式绕过存储,直接构造一个合成工作项
func (s *Scheduler) collectItems(ctx context.Context) ([]models.WorkItem, error) {
	if s.cfg.Run.SingleItem != "" {
		utils.Infof("🔍 单项调试模式: %s", s.cfg.Run.SingleItem)
		return []models.WorkItem{{
			ID:      "single",
			Address: s.cfg.Run.SingleItem,
			Vendor:  s.cfg.Run.Vendor,
		}}, nil
	}

	items, err := s.store.FetchDue(ctx, s.cfg.Run.Vendor, s.cfg.Run.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("拉取待处理条目失败: %w", err)
	}
	return items, nil
}

// filterBatch 批内去重与有效性过滤
// 同一归一化地址在批内只保留首个;近期已处理的条目整批跳过
func (s *Scheduler) filterBatch(items []models.WorkItem) (dispatch []models.WorkItem, skipped int) {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			utils.Warnf("跳过无效条目: %v", err)
			skipped++
			continue
		}
		key := NormalizeAddress(item.Address)
		if _, dup := seen[key]; dup {
			skipped++
			continue
		}
		seen[key] = struct{}{}
		if s.dedup != nil && s.dedup.Seen(item.Address) {
			skipped++
			continue
		}
		dispatch = append(dispatch, item)
	}
	if skipped > 0 {
		utils.Infof("批内去重跳过 %d 个条目", skipped)
	}
	return dispatch, skipped
}

// finalize 运行收尾: 报告落盘 + 统计摘要 + 去重快照
func (s *Scheduler) finalize(report *models.RunReport) error {
	var firstErr error

	if s.reporter != nil {
		if err := s.reporter.GenerateReport(*report); err != nil {
			firstErr = fmt.Errorf("生成运行报告失败: %w", err)
		}
	}

	if s.telemetry != nil {
		s.telemetry.LogSummary()
	}

	if s.dedup != nil && s.cfg.Dedup.CheckpointFile != "" {
		if err := s.dedup.SaveTo(s.cfg.Dedup.CheckpointFile); err != nil {
			utils.Warnf("去重快照落盘失败: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// concurrency 单项调试模式强制单worker
func (s *Scheduler) concurrency() int {
	if s.cfg.Run.SingleItem != "" {
		return 1
	}
	return s.cfg.Run.Concurrency
}

// splitChunks 按固定块大小切分工作项
func splitChunks(items []models.WorkItem, size int) []models.Chunk {
	if size < 1 {
		size = 1
	}
	var chunks []models.Chunk
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, models.Chunk{
			Index: len(chunks),
			Items: items[start:end],
		})
	}
	return chunks
}
