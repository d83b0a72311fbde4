package core

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mioym/homeval/internal/engine"
	"github.com/mioym/homeval/internal/models"
	"github.com/mioym/homeval/internal/proxy"
	"github.com/mioym/homeval/internal/store"
	"github.com/mioym/homeval/internal/utils"
)

// SessionSource 产出经验证的浏览器会话
// 生产实现为engine.Rotator,测试注入伪造实现
type SessionSource interface {
	OpenHealthy(ctx context.Context, key string) (*engine.Session, proxy.Endpoint, error)
}

// Worker 工作块处理器
// 每个块绑定一个代理会话;块内逐条目顺序执行,
// 触发风控或用量达到配额时轮换代理
type Worker struct {
	sessions  SessionSource
	newRunner RunnerFactory
	store     store.Store
	dedup     *DedupCache
	telemetry *Telemetry

	engCfg models.EngineConfig
	runCfg models.RunConfig

	rememberFailures bool

	record func(models.ItemResult)
	bar    *progressbar.ProgressBar
}

// NewWorker 创建工作块处理器
func NewWorker(
	sessions SessionSource,
	newRunner RunnerFactory,
	st store.Store,
	dedup *DedupCache,
	telemetry *Telemetry,
	engCfg models.EngineConfig,
	runCfg models.RunConfig,
	dedupCfg models.DedupConfig,
	record func(models.ItemResult),
	bar *progressbar.ProgressBar,
) *Worker {
	return &Worker{
		sessions:         sessions,
		newRunner:        newRunner,
		store:            st,
		dedup:            dedup,
		telemetry:        telemetry,
		engCfg:           engCfg,
		runCfg:           runCfg,
		rememberFailures: dedupCfg.RememberFailures,
		record:           record,
		bar:              bar,
	}
}

// ProcessChunks 循环消费队列直至取空或取消
// 环境性故障上抛终止整轮运行,其他错误只影响当前块
func (w *Worker) ProcessChunks(ctx context.Context, queue *ChunkQueue) error {
	for {
		chunk, ok := queue.Pop(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := w.processChunk(ctx, chunk); err != nil {
			return err
		}
	}
}

// processChunk 处理单个工作块
func (w *Worker) processChunk(ctx context.Context, chunk models.Chunk) error {
	rotation := 0
	key := chunkKey(chunk.Index, rotation)

	session, ep, err := w.sessions.OpenHealthy(ctx, key)
	if err != nil {
		if engine.IsEnvironmentError(err) || ctx.Err() != nil {
			return err
		}
		// 块级失败: 全部条目记为失败,本轮运行继续
		utils.Errorf("工作块 %d 无可用代理: %v", chunk.Index, err)
		w.failRemaining(chunk.Items, ep, err)
		return nil
	}

	runner, err := w.newRunner(session)
	if err != nil {
		return fmt.Errorf("创建会话执行器失败: %w", err)
	}
	defer func() { _ = runner.Close() }()

	pagesUsed := 0
	cooldown := time.Duration(w.runCfg.Cooldown) * time.Second

	for i, item := range chunk.Items {
		if err := ctx.Err(); err != nil {
			return err
		}

		if w.dedup != nil && w.dedup.Seen(item.Address) {
			utils.Debugf("条目近期已处理,跳过: %s", item.Address)
			w.finishItem(item, ep, models.JobOutcome{
				Status:     models.StatusNoData,
				ReasonText: "近期已处理(去重命中)",
			}, true)
			continue
		}

		// 代理用量配额轮换
		if pagesUsed >= w.engCfg.PagesPerProxy {
			rotation++
			key = chunkKey(chunk.Index, rotation)
			newRunner, newEp, err := w.rotateSession(ctx, runner, key)
			if err != nil {
				if engine.IsEnvironmentError(err) || ctx.Err() != nil {
					return err
				}
				w.failRemaining(chunk.Items[i:], ep, err)
				return nil
			}
			runner, ep = newRunner, newEp
			pagesUsed = 0
		}

		outcome := runner.Run(ctx, item)
		pagesUsed++
		w.finishItem(item, ep, outcome, false)

		// 风控拦截意味着出口IP已被盯上,换代理保护后续条目
		if outcome.Status == models.StatusBlocked && i < len(chunk.Items)-1 {
			utils.Warnf("出口被风控拦截,轮换代理: %s", ep.Label)
			rotation++
			key = chunkKey(chunk.Index, rotation)
			newRunner, newEp, err := w.rotateSession(ctx, runner, key)
			if err != nil {
				if engine.IsEnvironmentError(err) || ctx.Err() != nil {
					return err
				}
				w.failRemaining(chunk.Items[i+1:], ep, err)
				return nil
			}
			runner, ep = newRunner, newEp
			pagesUsed = 0
		}

		if cooldown > 0 && i < len(chunk.Items)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cooldown):
			}
		}
	}

	return nil
}

// rotateSession 关闭当前会话执行器并换新代理重建
func (w *Worker) rotateSession(ctx context.Context, old SessionRunner, key string) (SessionRunner, proxy.Endpoint, error) {
	_ = old.Close()

	session, ep, err := w.sessions.OpenHealthy(ctx, key)
	if err != nil {
		return nil, proxy.Endpoint{}, err
	}
	runner, err := w.newRunner(session)
	if err != nil {
		return nil, proxy.Endpoint{}, err
	}
	return runner, ep, nil
}

// finishItem 条目收尾: 回写存储、记录去重、遥测和结果归档
func (w *Worker) finishItem(item models.WorkItem, ep proxy.Endpoint, outcome models.JobOutcome, deduped bool) {
	if !deduped {
		if outcome.Success() {
			// 回写失败不中断运行,条目下轮会重新拉取
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := w.store.SetVendorValue(writeCtx, models.ValueUpdate{
				ItemID:    item.ID,
				Vendor:    item.Vendor,
				Value:     outcome.Value,
				FetchedAt: time.Now(),
			})
			cancel()
			if err != nil {
				utils.Errorf("估值回写失败 [%s]: %v", item.ID, err)
			}
		}

		// 成功和查无数据总是记入;其他失败按配置决定
		if w.dedup != nil {
			switch {
			case outcome.Success(), outcome.Status == models.StatusNoData:
				w.dedup.Remember(item.Address)
			case w.rememberFailures:
				w.dedup.Remember(item.Address)
			}
		}
		if w.telemetry != nil {
			w.telemetry.Observe(outcome)
		}
	}

	if w.record != nil {
		w.record(models.ItemResult{
			ItemID:      item.ID,
			Address:     item.Address,
			Outcome:     outcome,
			ProxyLabel:  ep.Label,
			ProcessedAt: time.Now(),
		})
	}
	if w.bar != nil {
		_ = w.bar.Add(1)
	}
}

// failRemaining 剩余条目全部记为失败
func (w *Worker) failRemaining(items []models.WorkItem, ep proxy.Endpoint, cause error) {
	for _, item := range items {
		w.finishItem(item, ep, models.JobOutcome{
			Status:     models.StatusError,
			ReasonText: "块级失败: " + cause.Error(),
		}, false)
	}
}

func chunkKey(index, rotation int) string {
	return fmt.Sprintf("chunk-%d-r%d", index, rotation)
}
