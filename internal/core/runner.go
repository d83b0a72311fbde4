package core

import (
	"context"

	"github.com/mioym/homeval/internal/engine"
	"github.com/mioym/homeval/internal/models"
	"github.com/mioym/homeval/internal/utils"
)

// SessionRunner 在单个浏览器会话上执行条目
// 内部持有该会话的标签页池,Close时一并释放
type SessionRunner interface {
	Run(ctx context.Context, item models.WorkItem) models.JobOutcome
	Close() error
}

// RunnerFactory 为会话创建执行器,worker在代理轮换后重建
type RunnerFactory func(session *engine.Session) (SessionRunner, error)

// ResourceGauge 提供标签页容量决策所需的资源读数
type ResourceGauge interface {
	CalculateMaxTabs() int
	CheckResourceAvailability() (canCreate bool, reason string)
}

// engineRunner 基于engine标签页池的标准实现
type engineRunner struct {
	pool     *engine.PagePool
	executor *engine.Executor
}

// NewEngineRunnerFactory 创建标准执行器工厂
// 每次重建会话时按当时的资源余量收缩标签页池容量
func NewEngineRunnerFactory(executor *engine.Executor, poolSize int, gauge ResourceGauge) RunnerFactory {
	return func(session *engine.Session) (SessionRunner, error) {
		size := clampPoolSize(poolSize, gauge)
		pool := engine.NewPagePool(size, engine.BrowserPageFactory(session.Browser))
		return &engineRunner{pool: pool, executor: executor}, nil
	}
}

// clampPoolSize 按资源余量收缩标签页池容量,资源紧张时降为单标签页
func clampPoolSize(poolSize int, gauge ResourceGauge) int {
	size := poolSize
	if size < 1 {
		size = 1
	}
	if gauge == nil {
		return size
	}
	if ok, reason := gauge.CheckResourceAvailability(); !ok {
		utils.Warnf("⚠️ 资源紧张,标签页池降为单页: %s", reason)
		return 1
	}
	if maxTabs := gauge.CalculateMaxTabs(); maxTabs > 0 && maxTabs < size {
		utils.Warnf("⚠️ 资源余量有限,标签页池容量 %d -> %d", size, maxTabs)
		size = maxTabs
	}
	return size
}

// Run 借一个标签页执行条目
// 超时/出错的页面状态不可信,直接销毁而非归还
func (r *engineRunner) Run(ctx context.Context, item models.WorkItem) models.JobOutcome {
	h, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.JobOutcome{
			Status:     models.StatusError,
			ReasonText: "获取标签页失败: " + err.Error(),
		}
	}

	outcome := r.executor.Execute(ctx, h, item)

	switch outcome.Status {
	case models.StatusTimeout, models.StatusError:
		r.pool.Discard(h)
	default:
		r.pool.Release(h)
	}
	return outcome
}

// Close 释放标签页池
func (r *engineRunner) Close() error {
	return r.pool.Close()
}
