package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/mioym/homeval/internal/models"
)

// ChunkQueue 工作块队列
// 职责: 调度器切块后入队,各worker并发安全地逐块取出
type ChunkQueue struct {
	pending chan models.Chunk

	mu     sync.RWMutex
	closed bool
}

// NewChunkQueue 创建工作块队列
func NewChunkQueue(capacity int) *ChunkQueue {
	if capacity < 1 {
		capacity = 64
	}
	return &ChunkQueue{
		pending: make(chan models.Chunk, capacity),
	}
}

// Push 添加工作块
// 空块被拒绝;队列关闭后返回错误
func (q *ChunkQueue) Push(chunk models.Chunk) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("队列已关闭")
	}
	q.mu.RUnlock()

	if len(chunk.Items) == 0 {
		return fmt.Errorf("空工作块不可入队")
	}

	q.pending <- chunk
	return nil
}

// Pop 取出下一个工作块
// 阻塞等待,支持context取消;队列关闭且取空后ok为false
func (q *ChunkQueue) Pop(ctx context.Context) (models.Chunk, bool) {
	select {
	case <-ctx.Done():
		return models.Chunk{}, false
	case chunk, ok := <-q.pending:
		if !ok {
			return models.Chunk{}, false
		}
		return chunk, true
	}
}

// PendingCount 当前待处理块数
func (q *ChunkQueue) PendingCount() int {
	return len(q.pending)
}

// Close 关闭队列
// 已入队的块仍可被Pop取出,后续Push返回错误
func (q *ChunkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		close(q.pending)
		q.closed = true
	}
}
