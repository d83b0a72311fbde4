package core

import (
	"context"
	"testing"
	"time"

	"github.com/mioym/homeval/internal/models"
)

func makeChunk(index int, addresses ...string) models.Chunk {
	items := make([]models.WorkItem, 0, len(addresses))
	for _, addr := range addresses {
		items = append(items, models.WorkItem{
			ID:      addr + "-id",
			Address: addr,
			Vendor:  "estately",
		})
	}
	return models.Chunk{Index: index, Items: items}
}

func TestChunkQueuePushPop(t *testing.T) {
	q := NewChunkQueue(4)

	if err := q.Push(makeChunk(0, "1 A St")); err != nil {
		t.Fatalf("入队失败: %v", err)
	}
	if err := q.Push(makeChunk(1, "2 B St")); err != nil {
		t.Fatalf("入队失败: %v", err)
	}
	if q.PendingCount() != 2 {
		t.Fatalf("待处理块数 = %d, 期望 2", q.PendingCount())
	}

	ctx := context.Background()
	first, ok := q.Pop(ctx)
	if !ok || first.Index != 0 {
		t.Fatalf("首个出队块 index = %d, 期望 0", first.Index)
	}
	second, ok := q.Pop(ctx)
	if !ok || second.Index != 1 {
		t.Fatalf("第二个出队块 index = %d, 期望 1", second.Index)
	}
}

func TestChunkQueueRejectsEmptyChunk(t *testing.T) {
	q := NewChunkQueue(4)
	if err := q.Push(models.Chunk{Index: 0}); err == nil {
		t.Fatal("空工作块应被拒绝")
	}
}

func TestChunkQueueCloseSemantics(t *testing.T) {
	q := NewChunkQueue(4)
	if err := q.Push(makeChunk(0, "1 A St")); err != nil {
		t.Fatalf("入队失败: %v", err)
	}
	q.Close()

	// 关闭后拒绝新块
	if err := q.Push(makeChunk(1, "2 B St")); err == nil {
		t.Fatal("关闭后的入队应返回错误")
	}

	// 已入队的块仍可取出
	ctx := context.Background()
	if _, ok := q.Pop(ctx); !ok {
		t.Fatal("关闭后应仍能取出已入队的块")
	}
	// 取空后ok为false
	if _, ok := q.Pop(ctx); ok {
		t.Fatal("队列取空后Pop应返回false")
	}

	// 重复关闭不崩溃
	q.Close()
}

func TestChunkQueuePopHonorsContext(t *testing.T) {
	q := NewChunkQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := q.Pop(ctx)
	if ok {
		t.Fatal("空队列上取消的Pop不应返回块")
	}
	if time.Since(start) > time.Second {
		t.Fatal("Pop未及时响应context取消")
	}
}
