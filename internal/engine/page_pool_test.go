package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeFactory 不依赖浏览器的标签页工厂
func fakeFactory() (PageFactory, *atomic.Int64) {
	var created atomic.Int64
	var nextID atomic.Int64
	factory := func(_ context.Context) (*Handle, error) {
		created.Add(1)
		return &Handle{id: nextID.Add(1)}, nil
	}
	return factory, &created
}

func TestPagePoolLazyCreation(t *testing.T) {
	factory, created := fakeFactory()
	pool := NewPagePool(4, factory)
	defer pool.Close()

	h, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}
	if created.Load() != 1 {
		t.Errorf("创建数 = %d, 期望 1", created.Load())
	}

	// 归还后再获取应复用,不新建
	pool.Release(h)
	h2, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}
	if created.Load() != 1 {
		t.Errorf("复用后创建数 = %d, 期望 1", created.Load())
	}
	pool.Release(h2)
}

func TestPagePoolCapacityInvariant(t *testing.T) {
	factory, created := fakeFactory()
	pool := NewPagePool(2, factory)
	defer pool.Close()

	ctx := context.Background()
	h1, _ := pool.Acquire(ctx)
	h2, _ := pool.Acquire(ctx)

	idle, busy, size := pool.Stats()
	if idle != 0 || busy != 2 || size != 2 {
		t.Fatalf("状态 = (%d, %d, %d), 期望 (0, 2, 2)", idle, busy, size)
	}

	// 容量已满,第三次获取应阻塞直至归还
	acquired := make(chan *Handle)
	go func() {
		h, err := pool.Acquire(ctx)
		if err != nil {
			t.Errorf("排队获取失败: %v", err)
		}
		acquired <- h
	}()

	select {
	case <-acquired:
		t.Fatal("容量已满时获取不应立即成功")
	case <-time.After(100 * time.Millisecond):
	}

	pool.Release(h1)
	select {
	case h := <-acquired:
		pool.Release(h)
	case <-time.After(time.Second):
		t.Fatal("归还后排队者未被唤醒")
	}

	pool.Release(h2)
	if created.Load() != 2 {
		t.Errorf("创建数 = %d, 期望 2 (不超过容量)", created.Load())
	}
}

func TestPagePoolFIFOHandoff(t *testing.T) {
	factory, _ := fakeFactory()
	pool := NewPagePool(1, factory)
	defer pool.Close()

	ctx := context.Background()
	h, _ := pool.Acquire(ctx)

	// 两个排队者按序入队
	order := make(chan int, 2)
	var ready sync.WaitGroup
	ready.Add(1)
	go func() {
		ready.Done()
		got, _ := pool.Acquire(ctx)
		order <- 1
		time.Sleep(50 * time.Millisecond)
		pool.Release(got)
	}()
	ready.Wait()
	time.Sleep(50 * time.Millisecond) // 保证第一个排队者先入队

	go func() {
		got, _ := pool.Acquire(ctx)
		order <- 2
		pool.Release(got)
	}()
	time.Sleep(50 * time.Millisecond)

	pool.Release(h)

	first := <-order
	second := <-order
	if first != 1 || second != 2 {
		t.Errorf("交接顺序 = %d,%d, 期望 1,2", first, second)
	}
}

func TestPagePoolIdempotentRelease(t *testing.T) {
	factory, _ := fakeFactory()
	pool := NewPagePool(2, factory)
	defer pool.Close()

	h, _ := pool.Acquire(context.Background())
	pool.Release(h)
	pool.Release(h) // 重复归还应被忽略

	idle, busy, _ := pool.Stats()
	if idle != 1 || busy != 0 {
		t.Errorf("重复归还后状态 = (%d, %d), 期望 (1, 0)", idle, busy)
	}
}

func TestPagePoolAcquireCancel(t *testing.T) {
	factory, _ := fakeFactory()
	pool := NewPagePool(1, factory)
	defer pool.Close()

	h, _ := pool.Acquire(context.Background())
	defer pool.Release(h)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := pool.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("期望DeadlineExceeded, 实际 %v", err)
	}
}

func TestPagePoolClose(t *testing.T) {
	factory, _ := fakeFactory()
	pool := NewPagePool(2, factory)

	h, _ := pool.Acquire(context.Background())
	pool.Release(h)

	if err := pool.Close(); err != nil {
		t.Fatalf("Close失败: %v", err)
	}
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("关闭后获取应返回ErrPoolClosed, 实际 %v", err)
	}
	if !h.closed.Load() {
		t.Error("关闭后空闲页应被销毁")
	}
}

func TestPagePoolDiscardFreesCapacity(t *testing.T) {
	factory, created := fakeFactory()
	pool := NewPagePool(1, factory)
	defer pool.Close()

	ctx := context.Background()
	h, _ := pool.Acquire(ctx)
	pool.Discard(h)

	if !h.closed.Load() {
		t.Error("Discard应销毁标签页")
	}

	// 腾出的容量可再创建
	h2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Discard后获取失败: %v", err)
	}
	pool.Release(h2)
	if created.Load() != 2 {
		t.Errorf("创建数 = %d, 期望 2", created.Load())
	}
}

func TestPagePoolDiscardReservesReplacementSlot(t *testing.T) {
	var created atomic.Int64
	var nextID atomic.Int64
	unblock := make(chan struct{})
	factory := func(_ context.Context) (*Handle, error) {
		if created.Add(1) > 1 {
			// 补建的页慢一点, 撑开与并发Acquire的竞态窗口
			<-unblock
		}
		return &Handle{id: nextID.Add(1)}, nil
	}

	pool := NewPagePool(1, factory)
	defer pool.Close()

	ctx := context.Background()
	h1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}

	// 容量占满后排一个等待者
	waiterGot := make(chan *Handle, 1)
	go func() {
		h, err := pool.Acquire(ctx)
		if err != nil {
			waiterGot <- nil
			return
		}
		waiterGot <- h
	}()
	for i := 0; i < 200; i++ {
		pool.mu.Lock()
		n := len(pool.waiters)
		pool.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// 销毁h1触发补建; 腾出的空位必须在锁内被补建预占,
	// 否则此处的并发Acquire会懒创建进同一空位, 占用数变成2
	pool.Discard(h1)

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(timeoutCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("空位已被补建预占, Acquire应排队直至超时, 得到: %v", err)
	}
	if created.Load() != 2 {
		t.Fatalf("创建数 = %d, 期望 2 (并发Acquire不应挤进补建的空位)", created.Load())
	}

	close(unblock)
	h2 := <-waiterGot
	if h2 == nil {
		t.Fatal("等待者未拿到补建的标签页")
	}

	idle, busy, size := pool.Stats()
	if busy+idle > size {
		t.Errorf("不变量被破坏: busy=%d idle=%d size=%d", busy, idle, size)
	}
	pool.Release(h2)
}

func TestPagePoolAcquireSkipsClosedIdle(t *testing.T) {
	factory, created := fakeFactory()
	pool := NewPagePool(2, factory)
	defer pool.Close()

	ctx := context.Background()
	h1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}
	pool.Release(h1)

	// 空闲中的页被外部销毁(浏览器崩溃等), 复用时必须跳过
	_ = h1.Close()

	h2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}
	if h2.id == h1.id {
		t.Error("不应复用已销毁的句柄")
	}
	if created.Load() != 2 {
		t.Errorf("创建数 = %d, 期望 2 (丢弃坏页后新建)", created.Load())
	}

	idle, busy, size := pool.Stats()
	if busy+idle > size {
		t.Errorf("不变量被破坏: busy=%d idle=%d size=%d", busy, idle, size)
	}
	pool.Release(h2)
}
