package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/mioym/homeval/internal/utils"
)

// ErrPoolClosed 标签页池已关闭
var ErrPoolClosed = errors.New("标签页池已关闭")

// Handle 池管理的标签页句柄
// Page在Handle销毁后不可再使用
type Handle struct {
	Page    *rod.Page
	id      int64
	closed  atomic.Bool
	closeFn func() error

	hijacked atomic.Bool // 资源拦截是否已挂载
}

// Close 销毁底层标签页,幂等
func (h *Handle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	if h.closeFn != nil {
		return h.closeFn()
	}
	return nil
}

// PageFactory 标签页创建函数
// 默认实现在浏览器上开新标签页;测试注入伪造实现
type PageFactory func(ctx context.Context) (*Handle, error)

// BrowserPageFactory 基于rod浏览器的标准工厂
func BrowserPageFactory(browser *rod.Browser) PageFactory {
	var nextID atomic.Int64
	return func(ctx context.Context) (*Handle, error) {
		page, err := browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
		}
		page = page.Context(ctx)
		h := &Handle{Page: page, id: nextID.Add(1)}
		h.closeFn = page.Close
		return h, nil
	}
}

// waiter 等待标签页的排队者
type waiter struct {
	ch chan *Handle
}

// PagePool 固定容量标签页池
// 不变量: 空闲数+占用数+创建中数 <= 容量
// 获取顺序: 空闲复用 > 懒创建 > FIFO排队等待
type PagePool struct {
	factory PageFactory
	size    int

	mu       sync.Mutex
	idle     []*Handle
	busy     map[int64]*Handle
	creating int
	waiters  []*waiter
	closed   bool
}

// NewPagePool 创建标签页池
// size为池容量上限,标签页按需懒创建
func NewPagePool(size int, factory PageFactory) *PagePool {
	if size < 1 {
		size = 1
	}
	return &PagePool{
		factory: factory,
		size:    size,
		busy:    make(map[int64]*Handle),
	}
}

// Acquire 获取一个标签页
// 有空闲页时立即复用;未达容量时创建新页;否则排队等待归还
func (pp *PagePool) Acquire(ctx context.Context) (*Handle, error) {
	pp.mu.Lock()

	if pp.closed {
		pp.mu.Unlock()
		return nil, ErrPoolClosed
	}

	// 优先复用空闲页; 已被外部销毁的句柄直接丢弃,容量随之释放
	for n := len(pp.idle); n > 0; n = len(pp.idle) {
		h := pp.idle[n-1]
		pp.idle = pp.idle[:n-1]
		if h.closed.Load() {
			continue
		}
		pp.busy[h.id] = h
		pp.mu.Unlock()
		return h, nil
	}

	// 未达容量,懒创建
	if len(pp.busy)+pp.creating < pp.size {
		pp.creating++
		pp.mu.Unlock()

		h, err := pp.factory(ctx)

		pp.mu.Lock()
		pp.creating--
		if err != nil {
			pp.mu.Unlock()
			return nil, err
		}
		if pp.closed {
			pp.mu.Unlock()
			_ = h.Close()
			return nil, ErrPoolClosed
		}
		pp.busy[h.id] = h
		pp.mu.Unlock()
		utils.Debugf("创建新标签页 id=%d, 占用=%d/%d", h.id, len(pp.busy), pp.size)
		return h, nil
	}

	// 容量已满,FIFO排队
	w := &waiter{ch: make(chan *Handle, 1)}
	pp.waiters = append(pp.waiters, w)
	pp.mu.Unlock()

	select {
	case <-ctx.Done():
		pp.mu.Lock()
		for i, q := range pp.waiters {
			if q == w {
				pp.waiters = append(pp.waiters[:i], pp.waiters[i+1:]...)
				break
			}
		}
		pp.mu.Unlock()
		// 取消和交接可能竞速,已交接的页必须归还
		select {
		case h := <-w.ch:
			pp.Release(h)
		default:
		}
		return nil, ctx.Err()
	case h := <-w.ch:
		if h == nil {
			return nil, ErrPoolClosed
		}
		return h, nil
	}
}

// Release 归还标签页
// 有排队者时直接交接给最早的排队者;重复归还被忽略
func (pp *PagePool) Release(h *Handle) {
	if h == nil {
		return
	}

	pp.mu.Lock()

	if _, ok := pp.busy[h.id]; !ok {
		// 非本池占用中的句柄: 重复归还或已被销毁
		pp.mu.Unlock()
		return
	}

	if pp.closed {
		delete(pp.busy, h.id)
		pp.mu.Unlock()
		_ = h.Close()
		return
	}

	// 直接交接给最早排队者,busy归属不变
	if len(pp.waiters) > 0 {
		w := pp.waiters[0]
		pp.waiters = pp.waiters[1:]
		pp.mu.Unlock()
		w.ch <- h
		return
	}

	delete(pp.busy, h.id)
	pp.idle = append(pp.idle, h)
	pp.mu.Unlock()
}

// Discard 销毁占用中的标签页而不归还(页面已损坏时)
// 腾出的容量可被后续Acquire的懒创建使用
func (pp *PagePool) Discard(h *Handle) {
	if h == nil {
		return
	}
	pp.mu.Lock()
	_, ok := pp.busy[h.id]
	if ok {
		delete(pp.busy, h.id)
	}
	// 有排队者时替其补建新页: 腾出的容量在锁内立即预占,
	// 否则并发的Acquire会懒创建进同一空位,占用数突破容量
	var wake *waiter
	if ok && len(pp.waiters) > 0 && len(pp.busy)+pp.creating < pp.size {
		wake = pp.waiters[0]
		pp.waiters = pp.waiters[1:]
		pp.creating++
	}
	pp.mu.Unlock()

	_ = h.Close()

	if wake != nil {
		// 替最早的排队者补建新页,避免其永久等待
		go func() {
			h2, err := pp.factory(context.Background())

			pp.mu.Lock()
			pp.creating--
			if err != nil {
				pp.mu.Unlock()
				utils.Warnf("为排队者补建标签页失败: %v", err)
				wake.ch <- nil
				return
			}
			if pp.closed {
				pp.mu.Unlock()
				_ = h2.Close()
				wake.ch <- nil
				return
			}
			pp.busy[h2.id] = h2
			pp.mu.Unlock()
			wake.ch <- h2
		}()
	}
}

// Stats 返回 (空闲数, 占用数, 容量)
func (pp *PagePool) Stats() (idle, busy, size int) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.idle), len(pp.busy), pp.size
}

// Close 关闭池并销毁所有空闲页
// 占用中的页在归还时销毁;排队者全部收到关闭信号
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil
	}
	pp.closed = true
	idle := pp.idle
	pp.idle = nil
	waiters := pp.waiters
	pp.waiters = nil
	pp.mu.Unlock()

	for _, w := range waiters {
		w.ch <- nil
	}
	for _, h := range idle {
		if err := h.Close(); err != nil {
			utils.Warnf("关闭标签页失败: %v", err)
		}
	}
	utils.Debug("标签页池已关闭")
	return nil
}
