package core

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mioym/homeval/internal/models"
)

func newTestDedup(ttlMinutes, capacity int) (*DedupCache, *time.Time) {
	d := NewDedupCache(models.DedupConfig{
		Enabled:    true,
		TTLMinutes: ttlMinutes,
		Capacity:   capacity,
	})
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }
	return d, &clock
}

func TestDedupCacheSeenAndRemember(t *testing.T) {
	d, _ := newTestDedup(60, 100)

	if d.Seen("123 Main St") {
		t.Fatal("未记录的地址不应命中")
	}
	d.Remember("123 Main St")
	if !d.Seen("123 Main St") {
		t.Fatal("已记录的地址应命中")
	}
	// 等价写法共享同一个归一化键
	if !d.Seen("123 MAIN STREET") {
		t.Fatal("等价写法的地址应命中")
	}
}

func TestDedupCacheTTLExpiry(t *testing.T) {
	d, clock := newTestDedup(30, 100)

	d.Remember("456 Oak Ave")
	*clock = clock.Add(29 * time.Minute)
	if !d.Seen("456 Oak Ave") {
		t.Fatal("TTL窗口内的地址应命中")
	}

	*clock = clock.Add(2 * time.Minute)
	if d.Seen("456 Oak Ave") {
		t.Fatal("TTL过期的地址不应命中")
	}
	// 过期条目被惰性清除
	if d.Size() != 0 {
		t.Fatalf("过期清除后条目数 = %d, 期望 0", d.Size())
	}
}

func TestDedupCacheCapacityEviction(t *testing.T) {
	d, _ := newTestDedup(60, 2)

	d.Remember("1 A St")
	d.Remember("2 B St")
	d.Remember("3 C St") // 触发逐出最旧

	if d.Seen("1 A St") {
		t.Fatal("最旧条目应被逐出")
	}
	if !d.Seen("2 B St") || !d.Seen("3 C St") {
		t.Fatal("较新条目应保留")
	}
	if d.Size() != 2 {
		t.Fatalf("条目数 = %d, 期望 2", d.Size())
	}
}

func TestDedupCacheDisabled(t *testing.T) {
	d := NewDedupCache(models.DedupConfig{Enabled: false})

	d.Remember("123 Main St")
	if d.Seen("123 Main St") {
		t.Fatal("禁用状态下不应命中")
	}
	if d.Size() != 0 {
		t.Fatal("禁用状态下不应记录条目")
	}
}

func TestDedupCacheCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dedup.json")

	d, clock := newTestDedup(60, 100)
	d.Remember("123 Main St")
	d.Remember("456 Oak Ave")
	// 这条在落盘前过期,不应写入快照
	*clock = clock.Add(-2 * time.Hour)
	d.Remember("789 Stale Rd")
	*clock = clock.Add(2 * time.Hour)

	if err := d.SaveTo(path); err != nil {
		t.Fatalf("快照落盘失败: %v", err)
	}

	restored, _ := newTestDedup(60, 100)
	restored.now = d.now
	if err := restored.LoadFrom(path); err != nil {
		t.Fatalf("快照加载失败: %v", err)
	}
	if !restored.Seen("123 Main St") || !restored.Seen("456 Oak Ave") {
		t.Fatal("快照恢复后存活条目应命中")
	}
	if restored.Seen("789 Stale Rd") {
		t.Fatal("过期条目不应进入快照")
	}
}

func TestDedupCacheLoadMissingFile(t *testing.T) {
	d, _ := newTestDedup(60, 100)
	if err := d.LoadFrom(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("缺失快照文件应视为空缓存: %v", err)
	}
	if d.Size() != 0 {
		t.Fatalf("条目数 = %d, 期望 0", d.Size())
	}
}
