package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mioym/homeval/internal/models"
	"github.com/mioym/homeval/internal/utils"
)

// dedupEntry 去重缓存条目
type dedupEntry struct {
	Key     string    `json:"key"`
	AddedAt time.Time `json:"added_at"`
}

// DedupCache 近期已处理地址的TTL去重缓存
// 键为归一化地址;容量超限时逐出最旧条目
type DedupCache struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	order    []string // 插入顺序,用于容量逐出
	ttl      time.Duration
	capacity int
	enabled  bool

	// 注入时钟,测试控制时间
	now func() time.Time
}

// NewDedupCache 创建去重缓存
func NewDedupCache(cfg models.DedupConfig) *DedupCache {
	return &DedupCache{
		entries:  make(map[string]time.Time),
		ttl:      time.Duration(cfg.TTLMinutes) * time.Minute,
		capacity: cfg.Capacity,
		enabled:  cfg.Enabled,
		now:      time.Now,
	}
}

// Seen 检查地址是否在TTL窗口内已处理
// 过期条目在检查时惰性清除
func (d *DedupCache) Seen(address string) bool {
	if !d.enabled {
		return false
	}
	key := NormalizeAddress(address)

	d.mu.Lock()
	defer d.mu.Unlock()

	addedAt, ok := d.entries[key]
	if !ok {
		return false
	}
	if d.now().Sub(addedAt) > d.ttl {
		delete(d.entries, key)
		return false
	}
	return true
}

// Remember 记录地址为已处理
// 容量超限时逐出最旧条目(各一条)
func (d *DedupCache) Remember(address string) {
	if !d.enabled {
		return
	}
	key := NormalizeAddress(address)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[key]; !exists {
		for len(d.entries) >= d.capacity && len(d.order) > 0 {
			d.evictOldestLocked()
		}
		d.order = append(d.order, key)
	}
	d.entries[key] = d.now()
}

// evictOldestLocked 逐出插入最早且仍存活的条目,调用方须持锁
func (d *DedupCache) evictOldestLocked() {
	for len(d.order) > 0 {
		oldest := d.order[0]
		d.order = d.order[1:]
		if _, ok := d.entries[oldest]; ok {
			delete(d.entries, oldest)
			return
		}
		// 已被TTL清除,继续找下一个
	}
}

// Size 当前条目数
func (d *DedupCache) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// SaveTo 落盘缓存快照,跨运行保留去重记忆
// 过期条目不写入
func (d *DedupCache) SaveTo(path string) error {
	if path == "" {
		return nil
	}

	d.mu.Lock()
	snapshot := make([]dedupEntry, 0, len(d.entries))
	now := d.now()
	for key, addedAt := range d.entries {
		if now.Sub(addedAt) <= d.ttl {
			snapshot = append(snapshot, dedupEntry{Key: key, AddedAt: addedAt})
		}
	}
	d.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化去重快照失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建快照目录失败: %w", err)
	}

	// 先写临时文件再rename,崩溃不会留下半截快照
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("写入去重快照失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("落盘去重快照失败: %w", err)
	}

	utils.Debugf("去重快照已保存: %s (%d 条)", path, len(snapshot))
	return nil
}

// LoadFrom 从快照恢复缓存
// 快照不存在不算错误;已过期的条目被丢弃
func (d *DedupCache) LoadFrom(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取去重快照失败: %w", err)
	}

	var snapshot []dedupEntry
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("解析去重快照失败: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	loaded := 0
	for _, e := range snapshot {
		if now.Sub(e.AddedAt) > d.ttl {
			continue
		}
		if _, exists := d.entries[e.Key]; !exists {
			d.order = append(d.order, e.Key)
		}
		d.entries[e.Key] = e.AddedAt
		loaded++
	}

	utils.Infof("去重快照已恢复: %s (%d 条有效)", path, loaded)
	return nil
}
