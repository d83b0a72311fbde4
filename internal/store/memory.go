package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/mioym/homeval/internal/models"
)

// MemoryStore 内存条目存储,用于试运行和测试
type MemoryStore struct {
	mu      sync.RWMutex
	items   []models.WorkItem
	updates map[string]models.ValueUpdate // itemID+vendor -> 最后一次回写
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(items []models.WorkItem) *MemoryStore {
	return &MemoryStore{
		items:   items,
		updates: make(map[string]models.ValueUpdate),
	}
}

// FetchDue 返回尚未回写指定厂商估值的条目
func (s *MemoryStore) FetchDue(_ context.Context, vendor string, limit int) ([]models.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []models.WorkItem
	for _, item := range s.items {
		if _, done := s.updates[updateKey(item.ID, vendor)]; done {
			continue
		}
		item.Vendor = vendor
		due = append(due, item)
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	return due, nil
}

// SetVendorValue 记录回写
func (s *MemoryStore) SetVendorValue(_ context.Context, update models.ValueUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.ID == update.ItemID {
			s.updates[updateKey(update.ItemID, update.Vendor)] = update
			return nil
		}
	}
	return fmt.Errorf("回写估值未命中条目: %s", update.ItemID)
}

// Updates 返回已记录的回写数量
func (s *MemoryStore) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.updates)
}

// GetUpdate 按条目和厂商取回写记录
func (s *MemoryStore) GetUpdate(itemID, vendor string) (models.ValueUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.updates[updateKey(itemID, vendor)]
	return u, ok
}

// Close 内存存储无需释放
func (s *MemoryStore) Close(_ context.Context) error { return nil }

func updateKey(itemID, vendor string) string {
	return itemID + "|" + vendor
}
