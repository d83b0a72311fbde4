package store

import (
	"context"
	"testing"
	"time"

	"github.com/mioym/homeval/internal/models"
)

func TestMemoryStoreFetchAndWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore([]models.WorkItem{
		{ID: "a", Address: "123 Main St"},
		{ID: "b", Address: "456 Oak Ave"},
		{ID: "c", Address: "789 Pine Rd"},
	})

	due, err := s.FetchDue(ctx, "estately", 0)
	if err != nil {
		t.Fatalf("FetchDue失败: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("待处理条目数 = %d, 期望 3", len(due))
	}

	err = s.SetVendorValue(ctx, models.ValueUpdate{
		ItemID: "b", Vendor: "estately", Value: 500000, FetchedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("SetVendorValue失败: %v", err)
	}

	// 已回写的条目不再出现在待处理列表
	due, _ = s.FetchDue(ctx, "estately", 0)
	if len(due) != 2 {
		t.Fatalf("回写后待处理条目数 = %d, 期望 2", len(due))
	}

	// 不同厂商互不影响
	due, _ = s.FetchDue(ctx, "zillow", 0)
	if len(due) != 3 {
		t.Fatalf("其他厂商待处理条目数 = %d, 期望 3", len(due))
	}

	u, ok := s.GetUpdate("b", "estately")
	if !ok || u.Value != 500000 {
		t.Errorf("回写记录 = %+v, ok = %v", u, ok)
	}
}

func TestMemoryStoreFetchLimit(t *testing.T) {
	s := NewMemoryStore([]models.WorkItem{
		{ID: "a", Address: "1 A St"},
		{ID: "b", Address: "2 B St"},
		{ID: "c", Address: "3 C St"},
	})
	due, _ := s.FetchDue(context.Background(), "estately", 2)
	if len(due) != 2 {
		t.Fatalf("限量拉取条目数 = %d, 期望 2", len(due))
	}
}

func TestMemoryStoreUnknownItem(t *testing.T) {
	s := NewMemoryStore(nil)
	err := s.SetVendorValue(context.Background(), models.ValueUpdate{ItemID: "ghost", Vendor: "estately"})
	if err == nil {
		t.Fatal("未知条目回写应返回错误")
	}
}
