// Package store 负责工作条目的读取与估值回写
package store

import (
	"context"

	"github.com/mioym/homeval/internal/models"
)

// Store 条目存储
// FetchDue返回指定厂商尚无估值的条目;SetVendorValue按条目回写单厂商估值
type Store interface {
	FetchDue(ctx context.Context, vendor string, limit int) ([]models.WorkItem, error)
	SetVendorValue(ctx context.Context, update models.ValueUpdate) error
	Close(ctx context.Context) error
}
