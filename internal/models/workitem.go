package models

import (
	"fmt"
	"strings"
	"time"
)

// WorkItem 估值查询工作项
// 真实数据源在外部存储中,引擎只读写一个窄投影
type WorkItem struct {
	ID      string `json:"id" bson:"_id"`          // 存储中的条目ID
	Address string `json:"address" bson:"address"` // 完整地址文本
	Vendor  string `json:"vendor" bson:"-"`        // 目标估值站点键名
}

// Validate 验证工作项
func (w *WorkItem) Validate() error {
	if strings.TrimSpace(w.Address) == "" {
		return fmt.Errorf("工作项地址为空: id=%s", w.ID)
	}
	if w.Vendor == "" {
		return fmt.Errorf("工作项缺少vendor键: id=%s", w.ID)
	}
	return nil
}

// Chunk 一个worker顺序处理的固定大小工作块
type Chunk struct {
	Index int        `json:"index"` // 块序号(仅用于日志)
	Items []WorkItem `json:"items"` // 按输入顺序处理
}

// ValueUpdate 写回外部存储的窄更新
type ValueUpdate struct {
	ItemID    string    `json:"item_id"`
	Vendor    string    `json:"vendor"`
	Value     float64   `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}
