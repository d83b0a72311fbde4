package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mioym/homeval/internal/models"
	"github.com/mioym/homeval/internal/utils"
)

// MongoConfig Mongo连接配置
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoStore MongoDB条目存储
// 文档结构: {_id, address, values: {<vendor>: {value, fetched_at}}}
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore 连接MongoDB并验证可达性
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("连接MongoDB失败: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB连通性检查失败: %w", err)
	}

	utils.Infof("🗄️  MongoDB已连接: db=%s coll=%s", cfg.Database, cfg.Collection)
	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// FetchDue 拉取指定厂商尚无估值的条目
// 过滤条件: values.<vendor> 字段不存在,且address非空
func (s *MongoStore) FetchDue(ctx context.Context, vendor string, limit int) ([]models.WorkItem, error) {
	filter := bson.M{
		"values." + vendor: bson.M{"$exists": false},
		"address":          bson.M{"$exists": true, "$ne": ""},
	}

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("查询待处理条目失败: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.WorkItem
	for cursor.Next(ctx) {
		var doc struct {
			ID      interface{} `bson:"_id"`
			Address string      `bson:"address"`
		}
		if err := cursor.Decode(&doc); err != nil {
			utils.Warnf("条目解码失败,跳过: %v", err)
			continue
		}
		items = append(items, models.WorkItem{
			ID:      itemIDString(doc.ID),
			Address: doc.Address,
			Vendor:  vendor,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("遍历待处理条目失败: %w", err)
	}

	utils.Infof("📋 拉取到 %d 个待处理条目 (厂商=%s)", len(items), vendor)
	return items, nil
}

// itemIDString 把_id转成可回写还原的字符串形态
// ObjectID取hex, 其他类型按字面量
func itemIDString(id interface{}) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprintf("%v", id)
}

// itemIDFilter 还原_id过滤值
// 合法的24位hex可能来自ObjectID也可能本来就是字符串主键, 两种形态都匹配
func itemIDFilter(itemID string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(itemID); err == nil {
		return bson.M{"$in": bson.A{oid, itemID}}
	}
	return itemID
}

// SetVendorValue 回写单厂商估值
// 使用$set只覆盖本厂商字段,其他厂商的估值保持不动
func (s *MongoStore) SetVendorValue(ctx context.Context, update models.ValueUpdate) error {
	field := "values." + update.Vendor
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": itemIDFilter(update.ItemID)}, bson.M{
		"$set": bson.M{
			field: bson.M{
				"value":      update.Value,
				"fetched_at": update.FetchedAt,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("回写估值失败 [%s]: %w", update.ItemID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("回写估值未命中条目: %s", update.ItemID)
	}
	return nil
}

// Close 断开连接
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
