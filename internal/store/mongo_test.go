package store

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestItemIDObjectIDRoundTrip(t *testing.T) {
	oid := primitive.NewObjectID()

	// 拉取时转成hex
	id := itemIDString(oid)
	if id != oid.Hex() {
		t.Fatalf("ObjectID应转为hex: 期望 %s, 得到 %s", oid.Hex(), id)
	}

	// 回写时必须还原出原始ObjectID, 否则过滤器永不命中文档
	filter := itemIDFilter(id)
	in, ok := filter.(bson.M)
	if !ok {
		t.Fatalf("hex形态的ID应产生$in过滤器, 得到 %T", filter)
	}
	candidates, ok := in["$in"].(bson.A)
	if !ok {
		t.Fatalf("$in值类型错误: %T", in["$in"])
	}

	foundOID := false
	foundRaw := false
	for _, c := range candidates {
		if got, ok := c.(primitive.ObjectID); ok && got == oid {
			foundOID = true
		}
		if got, ok := c.(string); ok && got == id {
			foundRaw = true
		}
	}
	if !foundOID {
		t.Error("过滤器缺少ObjectID候选, 回写会恒不命中ObjectID主键文档")
	}
	if !foundRaw {
		t.Error("过滤器缺少原始字符串候选, 24位hex字符串主键文档会漏更新")
	}
}

func TestItemIDStringKeyPassthrough(t *testing.T) {
	cases := []struct {
		name string
		id   interface{}
		want string
	}{
		{"字符串主键", "item-42", "item-42"},
		{"整数主键", int64(7), "7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := itemIDString(tc.id)
			if got != tc.want {
				t.Errorf("期望 %q, 得到 %q", tc.want, got)
			}
		})
	}

	// 非hex形态直接按原值过滤
	if filter := itemIDFilter("item-42"); filter != "item-42" {
		t.Errorf("非hex主键应原样过滤: %v", filter)
	}
}
