package proxy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Supplier 端点供给策略
// key为调用方提供的稳定键(如任务分块索引),粘性策略据此保证同键同端点
type Supplier interface {
	Next(key string) Endpoint
}

// RoundRobin 轮转供给器: 无视key,按游标顺序循环发放
type RoundRobin struct {
	mu     sync.Mutex
	pool   *Pool
	cursor int
}

// NewRoundRobin 创建轮转供给器,池不可为空
func NewRoundRobin(p *Pool) *RoundRobin {
	return &RoundRobin{pool: p}
}

// Next 返回下一个端点并推进游标
func (r *RoundRobin) Next(_ string) Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep := r.pool.Endpoints[r.cursor%len(r.pool.Endpoints)]
	r.cursor++
	return ep
}

// Sticky 粘性供给器: 同一key的首次分配走底层轮转,此后固定返回同一端点
// 对携带凭证的端点会在用户名后追加派生会话后缀,
// 使网关把同key的请求钉在同一出口IP上
type Sticky struct {
	mu       sync.Mutex
	inner    *RoundRobin
	assigned map[string]Endpoint
	salt     string
}

// NewSticky 创建粘性供给器,salt参与会话后缀派生(通常为运行ID)
func NewSticky(p *Pool, salt string) *Sticky {
	return &Sticky{
		inner:    NewRoundRobin(p),
		assigned: make(map[string]Endpoint),
		salt:     salt,
	}
}

// Next 返回key绑定的端点,首次调用时完成分配
func (s *Sticky) Next(key string) Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ep, ok := s.assigned[key]; ok {
		return ep
	}

	ep := s.inner.Next(key)
	if ep.HasCredentials() {
		ep.Username = fmt.Sprintf("%s-session-%s", ep.Username, sessionSuffix(s.salt, key))
	}
	s.assigned[key] = ep
	return ep
}

// Reassign 丢弃key的现有绑定,下次Next重新分配
// 轮换器在出口IP被封锁时调用
func (s *Sticky) Reassign(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assigned, key)
}

// sessionSuffix 从salt和key确定性派生8位十六进制会话后缀
func sessionSuffix(salt, key string) string {
	sum := sha256.Sum256([]byte(salt + "|" + key))
	return hex.EncodeToString(sum[:4])
}
