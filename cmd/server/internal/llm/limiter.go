package llm

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Limiter 限制进程内同时进行的 LLM 调用数量
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter 创建并发上限为 n 的限流器，n <= 0 表示不限制
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		return &Limiter{}
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire 阻塞直到获得一个槽位或 ctx 结束
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.sem == nil {
		return ctx.Err()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire LLM slot: %w", err)
	}
	return nil
}

// Release 释放槽位，必须与成功的 Acquire 成对调用
func (l *Limiter) Release() {
	if l == nil || l.sem == nil {
		return
	}
	l.sem.Release(1)
}
