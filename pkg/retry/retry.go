package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/perpdesk/goperp/pkg/logger"
)

const (
	// defaultMinDelay 首次重试延迟
	defaultMinDelay = 400 * time.Millisecond
	// defaultMaxDelay 重试延迟上限
	defaultMaxDelay = 5 * time.Second
	// defaultMaxAttempts 有界重试的默认最大尝试次数
	defaultMaxAttempts = 5
)

// StatusError HTTP 状态错误（5xx/429 视为可重试）
type StatusError struct {
	Code   int    // HTTP 状态码
	Status string // 状态描述
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Status)
}

// IsRetryable 判断错误是否属于可重试类型
// 可重试：网络错误、超时、5xx/429 状态错误
// 不可重试：取消、其他业务错误
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == 429
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Policy 重试策略：指数退避，无抖动
type Policy struct {
	MinDelay    time.Duration // 首次重试延迟（默认 400ms）
	MaxDelay    time.Duration // 重试延迟上限（默认 5s）
	MaxAttempts int           // 最大尝试次数（仅 Do 使用，默认 5）

	// Retryable 可重试判断（默认 IsRetryable）
	Retryable func(error) bool
	// OnRetry 每次重试前回调（测试用，可选）
	OnRetry func(attempt int, err error)
}

// DefaultPolicy 默认重试策略
func DefaultPolicy() Policy {
	return Policy{
		MinDelay:    defaultMinDelay,
		MaxDelay:    defaultMaxDelay,
		MaxAttempts: defaultMaxAttempts,
	}
}

// delay 计算第 attempt 次失败后的退避时间（attempt 从 1 开始）
func (p Policy) delay(attempt int) time.Duration {
	min := p.MinDelay
	if min <= 0 {
		min = defaultMinDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = defaultMaxDelay
	}
	d := min
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

// sleep 退避等待，取消时立即返回 ctx 错误
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do 有界重试：最多尝试 MaxAttempts 次，超限后返回最后一次错误
// 用于一次性读取（如历史价格），调用方最终必须感知失败
func (p Policy) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}
		logger.Warnf("[retry] %s 第 %d/%d 次失败: %v", name, attempt, maxAttempts, lastErr)
		if err := sleep(ctx, p.delay(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// Forever 无界重试：失败只记录日志并继续，直到成功或取消
// 用于轮询循环内部，单次失败绝不终止循环
func (p Policy) Forever(ctx context.Context, name string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		logger.Warnf("[retry] %s 第 %d 次失败: %v", name, attempt, err)
		if serr := sleep(ctx, p.delay(attempt)); serr != nil {
			return serr
		}
	}
}

// DoValue 有界重试的泛型版本，返回成功值
func DoValue[T any](ctx context.Context, p Policy, name string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, name, func(ctx context.Context) error {
		var ferr error
		result, ferr = fn(ctx)
		return ferr
	})
	return result, err
}
