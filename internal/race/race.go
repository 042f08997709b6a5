// Package race 让操作与计时器竞速，返回先完成的一方。
// 计时器获胜时操作不会被取消：它在脱离取消的 context 上继续运行，
// 缓存写入等副作用照常完成，迟到的结果被丢弃。
package race

import (
	"context"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
)

// ErrTimeout 表示计时器先于操作结束。
var ErrTimeout = platformerrors.New(platformerrors.CodeTimeout, "operation timed out")

type outcome[T any] struct {
	value T
	err   error
}

// WithTimeout 运行 op 并返回其结果；timeout 先到时返回 ErrTimeout。
// timeout <= 0 时直接同步执行。传给 op 的 context 保留 ctx 的值但不继承取消；
// ctx 取消只结束等待并返回 ctx.Err()，op 仍在后台运行。
func WithTimeout[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	detached := context.WithoutCancel(ctx)
	if timeout <= 0 {
		return op(detached)
	}

	// 带缓冲，被放弃的 goroutine 总能写入并退出
	done := make(chan outcome[T], 1)
	go func() {
		value, err := op(detached)
		done <- outcome[T]{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// IsTimeout reports whether err came from an expired race.
func IsTimeout(err error) bool {
	return platformerrors.GetCode(err) == platformerrors.CodeTimeout
}
