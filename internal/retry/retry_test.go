package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		BackoffFactor:   2.0,
	}
}

func testRetrier() *Retrier {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewRetrier(fastConfig(), logger)
}

// TestRetrySucceedsAfterTransientFailures 测试瞬时错误重试后成功
func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := testRetrier().Execute(context.Background(), "测试操作", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

// TestNonRetryableFailsImmediately 测试不可重试错误立即失败
func TestNonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	err := testRetrier().Execute(context.Background(), "测试操作", func() error {
		attempts++
		return errors.New("invalid argument")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

// TestExhaustedRetries 测试重试次数耗尽
func TestExhaustedRetries(t *testing.T) {
	attempts := 0
	err := testRetrier().Execute(context.Background(), "测试操作", func() error {
		attempts++
		return errors.New("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

// TestContextCancellationStopsRetry 测试上下文取消中断重试
func TestContextCancellationStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := testRetrier().Execute(ctx, "测试操作", func() error {
		return errors.New("timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

// TestIsRetryableError 测试错误分类
func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryableError(errors.New("request failed with status 429")))
	assert.True(t, IsRetryableError(errors.New("Too Many Requests")))
	assert.True(t, IsRetryableError(errors.New("i/o timeout")))
	assert.True(t, IsRetryableError(errors.New("server overloaded")))

	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(errors.New("invalid private key")))
	assert.False(t, IsRetryableError(errors.New("unauthorized")))
}
