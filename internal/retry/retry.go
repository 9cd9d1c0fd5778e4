package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts         int           `json:"max_attempts"`         // 最大重试次数
	InitialInterval     time.Duration `json:"initial_interval"`     // 初始重试间隔
	MaxInterval         time.Duration `json:"max_interval"`         // 最大重试间隔
	BackoffFactor       float64       `json:"backoff_factor"`       // 退避因子
	RandomizationFactor float64       `json:"randomization_factor"` // 随机化因子
}

// DefaultRetryConfig 默认重试配置
var DefaultRetryConfig = &RetryConfig{
	MaxAttempts:         3,
	InitialInterval:     500 * time.Millisecond,
	MaxInterval:         10 * time.Second,
	BackoffFactor:       2.0,
	RandomizationFactor: 0.2,
}

// NotifyRetryConfig 通知发送重试配置（只重试一次，尽快放弃）
var NotifyRetryConfig = &RetryConfig{
	MaxAttempts:         2,
	InitialInterval:     1 * time.Second,
	MaxInterval:         5 * time.Second,
	BackoffFactor:       2.0,
	RandomizationFactor: 0.1,
}

// ExecuteFunc 重试执行函数
type ExecuteFunc func() error

// Retrier 重试器
type Retrier struct {
	config *RetryConfig
	logger *logrus.Logger
}

// NewRetrier 创建重试器
func NewRetrier(config *RetryConfig, logger *logrus.Logger) *Retrier {
	if config == nil {
		config = DefaultRetryConfig
	}
	return &Retrier{
		config: config,
		logger: logger,
	}
}

// Execute 执行带重试的操作
func (r *Retrier) Execute(ctx context.Context, operation string, fn ExecuteFunc) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Infof("操作 '%s' 第%d次尝试成功", operation, attempt)
			}
			return nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			r.logger.Debugf("操作 '%s' 失败且不可重试: %v", operation, err)
			return err
		}

		if attempt < r.config.MaxAttempts {
			delay := r.calculateDelay(attempt)
			r.logger.Warnf("操作 '%s' 第%d次尝试失败，%v后重试: %v", operation, attempt, delay, err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("操作 '%s' 重试%d次后仍然失败: %w", operation, r.config.MaxAttempts, lastErr)
}

// calculateDelay 计算重试延迟（指数退避+抖动）
func (r *Retrier) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialInterval) * math.Pow(r.config.BackoffFactor, float64(attempt-1))

	if r.config.RandomizationFactor > 0 {
		jitter := delay * r.config.RandomizationFactor * (rand.Float64()*2 - 1)
		delay += jitter
	}

	if delay > float64(r.config.MaxInterval) {
		delay = float64(r.config.MaxInterval)
	}
	if delay < 0 {
		delay = float64(r.config.InitialInterval)
	}

	return time.Duration(delay)
}

// IsRetryableError 判断错误是否值得重试
//
// 覆盖本系统涉及的外部依赖：RPC节点、subgraph、Blockscout、
// GitHub、Telegram和模型API的常见瞬时错误。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"bad gateway",
		"gateway timeout",
		"overloaded",
		"429",
		"502",
		"503",
	}

	for _, s := range transientErrors {
		if strings.Contains(errStr, s) {
			return true
		}
	}

	return false
}
