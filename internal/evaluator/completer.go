package evaluator

import (
	"context"
	"fmt"

	"agifund/internal/config"

	"github.com/sirupsen/logrus"
)

// 评审错误类型
const (
	ErrorTypeTransport = "transport"
	ErrorTypeParse     = "parse"
	ErrorTypeMalformed = "malformed"
)

// EvaluationError 评审错误
type EvaluationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap 返回原始错误
func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// NewEvaluationError 创建评审错误
func NewEvaluationError(errorType, message string, err error) *EvaluationError {
	return &EvaluationError{
		Type:    errorType,
		Message: message,
		Err:     err,
	}
}

// Completer 模型补全接口
type Completer interface {
	// Complete 发送提示词并返回模型的文本输出
	Complete(ctx context.Context, prompt string) (string, error)

	// Name 提供方名称
	Name() string
}

// NewCompleter 按配置创建模型客户端
func NewCompleter(ctx context.Context, cfg *config.EvaluatorConfig, logger *logrus.Logger) (Completer, error) {
	switch cfg.Provider {
	case "anthropic", "":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("缺少环境变量AGIFUND_ANTHROPIC_API_KEY")
		}
		return NewAnthropicClient(cfg.AnthropicAPIKey, cfg.Model, logger), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("缺少环境变量AGIFUND_GEMINI_API_KEY")
		}
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model, logger)
	default:
		return nil, fmt.Errorf("未知的模型提供方: %s", cfg.Provider)
	}
}
