package evaluator

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.5-flash"

// GeminiClient Gemini模型客户端
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *logrus.Logger
}

// NewGeminiClient 创建Gemini客户端
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *logrus.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewEvaluationError(ErrorTypeTransport, "创建Gemini客户端失败", err)
	}

	if model == "" {
		model = geminiDefaultModel
	}

	return &GeminiClient{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// Name 提供方名称
func (c *GeminiClient) Name() string {
	return "gemini"
}

// Complete 发送提示词并返回模型输出
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", NewEvaluationError(ErrorTypeTransport, "调用Gemini失败", err)
	}

	text := resp.Text()
	if text == "" {
		return "", NewEvaluationError(ErrorTypeParse, "Gemini响应不含文本内容", nil)
	}

	return text, nil
}
