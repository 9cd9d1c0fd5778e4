package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	anthropicAPIURL       = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
	anthropicDefaultModel = "claude-sonnet-4-20250514"
	anthropicMaxTokens    = 4096
)

// AnthropicClient Anthropic messages API客户端
type AnthropicClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewAnthropicClient 创建Anthropic客户端
func NewAnthropicClient(apiKey, model string, logger *logrus.Logger) *AnthropicClient {
	if model == "" {
		model = anthropicDefaultModel
	}
	return &AnthropicClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: anthropicAPIURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// Name 提供方名称
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete 发送提示词并返回模型输出
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", NewEvaluationError(ErrorTypeTransport, "序列化请求失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", NewEvaluationError(ErrorTypeTransport, "构建请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", NewEvaluationError(ErrorTypeTransport, "调用模型API失败", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewEvaluationError(ErrorTypeTransport, "读取响应失败", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", NewEvaluationError(ErrorTypeParse, "解析响应失败", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("模型API返回状态码%d", resp.StatusCode)
		if parsed.Error != nil {
			msg = fmt.Sprintf("%s: %s", msg, parsed.Error.Message)
		}
		return "", NewEvaluationError(ErrorTypeTransport, msg, nil)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", NewEvaluationError(ErrorTypeParse, "模型响应不含文本内容", nil)
	}

	return sb.String(), nil
}
