package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agifund/internal/retry"

	"github.com/sirupsen/logrus"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram 运营通知发送器
//
// 通知是尽力而为的：失败只重试一次，最终失败只记日志，
// 永远不会让管道失败。未配置令牌或会话ID时所有调用都是空操作。
type Telegram struct {
	baseURL    string
	botToken   string
	chatID     string
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *logrus.Logger
}

// NewTelegram 创建Telegram发送器
func NewTelegram(botToken, chatID string, logger *logrus.Logger) *Telegram {
	return &Telegram{
		baseURL:  telegramAPIBase,
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retrier: retry.NewRetrier(retry.NotifyRetryConfig, logger),
		logger:  logger,
	}
}

// Enabled 是否已配置
func (t *Telegram) Enabled() bool {
	return t.botToken != "" && t.chatID != ""
}

// Notify 发送运营通知（尽力而为）
func (t *Telegram) Notify(ctx context.Context, message string) {
	if !t.Enabled() {
		return
	}

	err := t.retrier.Execute(ctx, "发送Telegram通知", func() error {
		return t.send(ctx, message)
	})
	if err != nil {
		t.logger.Warnf("Telegram通知发送失败: %v", err)
	}
}

// send 调用sendMessage接口
func (t *Telegram) send(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建通知请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送通知失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Telegram API返回状态码%d", resp.StatusCode)
	}
	return nil
}
