package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/sirupsen/logrus"
)

const twitterTweetURL = "https://api.twitter.com/2/tweets"

// Twitter 公开播报发送器
//
// 用OAuth1用户上下文发推。凭证不全时所有调用返回nil，
// 播报失败由调用方决定是否记日志，不影响管道。
type Twitter struct {
	tweetURL   string
	httpClient *http.Client
	enabled    bool
	logger     *logrus.Logger
}

// NewTwitter 创建Twitter发送器
func NewTwitter(apiKey, apiSecret, accessToken, accessSecret string, logger *logrus.Logger) *Twitter {
	t := &Twitter{
		tweetURL: twitterTweetURL,
		logger:   logger,
	}

	if apiKey == "" || apiSecret == "" || accessToken == "" || accessSecret == "" {
		logger.Info("Twitter凭证未配置，公开播报已禁用")
		return t
	}

	config := oauth1.NewConfig(apiKey, apiSecret)
	token := oauth1.NewToken(accessToken, accessSecret)
	t.httpClient = config.Client(oauth1.NoContext, token)
	t.httpClient.Timeout = 15 * time.Second
	t.enabled = true
	return t
}

// Enabled 是否已配置
func (t *Twitter) Enabled() bool {
	return t.enabled
}

// Post 发布一条推文
func (t *Twitter) Post(ctx context.Context, text string) error {
	if !t.enabled {
		return nil
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("序列化推文失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tweetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建推文请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送推文失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Twitter API返回状态码%d", resp.StatusCode)
	}

	t.logger.Debugf("推文已发布: %s", text)
	return nil
}
