package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnthropicClient(serverURL string) *AnthropicClient {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	c := NewAnthropicClient("test-key", "", logger)
	c.baseURL = serverURL
	return c
}

// TestAnthropicComplete 测试正常补全
func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, anthropicDefaultModel, req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{
				{"type": "text", "text": "第一段"},
				{"type": "text", "text": "第二段"},
			},
		})
	}))
	defer server.Close()

	c := newTestAnthropicClient(server.URL)
	output, err := c.Complete(context.Background(), "评估这个申请")
	require.NoError(t, err)
	assert.Equal(t, "第一段第二段", output)
}

// TestAnthropicAPIError 测试API错误传播
func TestAnthropicAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "rate_limit_error", "message": "rate limited"},
		})
	}))
	defer server.Close()

	c := newTestAnthropicClient(server.URL)
	_, err := c.Complete(context.Background(), "prompt")
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, ErrorTypeTransport, evalErr.Type)
	assert.Contains(t, err.Error(), "rate limited")
}

// TestAnthropicEmptyContent 测试无文本内容报错
func TestAnthropicEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"content": []map[string]string{}})
	}))
	defer server.Close()

	c := newTestAnthropicClient(server.URL)
	_, err := c.Complete(context.Background(), "prompt")
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, ErrorTypeParse, evalErr.Type)
}
