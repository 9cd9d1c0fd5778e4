package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig 测试默认配置完整且合法
func TestDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
	assert.Equal(t, "0xC2f123B6C04e7950C882DF2C90e9C79ea176C91D", cfg.Treasury.Address)
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", cfg.Chain.USDCAddress)
	assert.Len(t, cfg.Treasury.IgnoredWallets, 2)
	assert.Equal(t, "60s", cfg.Scanner.Interval)
	assert.Equal(t, uint64(100), cfg.Scanner.BlockWindow)
	assert.Equal(t, "0.001", cfg.Scanner.ApplicationFee)
	assert.Equal(t, 100.0, cfg.Funding.MinAmount)
	assert.Equal(t, 1000.0, cfg.Funding.MaxAmount)
	assert.Equal(t, 0.5, cfg.Funding.BuybackFraction)
	assert.Equal(t, 10000, cfg.Storage.ProcessedTxLimit)
	assert.Equal(t, 3000, cfg.API.Port)
	assert.False(t, cfg.Events.Enabled)

	require.NoError(t, cfg.Validate())
}

// TestLoadConfigFromFile 测试YAML文件覆盖默认值
func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
scanner:
  interval: "30s"
funding:
  min_amount: 200
api:
  port: 8080
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "30s", cfg.Scanner.Interval)
	assert.Equal(t, 200.0, cfg.Funding.MinAmount)
	assert.Equal(t, 8080, cfg.API.Port)
	// 未覆盖的项保持默认
	assert.Equal(t, 1000.0, cfg.Funding.MaxAmount)
	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
}

// TestLoadConfigMissingFileUsesDefaults 测试配置文件缺失时用默认值
func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "0xC2f123B6C04e7950C882DF2C90e9C79ea176C91D", cfg.Treasury.Address)
}

// TestSecretsFromEnv 测试密钥只从环境变量注入
func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("AGIFUND_TREASURY_PRIVATE_KEY", "deadbeef")
	t.Setenv("AGIFUND_ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("AGIFUND_TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("AGIFUND_TELEGRAM_CHAT_ID", "12345")

	cfg := GetDefaultConfig()

	assert.Equal(t, "deadbeef", cfg.Treasury.PrivateKey)
	assert.Equal(t, "sk-test", cfg.Evaluator.AnthropicAPIKey)
	assert.Equal(t, "bot-token", cfg.Notify.TelegramBotToken)
	assert.Equal(t, "12345", cfg.Notify.TelegramChatID)
}

// TestValidateRejectsInvalidBand 测试投资额区间校验
func TestValidateRejectsInvalidBand(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Funding.MinAmount = 2000
	cfg.Funding.MaxAmount = 1000

	assert.Error(t, cfg.Validate())
}

// TestValidateRequiresTreasury 测试金库地址必填
func TestValidateRequiresTreasury(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Treasury.Address = ""

	assert.Error(t, cfg.Validate())
}
