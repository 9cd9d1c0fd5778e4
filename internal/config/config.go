package config

import (
	"fmt"
	"os"
	"strings"

	"agifund/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 主配置
type Config struct {
	Chain     *ChainConfig       `mapstructure:"chain"`
	Treasury  *TreasuryConfig    `mapstructure:"treasury"`
	Scanner   *ScannerConfig     `mapstructure:"scanner"`
	Evaluator *EvaluatorConfig   `mapstructure:"evaluator"`
	Funding   *FundingConfig     `mapstructure:"funding"`
	Storage   *StorageConfig     `mapstructure:"storage"`
	Events    *EventsConfig      `mapstructure:"events"`
	Notify    *NotifyConfig      `mapstructure:"notify"`
	API       *APIConfig         `mapstructure:"api"`
	Logging   *logging.LogConfig `mapstructure:"logging"`
}

// ChainConfig 链配置
type ChainConfig struct {
	ChainID       int64  `mapstructure:"chain_id"`
	RPCURL        string `mapstructure:"rpc_url"`
	SubgraphURL   string `mapstructure:"subgraph_url"`
	BlockscoutAPI string `mapstructure:"blockscout_api"`
	CoingeckoAPI  string `mapstructure:"coingecko_api"`
	USDCAddress   string `mapstructure:"usdc_address"`
	WETHAddress   string `mapstructure:"weth_address"`
	AGIToken      string `mapstructure:"agi_token"`
}

// TreasuryConfig 金库钱包配置
type TreasuryConfig struct {
	Address        string   `mapstructure:"address"`
	IgnoredWallets []string `mapstructure:"ignored_wallets"`
	// 私钥仅从环境变量AGIFUND_TREASURY_PRIVATE_KEY读取，不进配置文件
	PrivateKey string `mapstructure:"-"`
}

// ScannerConfig 扫描器配置
type ScannerConfig struct {
	Interval       string `mapstructure:"interval"`
	BlockWindow    uint64 `mapstructure:"block_window"`
	ApplicationFee string `mapstructure:"application_fee"` // 以原生币计价，如"0.001"
	SubgraphLimit  int    `mapstructure:"subgraph_limit"`
}

// EvaluatorConfig 评审器配置
type EvaluatorConfig struct {
	Provider string `mapstructure:"provider"` // anthropic 或 gemini
	Model    string `mapstructure:"model"`
	Timeout  string `mapstructure:"timeout"`
	// API密钥仅从环境变量读取
	AnthropicAPIKey string `mapstructure:"-"`
	GeminiAPIKey    string `mapstructure:"-"`
}

// FundingConfig 投资配置
type FundingConfig struct {
	MinAmount       float64 `mapstructure:"min_amount"` // USDC
	MaxAmount       float64 `mapstructure:"max_amount"` // USDC
	ConfirmTimeout  string  `mapstructure:"confirm_timeout"`
	QuoteBuffer     float64 `mapstructure:"quote_buffer"`     // 兑换报价安全系数
	BuybackFraction float64 `mapstructure:"buyback_fraction"` // 收入中用于回购的比例
}

// StorageConfig 存储配置
type StorageConfig struct {
	DataDir          string `mapstructure:"data_dir"`
	ProcessedTxLimit int    `mapstructure:"processed_tx_limit"`
}

// EventsConfig 管道事件输出配置（Kafka，可选）
type EventsConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	TelegramChatID string `mapstructure:"telegram_chat_id"`
	// 机器人令牌与Twitter凭证仅从环境变量读取
	TelegramBotToken    string `mapstructure:"-"`
	TwitterAPIKey       string `mapstructure:"-"`
	TwitterAPISecret    string `mapstructure:"-"`
	TwitterAccessToken  string `mapstructure:"-"`
	TwitterAccessSecret string `mapstructure:"-"`
}

// APIConfig API服务配置
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	// 首先尝试从环境变量获取数据库配置
	dbDSN := os.Getenv("AGIFUND_DB_DSN")
	if dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接配置数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		applySecrets(config)
		logger.Info("已从数据库加载配置")
		return config, nil
	}

	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("AGIFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值继续
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				if _, statErr := os.Stat(configPath); statErr == nil {
					return nil, fmt.Errorf("读取配置文件失败: %w", err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applySecrets(&config)
	return &config, nil
}

// applySecrets 从环境变量注入密钥类配置
func applySecrets(config *Config) {
	if config.Treasury == nil {
		config.Treasury = &TreasuryConfig{}
	}
	config.Treasury.PrivateKey = os.Getenv("AGIFUND_TREASURY_PRIVATE_KEY")

	if config.Evaluator == nil {
		config.Evaluator = &EvaluatorConfig{}
	}
	config.Evaluator.AnthropicAPIKey = os.Getenv("AGIFUND_ANTHROPIC_API_KEY")
	config.Evaluator.GeminiAPIKey = os.Getenv("AGIFUND_GEMINI_API_KEY")

	if config.Notify == nil {
		config.Notify = &NotifyConfig{}
	}
	config.Notify.TelegramBotToken = os.Getenv("AGIFUND_TELEGRAM_BOT_TOKEN")
	if chatID := os.Getenv("AGIFUND_TELEGRAM_CHAT_ID"); chatID != "" {
		config.Notify.TelegramChatID = chatID
	}
	config.Notify.TwitterAPIKey = os.Getenv("AGIFUND_TWITTER_API_KEY")
	config.Notify.TwitterAPISecret = os.Getenv("AGIFUND_TWITTER_API_SECRET")
	config.Notify.TwitterAccessToken = os.Getenv("AGIFUND_TWITTER_ACCESS_TOKEN")
	config.Notify.TwitterAccessSecret = os.Getenv("AGIFUND_TWITTER_ACCESS_SECRET")
}

// Validate 校验启动必需的配置项
func (c *Config) Validate() error {
	if c.Treasury == nil || c.Treasury.Address == "" {
		return fmt.Errorf("缺少金库地址配置 treasury.address")
	}
	if c.Chain == nil || c.Chain.RPCURL == "" {
		return fmt.Errorf("缺少RPC节点配置 chain.rpc_url")
	}
	if c.Funding != nil && c.Funding.MinAmount > c.Funding.MaxAmount {
		return fmt.Errorf("投资额区间无效: min=%.2f > max=%.2f", c.Funding.MinAmount, c.Funding.MaxAmount)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("chain.chain_id", 8453)
	v.SetDefault("chain.rpc_url", "https://mainnet.base.org")
	v.SetDefault("chain.subgraph_url", "https://api.studio.thegraph.com/query/1742294/agi-holdings/v1.0.0")
	v.SetDefault("chain.blockscout_api", "https://base.blockscout.com/api/v2")
	v.SetDefault("chain.coingecko_api", "https://api.coingecko.com/api/v3")
	v.SetDefault("chain.usdc_address", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	v.SetDefault("chain.weth_address", "0x4200000000000000000000000000000000000006")
	v.SetDefault("chain.agi_token", "0xA301f1d1960eD03B42CC0093324595f4b0b11ba3")

	v.SetDefault("treasury.address", "0xC2f123B6C04e7950C882DF2C90e9C79ea176C91D")
	v.SetDefault("treasury.ignored_wallets", []string{
		"0x6e58ab81a36ce48250a6162d2a28ad852d48397d",
		"0xF9b19141aA38C77086468e95CA435332b3e51e77",
	})

	v.SetDefault("scanner.interval", "60s")
	v.SetDefault("scanner.block_window", 100)
	v.SetDefault("scanner.application_fee", "0.001")
	v.SetDefault("scanner.subgraph_limit", 50)

	v.SetDefault("evaluator.provider", "anthropic")
	v.SetDefault("evaluator.model", "")
	v.SetDefault("evaluator.timeout", "5m")

	v.SetDefault("funding.min_amount", 100)
	v.SetDefault("funding.max_amount", 1000)
	v.SetDefault("funding.confirm_timeout", "3m")
	v.SetDefault("funding.quote_buffer", 1.10)
	v.SetDefault("funding.buyback_fraction", 0.5)

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.processed_tx_limit", 10000)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topics", map[string]string{
		"applications": "agifund_applications",
		"fundings":     "agifund_fundings",
		"rejections":   "agifund_rejections",
		"revenue":      "agifund_revenue",
	})

	v.SetDefault("notify.telegram_chat_id", "")

	v.SetDefault("api.port", 3000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		// 默认值解析失败属于程序错误
		panic(fmt.Sprintf("默认配置解析失败: %v", err))
	}
	applySecrets(&config)
	return &config
}
