package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
//
// 配置集中存放在一张kv表中，按组件分组。适合多实例部署时
// 共享一份运行配置，本地开发仍走YAML文件。
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置（未覆盖的项保持默认值）
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	rows, err := dc.DB.Query(`SELECT section, config_key, config_value FROM fund_config WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("查询配置表失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var section, key, value string
		if err := rows.Scan(&section, &key, &value); err != nil {
			return nil, err
		}
		dc.applyEntry(config, section, key, value)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEntry 应用单条配置项
func (dc *DatabaseConfig) applyEntry(config *Config, section, key, value string) {
	switch section {
	case "chain":
		switch key {
		case "rpc_url":
			config.Chain.RPCURL = value
		case "subgraph_url":
			config.Chain.SubgraphURL = value
		case "blockscout_api":
			config.Chain.BlockscoutAPI = value
		case "coingecko_api":
			config.Chain.CoingeckoAPI = value
		case "usdc_address":
			config.Chain.USDCAddress = value
		case "weth_address":
			config.Chain.WETHAddress = value
		case "agi_token":
			config.Chain.AGIToken = value
		case "chain_id":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				config.Chain.ChainID = v
			}
		}
	case "treasury":
		switch key {
		case "address":
			config.Treasury.Address = value
		case "ignored_wallets":
			var wallets []string
			if err := json.Unmarshal([]byte(value), &wallets); err == nil {
				config.Treasury.IgnoredWallets = wallets
			}
		}
	case "scanner":
		switch key {
		case "interval":
			config.Scanner.Interval = value
		case "block_window":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				config.Scanner.BlockWindow = v
			}
		case "application_fee":
			config.Scanner.ApplicationFee = value
		case "subgraph_limit":
			if v, err := strconv.Atoi(value); err == nil {
				config.Scanner.SubgraphLimit = v
			}
		}
	case "evaluator":
		switch key {
		case "provider":
			config.Evaluator.Provider = value
		case "model":
			config.Evaluator.Model = value
		case "timeout":
			config.Evaluator.Timeout = value
		}
	case "funding":
		switch key {
		case "min_amount":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				config.Funding.MinAmount = v
			}
		case "max_amount":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				config.Funding.MaxAmount = v
			}
		case "quote_buffer":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				config.Funding.QuoteBuffer = v
			}
		case "buyback_fraction":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				config.Funding.BuybackFraction = v
			}
		case "confirm_timeout":
			config.Funding.ConfirmTimeout = value
		}
	case "events":
		switch key {
		case "enabled":
			config.Events.Enabled = strings.ToLower(value) == "true"
		case "brokers":
			var brokers []string
			if err := json.Unmarshal([]byte(value), &brokers); err == nil {
				config.Events.Brokers = brokers
			}
		case "topics":
			var topics map[string]string
			if err := json.Unmarshal([]byte(value), &topics); err == nil {
				config.Events.Topics = topics
			}
		}
	case "storage":
		switch key {
		case "data_dir":
			config.Storage.DataDir = value
		case "processed_tx_limit":
			if v, err := strconv.Atoi(value); err == nil {
				config.Storage.ProcessedTxLimit = v
			}
		}
	case "api":
		if key == "port" {
			if v, err := strconv.Atoi(value); err == nil {
				config.API.Port = v
			}
		}
	case "notify":
		if key == "telegram_chat_id" {
			config.Notify.TelegramChatID = value
		}
	default:
		dc.logger.Debugf("忽略未知配置项: %s.%s", section, key)
	}
}

// UpdateConfig 更新配置项
func (dc *DatabaseConfig) UpdateConfig(section, key, value string) error {
	query := `
		INSERT INTO fund_config (section, config_key, config_value, is_active, updated_at)
		VALUES ($1, $2, $3, true, CURRENT_TIMESTAMP)
		ON CONFLICT (section, config_key)
		DO UPDATE SET config_value = $3, updated_at = CURRENT_TIMESTAMP
	`
	_, err := dc.DB.Exec(query, section, key, value)
	return err
}

// GetConfig 获取单个配置值
func (dc *DatabaseConfig) GetConfig(section, key string) (string, error) {
	var value string
	err := dc.DB.QueryRow(
		`SELECT config_value FROM fund_config WHERE section = $1 AND config_key = $2 AND is_active = true`,
		section, key,
	).Scan(&value)
	return value, err
}

// ListConfigs 列出某组件的所有配置
func (dc *DatabaseConfig) ListConfigs(section string) (map[string]string, error) {
	rows, err := dc.DB.Query(
		`SELECT config_key, config_value FROM fund_config WHERE section = $1 AND is_active = true`,
		section,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		configs[key] = value
	}

	return configs, rows.Err()
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
