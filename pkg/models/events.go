package models

import "math/big"

// RevenueCurrency 收入分成的币种
type RevenueCurrency string

const (
	RevenueCurrencyETH  RevenueCurrency = "ETH"
	RevenueCurrencyUSDC RevenueCurrency = "USDC"
)

// RevenueEvent 来自已投资代理钱包的收入分成事件
type RevenueEvent struct {
	TxHash    string          `json:"txHash"`
	From      string          `json:"from"`
	Amount    *big.Int        `json:"amount"`
	Currency  RevenueCurrency `json:"currency"`
	Timestamp int64           `json:"timestamp"`
}

// 管道事件类型
const (
	EventApplicationDiscovered = "application_discovered"
	EventApplicationFunded     = "application_funded"
	EventApplicationRejected   = "application_rejected"
	EventApplicationNeedsInfo  = "application_needs_info"
	EventApplicationErrored    = "application_errored"
	EventRevenueReceived       = "revenue_received"
)

// PipelineEvent 发布到Kafka的管道事件
type PipelineEvent struct {
	Type      string      `json:"type"`
	TxHash    string      `json:"txHash"`
	AgentName string      `json:"agentName,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}
