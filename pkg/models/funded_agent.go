package models

// AgentStatus 已投资代理的状态
type AgentStatus string

const (
	AgentStatusActive      AgentStatus = "active"
	AgentStatusDelinquent  AgentStatus = "delinquent"
	AgentStatusBlacklisted AgentStatus = "blacklisted"
)

// FundedAgent 投资完成后的持久化记录
//
// ID为原始申请交易哈希。创建后仅TotalRevenuePaid和LastPayment
// 会被收入检测路径更新，其余字段不可变。
type FundedAgent struct {
	ID                  string      `json:"id"`
	Wallet              string      `json:"wallet"`
	Name                string      `json:"name"`
	Twitter             string      `json:"twitter"`
	FundedAmount        float64     `json:"fundedAmount"`
	FundedAt            int64       `json:"fundedAt"`
	RevenueSharePercent float64     `json:"revenueSharePercent"`
	TotalRevenuePaid    float64     `json:"totalRevenuePaid"`
	LastPayment         int64       `json:"lastPayment,omitempty"`
	Status              AgentStatus `json:"status"`
}

// RejectionRecord 拒绝申请的持久化记录（一次写入）
type RejectionRecord struct {
	ApplicationID string   `json:"applicationId"`
	AgentName     string   `json:"agent"`
	TwitterHandle string   `json:"twitter"`
	Reason        string   `json:"reason"`
	Concerns      []string `json:"concerns"`
	Timestamp     int64    `json:"timestamp"`
}
