package models

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ApplicationData 申请交易calldata中携带的JSON载荷
type ApplicationData struct {
	Agent        string `json:"agent"`
	Wallet       string `json:"wallet"`
	Description  string `json:"description"`
	RevenueModel string `json:"revenue_model"`
	Twitter      string `json:"twitter"`
	GitHub       string `json:"github,omitempty"`
	Website      string `json:"website,omitempty"`
}

// Application 融资申请（由Scanner从链上交易解码得到，创建后不可变）
type Application struct {
	TxHash          string          `json:"txHash"`
	BlockNumber     uint64          `json:"blockNumber"`
	Timestamp       int64           `json:"timestamp"`
	ApplicantWallet string          `json:"applicantWallet"`
	Data            ApplicationData `json:"data"`
}

// Validate 校验必填字段是否齐全
func (d *ApplicationData) Validate() error {
	var missing []string
	if d.Agent == "" {
		missing = append(missing, "agent")
	}
	if d.Wallet == "" {
		missing = append(missing, "wallet")
	}
	if d.Description == "" {
		missing = append(missing, "description")
	}
	if d.RevenueModel == "" {
		missing = append(missing, "revenue_model")
	}
	if d.Twitter == "" {
		missing = append(missing, "twitter")
	}
	if len(missing) > 0 {
		return fmt.Errorf("申请载荷缺少必填字段: %s", strings.Join(missing, ", "))
	}
	// 收款钱包后续直接用于链上转账，格式不合法的地址在入口处拒绝
	if !common.IsHexAddress(d.Wallet) {
		return fmt.Errorf("收款钱包不是合法地址: %s", d.Wallet)
	}
	return nil
}

// TwitterHandle 返回规范化的Twitter句柄（统一带@前缀）
func (d *ApplicationData) TwitterHandle() string {
	h := strings.TrimSpace(d.Twitter)
	if h == "" {
		return ""
	}
	if !strings.HasPrefix(h, "@") {
		h = "@" + h
	}
	return h
}
