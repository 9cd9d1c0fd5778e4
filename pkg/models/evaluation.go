package models

import "fmt"

// Decision 评审决定（标签联合类型，分发时必须穷举所有分支）
type Decision string

const (
	DecisionApproved  Decision = "APPROVED"
	DecisionRejected  Decision = "REJECTED"
	DecisionNeedsInfo Decision = "NEEDS_INFO"
)

// IsValid 检查决定是否为已知取值
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionNeedsInfo:
		return true
	}
	return false
}

// ResearchNotes 调研结论（结构化）
type ResearchNotes struct {
	Twitter   string   `json:"twitter"`
	GitHub    string   `json:"github,omitempty"`
	Product   string   `json:"product,omitempty"`
	Concerns  []string `json:"concerns"`
	Strengths []string `json:"strengths"`
}

// EvaluationResult 单个申请的评审结果
//
// 不变量：FundingAmount和RevenueSharePercent当且仅当Decision为APPROVED时存在，
// 该不变量由调用方通过ValidateInvariant强制检查，不信任模型输出。
type EvaluationResult struct {
	ApplicationID       string        `json:"applicationId"`
	Decision            Decision      `json:"decision"`
	Confidence          int           `json:"confidence"`
	FundingAmount       *float64      `json:"fundingAmount,omitempty"`
	RevenueSharePercent *float64      `json:"revenueSharePercent,omitempty"`
	Reasoning           string        `json:"reasoning"`
	ResearchNotes       ResearchNotes `json:"researchNotes"`
	Questions           []string      `json:"questions,omitempty"`
}

// ValidateInvariant 强制检查决定与资金字段的一致性
func (r *EvaluationResult) ValidateInvariant() error {
	if !r.Decision.IsValid() {
		return fmt.Errorf("未知的评审决定: %q", r.Decision)
	}
	if r.Decision == DecisionApproved {
		if r.FundingAmount == nil || r.RevenueSharePercent == nil {
			return fmt.Errorf("APPROVED结果缺少fundingAmount或revenueSharePercent")
		}
		return nil
	}
	if r.FundingAmount != nil || r.RevenueSharePercent != nil {
		return fmt.Errorf("非APPROVED结果不应携带资金字段: %s", r.Decision)
	}
	return nil
}

// EvaluationFailure 评审失败的终态记录（供运营人员跟进，不自动重试）
type EvaluationFailure struct {
	ApplicationID string `json:"applicationId"`
	AgentName     string `json:"agentName"`
	TwitterHandle string `json:"twitterHandle"`
	Error         string `json:"error"`
	Timestamp     int64  `json:"timestamp"`
}
