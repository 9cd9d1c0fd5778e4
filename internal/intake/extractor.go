package intake

import (
	"regexp"
	"strings"

	"agifund/pkg/models"
)

// PartialApplication 从自由文本中尽力提取出的申请字段
//
// 只填入确实找到的字段，缺失字段留空，提取器不做任何猜测。
type PartialApplication struct {
	Agent        string `json:"agent,omitempty"`
	Wallet       string `json:"wallet,omitempty"`
	Description  string `json:"description,omitempty"`
	RevenueModel string `json:"revenue_model,omitempty"`
	Twitter      string `json:"twitter,omitempty"`
	GitHub       string `json:"github,omitempty"`
	Website      string `json:"website,omitempty"`
}

// 必填字段清单（与链上申请载荷一致）
var requiredFields = []string{"agent", "wallet", "description", "revenue_model", "twitter"}

var (
	walletPattern  = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)
	twitterPattern = regexp.MustCompile(`(?:twitter\.com/|x\.com/|@)([A-Za-z0-9_]{1,15})\b`)
	githubPattern  = regexp.MustCompile(`github\.com/([A-Za-z0-9_.-]+(?:/[A-Za-z0-9_.-]+)?)`)
	websitePattern = regexp.MustCompile(`https?://[^\s<>"']+`)
	labelPattern   = regexp.MustCompile(`(?im)^\s*(agent|name|project|description|revenue[ _-]?model)\s*[:：]\s*(.+)$`)
)

// Extract 从自由文本中提取申请字段
//
// 返回提取结果和仍然缺失的必填字段列表。供运营人员处理
// calldata不是规范JSON但疑似申请的交易时使用。
func Extract(text string) (*PartialApplication, []string) {
	p := &PartialApplication{}

	if m := walletPattern.FindString(text); m != "" {
		p.Wallet = m
	}
	if m := twitterPattern.FindStringSubmatch(text); len(m) > 1 {
		p.Twitter = "@" + m[1]
	}
	if m := githubPattern.FindStringSubmatch(text); len(m) > 0 {
		p.GitHub = "https://" + m[0]
	}

	// 标签行：agent: xxx / description: xxx / revenue_model: xxx
	for _, m := range labelPattern.FindAllStringSubmatch(text, -1) {
		label := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(m[1], "-", "_"), " ", "_"))
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		switch label {
		case "agent", "name", "project":
			if p.Agent == "" {
				p.Agent = value
			}
		case "description":
			p.Description = value
		case "revenue_model":
			p.RevenueModel = value
		}
	}

	// 网站取第一个非twitter/github的URL
	for _, u := range websitePattern.FindAllString(text, -1) {
		lower := strings.ToLower(u)
		if strings.Contains(lower, "twitter.com") || strings.Contains(lower, "x.com") ||
			strings.Contains(lower, "github.com") {
			continue
		}
		p.Website = strings.TrimRight(u, ".,;)")
		break
	}

	return p, p.missingRequired()
}

// missingRequired 列出仍缺失的必填字段
func (p *PartialApplication) missingRequired() []string {
	values := map[string]string{
		"agent":         p.Agent,
		"wallet":        p.Wallet,
		"description":   p.Description,
		"revenue_model": p.RevenueModel,
		"twitter":       p.Twitter,
	}

	var missing []string
	for _, field := range requiredFields {
		if values[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// ToApplicationData 转换为完整申请载荷（仅在必填字段齐全时可用）
func (p *PartialApplication) ToApplicationData() (*models.ApplicationData, bool) {
	if len(p.missingRequired()) > 0 {
		return nil, false
	}
	return &models.ApplicationData{
		Agent:        p.Agent,
		Wallet:       p.Wallet,
		Description:  p.Description,
		RevenueModel: p.RevenueModel,
		Twitter:      p.Twitter,
		GitHub:       p.GitHub,
		Website:      p.Website,
	}, true
}
