package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agifund/internal/config"
	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
)

const defaultEvaluateTimeout = 5 * time.Minute

// Evaluator 申请评审器
//
// 调研 → 组装提示词 → 模型评审 → 解析决定。模型输出只被信任到
// JSON解析这一步，决定与资金字段的一致性由本地检查强制。
type Evaluator struct {
	completer  Completer
	researcher *Researcher
	timeout    time.Duration
	fundingMin float64
	fundingMax float64
	logger     *logrus.Logger
}

// NewEvaluator 创建评审器
//
// 提示词中的投资额区间取自funding配置，与执行器强制的区间保持同源。
func NewEvaluator(cfg *config.EvaluatorConfig, funding *config.FundingConfig, completer Completer, researcher *Researcher, logger *logrus.Logger) (*Evaluator, error) {
	timeout := defaultEvaluateTimeout
	if cfg.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("无效的评审超时配置: %w", err)
		}
		timeout = parsed
	}

	fundingMin, fundingMax := 100.0, 1000.0
	if funding != nil && funding.MinAmount > 0 && funding.MaxAmount > 0 {
		fundingMin = funding.MinAmount
		fundingMax = funding.MaxAmount
	}

	return &Evaluator{
		completer:  completer,
		researcher: researcher,
		timeout:    timeout,
		fundingMin: fundingMin,
		fundingMax: fundingMax,
		logger:     logger,
	}, nil
}

// Evaluate 评审单个申请
func (e *Evaluator) Evaluate(ctx context.Context, app *models.Application) (*models.EvaluationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Infof("开始评审申请: %s (%s)", app.Data.Agent, app.TxHash)

	brief := e.researcher.Research(ctx, app)
	prompt := e.buildPrompt(app, brief)

	output, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result, err := parseResult(output)
	if err != nil {
		return nil, err
	}
	result.ApplicationID = app.TxHash

	if err := result.ValidateInvariant(); err != nil {
		return nil, NewEvaluationError(ErrorTypeMalformed, "模型输出违反决定约束", err)
	}

	e.logger.Infof("评审完成: %s 决定=%s 置信度=%d", app.Data.Agent, result.Decision, result.Confidence)
	return result, nil
}

// buildPrompt 组装评审提示词
func (e *Evaluator) buildPrompt(app *models.Application, brief *ResearchBrief) string {
	var sb strings.Builder

	sb.WriteString("你是一家自动化风险投资基金的评审员，负责评估AI代理的融资申请。\n\n")

	sb.WriteString("## 申请材料\n")
	fmt.Fprintf(&sb, "- 代理名称: %s\n", app.Data.Agent)
	fmt.Fprintf(&sb, "- 收款钱包: %s\n", app.Data.Wallet)
	fmt.Fprintf(&sb, "- 项目描述: %s\n", app.Data.Description)
	fmt.Fprintf(&sb, "- 收入模式: %s\n", app.Data.RevenueModel)
	fmt.Fprintf(&sb, "- Twitter: %s\n", app.Data.TwitterHandle())
	if app.Data.GitHub != "" {
		fmt.Fprintf(&sb, "- GitHub: %s\n", app.Data.GitHub)
	}
	if app.Data.Website != "" {
		fmt.Fprintf(&sb, "- 网站: %s\n", app.Data.Website)
	}

	sb.WriteString("\n## 调研简报\n")
	fmt.Fprintf(&sb, "- Twitter: %s\n", brief.Twitter)
	fmt.Fprintf(&sb, "- GitHub: %s\n", brief.GitHub)
	fmt.Fprintf(&sb, "- 网站: %s\n", brief.Website)
	fmt.Fprintf(&sb, "- 钱包: %s\n", brief.Wallet)

	fmt.Fprintf(&sb, `
## 评审维度
1. 产品真实性：项目是否真实存在并可验证
2. 收入可行性：收入模式是否能在合理时间内产生现金流
3. 申请人可信度：公开痕迹是否支持其身份与能力
4. 风险：欺诈、跑路、描述与事实不符的可能性
5. 匹配度：是否符合投资%[1]g-%[2]g USDC换取收入分成的模式

## 输出要求
只输出一个JSON对象，不要输出其他内容：
{
  "decision": "APPROVED" | "REJECTED" | "NEEDS_INFO",
  "confidence": 0到100的整数,
  "fundingAmount": APPROVED时为%[1]g到%[2]g之间的USDC金额，否则省略,
  "revenueSharePercent": APPROVED时为收入分成百分比，否则省略,
  "reasoning": "决定理由",
  "researchNotes": {
    "twitter": "Twitter核查结论",
    "github": "GitHub核查结论",
    "product": "产品核查结论",
    "concerns": ["疑虑列表"],
    "strengths": ["优势列表"]
  },
  "questions": NEEDS_INFO时为需要申请人补充的问题列表，否则省略
}
`, e.fundingMin, e.fundingMax)

	return sb.String()
}

// parseResult 从模型输出中解析评审结果
//
// 模型偶尔会在JSON前后输出说明文字，取第一个'{'到最后一个'}'
// 之间的内容解析。
func parseResult(output string) (*models.EvaluationResult, error) {
	jsonText, err := ExtractJSON(output)
	if err != nil {
		return nil, err
	}

	var result models.EvaluationResult
	if err := json.Unmarshal([]byte(jsonText), &result); err != nil {
		return nil, NewEvaluationError(ErrorTypeParse, "解析评审JSON失败", err)
	}

	return &result, nil
}

// ExtractJSON 提取文本中的JSON对象
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", NewEvaluationError(ErrorTypeParse, "模型输出不含JSON对象", nil)
	}
	return text[start : end+1], nil
}
