package evaluator

import (
	"context"
	"testing"

	"agifund/internal/config"
	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter 固定输出的模型客户端
type fakeCompleter struct {
	output string
	err    error
	prompt string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.output, f.err
}

func (f *fakeCompleter) Name() string {
	return "fake"
}

func testApplication() *models.Application {
	return &models.Application{
		TxHash:          "0xabc",
		BlockNumber:     100,
		Timestamp:       1700000000,
		ApplicantWallet: "0x2222222222222222222222222222222222222222",
		Data: models.ApplicationData{
			Agent:        "TraderBot",
			Wallet:       "0x1111111111111111111111111111111111111111",
			Description:  "自动化链上做市",
			RevenueModel: "手续费分成",
			Twitter:      "traderbot",
		},
	}
}

func newTestEvaluator(t *testing.T, completer Completer) *Evaluator {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	eval, err := NewEvaluator(
		&config.EvaluatorConfig{Timeout: "10s"},
		&config.FundingConfig{MinAmount: 100, MaxAmount: 1000},
		completer,
		NewResearcher("", logger),
		logger,
	)
	require.NoError(t, err)
	return eval
}

// TestEvaluateApproved 测试APPROVED结果的完整解析
func TestEvaluateApproved(t *testing.T) {
	completer := &fakeCompleter{output: `评估如下：
{
  "decision": "APPROVED",
  "confidence": 85,
  "fundingAmount": 500,
  "revenueSharePercent": 10,
  "reasoning": "产品真实且有收入",
  "researchNotes": {"twitter": "活跃", "concerns": [], "strengths": ["有产品"]}
}
以上是我的结论。`}

	eval := newTestEvaluator(t, completer)
	result, err := eval.Evaluate(context.Background(), testApplication())
	require.NoError(t, err)

	assert.Equal(t, models.DecisionApproved, result.Decision)
	assert.Equal(t, "0xabc", result.ApplicationID)
	require.NotNil(t, result.FundingAmount)
	assert.Equal(t, 500.0, *result.FundingAmount)
	require.NotNil(t, result.RevenueSharePercent)
	assert.Equal(t, 10.0, *result.RevenueSharePercent)

	// 提示词应包含申请材料
	assert.Contains(t, completer.prompt, "TraderBot")
	assert.Contains(t, completer.prompt, "@traderbot")
}

// TestEvaluateApprovedMissingFundingFields 测试APPROVED缺资金字段判为畸形输出
func TestEvaluateApprovedMissingFundingFields(t *testing.T) {
	completer := &fakeCompleter{output: `{
  "decision": "APPROVED",
  "confidence": 85,
  "reasoning": "不错",
  "researchNotes": {"twitter": "", "concerns": [], "strengths": []}
}`}

	eval := newTestEvaluator(t, completer)
	_, err := eval.Evaluate(context.Background(), testApplication())
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, ErrorTypeMalformed, evalErr.Type)
}

// TestEvaluateRejectedWithFundingFields 测试非APPROVED带资金字段同样判为畸形
func TestEvaluateRejectedWithFundingFields(t *testing.T) {
	completer := &fakeCompleter{output: `{
  "decision": "REJECTED",
  "confidence": 40,
  "fundingAmount": 500,
  "revenueSharePercent": 10,
  "reasoning": "风险过高",
  "researchNotes": {"twitter": "", "concerns": ["疑似欺诈"], "strengths": []}
}`}

	eval := newTestEvaluator(t, completer)
	_, err := eval.Evaluate(context.Background(), testApplication())
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, ErrorTypeMalformed, evalErr.Type)
}

// TestPromptUsesConfiguredFundingBand 测试提示词中的投资额区间来自配置
func TestPromptUsesConfiguredFundingBand(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	completer := &fakeCompleter{output: `{
  "decision": "REJECTED",
  "confidence": 40,
  "reasoning": "风险过高",
  "researchNotes": {"twitter": "", "concerns": [], "strengths": []}
}`}

	eval, err := NewEvaluator(
		&config.EvaluatorConfig{Timeout: "10s"},
		&config.FundingConfig{MinAmount: 250, MaxAmount: 2500},
		completer,
		NewResearcher("", logger),
		logger,
	)
	require.NoError(t, err)

	_, err = eval.Evaluate(context.Background(), testApplication())
	require.NoError(t, err)

	assert.Contains(t, completer.prompt, "250-2500 USDC")
	assert.Contains(t, completer.prompt, "250到2500之间")
	assert.NotContains(t, completer.prompt, "100-1000")
}
func TestEvaluateUnknownDecision(t *testing.T) {
	completer := &fakeCompleter{output: `{"decision": "MAYBE", "confidence": 50, "reasoning": "?", "researchNotes": {"twitter": "", "concerns": [], "strengths": []}}`}

	eval := newTestEvaluator(t, completer)
	_, err := eval.Evaluate(context.Background(), testApplication())
	assert.Error(t, err)
}

// TestEvaluateNoJSON 测试输出不含JSON时报解析错误
func TestEvaluateNoJSON(t *testing.T) {
	completer := &fakeCompleter{output: "抱歉，我无法评估这个申请。"}

	eval := newTestEvaluator(t, completer)
	_, err := eval.Evaluate(context.Background(), testApplication())
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, ErrorTypeParse, evalErr.Type)
}

// TestEvaluateTransportError 测试模型调用失败向上传播
func TestEvaluateTransportError(t *testing.T) {
	completer := &fakeCompleter{err: NewEvaluationError(ErrorTypeTransport, "连接超时", nil)}

	eval := newTestEvaluator(t, completer)
	_, err := eval.Evaluate(context.Background(), testApplication())
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, ErrorTypeTransport, evalErr.Type)
}

// TestExtractJSON 测试JSON提取取第一个'{'到最后一个'}'
func TestExtractJSON(t *testing.T) {
	text := `前言 {"a": {"b": 1}} 后记`
	extracted, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, extracted)

	_, err = ExtractJSON("没有对象")
	assert.Error(t, err)

	_, err = ExtractJSON("}{")
	assert.Error(t, err)
}

// TestNeedsInfoResult 测试NEEDS_INFO携带问题列表
func TestNeedsInfoResult(t *testing.T) {
	completer := &fakeCompleter{output: `{
  "decision": "NEEDS_INFO",
  "confidence": 50,
  "reasoning": "材料不足",
  "researchNotes": {"twitter": "", "concerns": [], "strengths": []},
  "questions": ["产品有付费用户吗？", "收入如何结算？"]
}`}

	eval := newTestEvaluator(t, completer)
	result, err := eval.Evaluate(context.Background(), testApplication())
	require.NoError(t, err)

	assert.Equal(t, models.DecisionNeedsInfo, result.Decision)
	assert.Len(t, result.Questions, 2)
	assert.Nil(t, result.FundingAmount)
}
