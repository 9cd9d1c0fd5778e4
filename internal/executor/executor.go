package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"agifund/internal/config"
	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
)

const defaultConfirmTimeout = 3 * time.Minute

// FundLedger 执行器需要的账本能力
type FundLedger interface {
	SaveFundedAgent(agent *models.FundedAgent) error
	SaveRejection(rec *models.RejectionRecord) error
	AddRevenue(wallet string, amount float64) error
}

// WalletRegistry 已投资钱包注册接口（由扫描器实现）
type WalletRegistry interface {
	RegisterFundedWallet(wallet string)
}

// OperatorNotifier 运营通知接口（Telegram）
type OperatorNotifier interface {
	Notify(ctx context.Context, message string)
}

// Announcer 公开播报接口（Twitter）
type Announcer interface {
	Post(ctx context.Context, text string) error
}

// EventPublisher 管道事件发布接口
type EventPublisher interface {
	Publish(event *models.PipelineEvent)
}

// Executor 投资执行器
//
// 负责APPROVED决定的USDC打款以及REJECTED/NEEDS_INFO的落账与回复。
// 打款后的副作用按 持久化 → 播报 → 注册钱包 → 事件 的顺序执行，
// 后续步骤失败不回滚已完成的步骤。
type Executor struct {
	tokens    TokenClient
	exchanger Exchanger
	quoter    Quoter
	ledger    FundLedger
	registry  WalletRegistry
	operator  OperatorNotifier
	announcer Announcer
	events    EventPublisher
	logger    *logrus.Logger

	treasury       string
	usdcAddress    string
	wethAddress    string
	minAmount      float64
	maxAmount      float64
	quoteBuffer    float64
	confirmTimeout time.Duration
}

// NewExecutor 创建投资执行器
func NewExecutor(
	cfg *config.Config,
	tokens TokenClient,
	exchanger Exchanger,
	quoter Quoter,
	ledger FundLedger,
	registry WalletRegistry,
	operator OperatorNotifier,
	announcer Announcer,
	events EventPublisher,
	logger *logrus.Logger,
) (*Executor, error) {
	confirmTimeout := defaultConfirmTimeout
	if cfg.Funding.ConfirmTimeout != "" {
		parsed, err := time.ParseDuration(cfg.Funding.ConfirmTimeout)
		if err != nil {
			return nil, fmt.Errorf("无效的确认超时配置: %w", err)
		}
		confirmTimeout = parsed
	}

	quoteBuffer := cfg.Funding.QuoteBuffer
	if quoteBuffer <= 0 {
		quoteBuffer = 1.10
	}

	return &Executor{
		tokens:         tokens,
		exchanger:      exchanger,
		quoter:         quoter,
		ledger:         ledger,
		registry:       registry,
		operator:       operator,
		announcer:      announcer,
		events:         events,
		logger:         logger,
		treasury:       cfg.Treasury.Address,
		usdcAddress:    cfg.Chain.USDCAddress,
		wethAddress:    cfg.Chain.WETHAddress,
		minAmount:      cfg.Funding.MinAmount,
		maxAmount:      cfg.Funding.MaxAmount,
		quoteBuffer:    quoteBuffer,
		confirmTimeout: confirmTimeout,
	}, nil
}

// ExecuteFunding 执行APPROVED决定的打款
func (e *Executor) ExecuteFunding(ctx context.Context, app *models.Application, result *models.EvaluationResult) error {
	if result.Decision != models.DecisionApproved {
		return NewFundingError(CodePrecondition,
			fmt.Sprintf("决定%s不允许打款", result.Decision), nil)
	}
	if result.FundingAmount == nil || result.RevenueSharePercent == nil {
		return NewFundingError(CodePrecondition, "APPROVED结果缺少资金字段", nil)
	}

	amount := *result.FundingAmount
	if amount < e.minAmount || amount > e.maxAmount {
		return NewFundingError(CodePrecondition,
			fmt.Sprintf("投资额%.2f超出区间[%.2f, %.2f]", amount, e.minAmount, e.maxAmount), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	need := usdcUnits(amount)
	if err := e.ensureBalance(ctx, need); err != nil {
		return err
	}

	e.logger.Infof("开始打款: %s → %s, %.2f USDC", e.treasury, app.Data.Wallet, amount)

	txHash, err := e.tokens.Transfer(ctx, e.usdcAddress, app.Data.Wallet, need)
	if err != nil {
		e.notifyOperator(ctx, fmt.Sprintf("⚠️ 打款失败\n代理: %s\n金额: %.2f USDC\n错误: %v",
			app.Data.Agent, amount, err))
		return NewFundingError(CodeTransferFailed, "USDC转账失败", err)
	}

	// 副作用顺序固定：持久化 → 播报 → 注册钱包 → 事件
	agent := &models.FundedAgent{
		ID:                  app.TxHash,
		Wallet:              app.Data.Wallet,
		Name:                app.Data.Agent,
		Twitter:             app.Data.TwitterHandle(),
		FundedAmount:        amount,
		FundedAt:            time.Now().Unix(),
		RevenueSharePercent: *result.RevenueSharePercent,
		Status:              models.AgentStatusActive,
	}
	if err := e.ledger.SaveFundedAgent(agent); err != nil {
		// 钱已转出，落账失败必须告警，由运营人工补账
		e.notifyOperator(ctx, fmt.Sprintf("🚨 打款成功但落账失败，需人工补账\n代理: %s\n交易: %s\n错误: %v",
			app.Data.Agent, txHash, err))
		return fmt.Errorf("保存投资记录失败: %w", err)
	}

	if e.announcer != nil {
		text := fmt.Sprintf("🎉 已投资 %s %.0f USDC，换取%.0f%%收入分成。欢迎加入 portfolio！ %s",
			app.Data.Agent, amount, *result.RevenueSharePercent, app.Data.TwitterHandle())
		if err := e.announcer.Post(ctx, text); err != nil {
			e.logger.Warnf("投资播报失败: %v", err)
		}
	}

	e.registry.RegisterFundedWallet(app.Data.Wallet)

	e.publish(&models.PipelineEvent{
		Type:      models.EventApplicationFunded,
		TxHash:    app.TxHash,
		AgentName: app.Data.Agent,
		Timestamp: time.Now().Unix(),
		Payload:   agent,
	})

	e.notifyOperator(ctx, fmt.Sprintf("✅ 投资完成\n代理: %s\n金额: %.2f USDC\n分成: %.0f%%\n交易: %s",
		app.Data.Agent, amount, *result.RevenueSharePercent, txHash))

	e.logger.Infof("打款完成: %s 交易=%s", app.Data.Agent, txHash)
	return nil
}

// ensureBalance 确保金库USDC余额足够，不足时尝试从原生币储备兑换
func (e *Executor) ensureBalance(ctx context.Context, need *big.Int) error {
	balance, err := e.tokens.BalanceOf(ctx, e.usdcAddress, e.treasury)
	if err != nil {
		return NewFundingError(CodeTransferFailed, "查询USDC余额失败", err)
	}
	if balance.Cmp(need) >= 0 {
		return nil
	}

	shortfall := new(big.Int).Sub(need, balance)
	e.logger.Infof("USDC余额不足，缺口%s，尝试从原生币储备兑换", shortfall.String())

	price, err := e.quoter.NativePriceUSD(ctx)
	if err != nil {
		return NewFundingError(CodeInsufficientFunds, "USDC不足且无法获取兑换报价", err)
	}

	// 缺口USD → 所需ETH（含报价安全系数）
	shortfallUSD := usdcFloat(shortfall)
	ethNeeded := shortfallUSD / price * e.quoteBuffer
	weiNeeded, _ := new(big.Float).Mul(big.NewFloat(ethNeeded), big.NewFloat(1e18)).Int(nil)

	native, err := e.tokens.NativeBalance(ctx, e.treasury)
	if err != nil {
		return NewFundingError(CodeInsufficientFunds, "查询原生币余额失败", err)
	}
	if native.Cmp(weiNeeded) < 0 {
		return NewFundingError(CodeInsufficientFunds,
			fmt.Sprintf("金库储备不足: 需要%s wei，仅有%s wei", weiNeeded.String(), native.String()), nil)
	}

	if err := e.exchanger.Swap(ctx, e.wethAddress, e.usdcAddress, weiNeeded); err != nil {
		return NewFundingError(CodeInsufficientFunds, "储备兑换失败", err)
	}

	// 兑换后复核
	balance, err = e.tokens.BalanceOf(ctx, e.usdcAddress, e.treasury)
	if err != nil {
		return NewFundingError(CodeTransferFailed, "兑换后查询USDC余额失败", err)
	}
	if balance.Cmp(need) < 0 {
		return NewFundingError(CodeInsufficientFunds, "兑换后USDC余额仍不足", nil)
	}
	return nil
}

// HandleRejection 处理REJECTED决定
func (e *Executor) HandleRejection(ctx context.Context, app *models.Application, result *models.EvaluationResult) error {
	rec := &models.RejectionRecord{
		ApplicationID: app.TxHash,
		AgentName:     app.Data.Agent,
		TwitterHandle: app.Data.TwitterHandle(),
		Reason:        result.Reasoning,
		Concerns:      result.ResearchNotes.Concerns,
		Timestamp:     time.Now().Unix(),
	}
	if err := e.ledger.SaveRejection(rec); err != nil {
		return fmt.Errorf("保存拒绝记录失败: %w", err)
	}

	e.publish(&models.PipelineEvent{
		Type:      models.EventApplicationRejected,
		TxHash:    app.TxHash,
		AgentName: app.Data.Agent,
		Timestamp: time.Now().Unix(),
		Payload:   rec,
	})

	e.notifyOperator(ctx, fmt.Sprintf("❌ 已拒绝申请\n代理: %s\n理由: %s", app.Data.Agent, result.Reasoning))
	e.logger.Infof("已拒绝申请: %s", app.Data.Agent)
	return nil
}

// HandleNeedsInfo 处理NEEDS_INFO决定
//
// 公开向申请人追问第一个问题，不落终态账，申请人补充材料后
// 需重新提交申请交易。
func (e *Executor) HandleNeedsInfo(ctx context.Context, app *models.Application, result *models.EvaluationResult) error {
	question := "请补充更多关于产品和收入模式的信息。"
	if len(result.Questions) > 0 {
		question = result.Questions[0]
	}

	if e.announcer != nil {
		text := fmt.Sprintf("%s 关于你的融资申请：%s", app.Data.TwitterHandle(), question)
		if err := e.announcer.Post(ctx, text); err != nil {
			e.logger.Warnf("追问发送失败: %v", err)
		}
	}

	e.publish(&models.PipelineEvent{
		Type:      models.EventApplicationNeedsInfo,
		TxHash:    app.TxHash,
		AgentName: app.Data.Agent,
		Timestamp: time.Now().Unix(),
		Payload:   result.Questions,
	})

	e.logger.Infof("已向%s追问补充信息", app.Data.Agent)
	return nil
}

// notifyOperator 运营通知（尽力而为）
func (e *Executor) notifyOperator(ctx context.Context, message string) {
	if e.operator != nil {
		e.operator.Notify(ctx, message)
	}
}

// publish 发布管道事件（尽力而为）
func (e *Executor) publish(event *models.PipelineEvent) {
	if e.events != nil {
		e.events.Publish(event)
	}
}

// usdcUnits 美元金额转USDC最小单位（6位小数）
func usdcUnits(amount float64) *big.Int {
	units, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e6)).Int(nil)
	return units
}

// usdcFloat USDC最小单位转美元金额
func usdcFloat(units *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(units), big.NewFloat(1e6)).Float64()
	return f
}
