package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
)

// Buyback 收入分成处理器
//
// 实现扫描器的收入交接接口：先把收入计入对应代理的账本，
// 再用配置比例的收入回购项目代币。回购失败不影响已落账的收入。
type Buyback struct {
	ledger    FundLedger
	exchanger Exchanger
	quoter    Quoter
	events    EventPublisher
	operator  OperatorNotifier
	logger    *logrus.Logger

	wethAddress  string
	agiToken     string
	buybackShare float64
}

// NewBuyback 创建收入分成处理器
func NewBuyback(
	ledger FundLedger,
	exchanger Exchanger,
	quoter Quoter,
	events EventPublisher,
	operator OperatorNotifier,
	wethAddress, agiToken string,
	buybackShare float64,
	logger *logrus.Logger,
) *Buyback {
	if buybackShare <= 0 || buybackShare > 1 {
		buybackShare = 0.5
	}
	return &Buyback{
		ledger:       ledger,
		exchanger:    exchanger,
		quoter:       quoter,
		events:       events,
		operator:     operator,
		logger:       logger,
		wethAddress:  wethAddress,
		agiToken:     agiToken,
		buybackShare: buybackShare,
	}
}

// ProcessRevenueShare 处理一笔收入分成
func (b *Buyback) ProcessRevenueShare(ctx context.Context, event *models.RevenueEvent) error {
	usd, err := b.toUSD(ctx, event)
	if err != nil {
		return fmt.Errorf("折算收入金额失败: %w", err)
	}

	// 账本里可能没有对应的投资记录（例如钱包集合只来自索引器），
	// 落账失败只告警，不中断回购和通知
	if err := b.ledger.AddRevenue(event.From, usd); err != nil {
		b.logger.Warnf("收入落账失败，需人工补账: 钱包=%s 金额=$%.2f 错误=%v", event.From, usd, err)
		if b.operator != nil {
			b.operator.Notify(ctx, fmt.Sprintf("⚠️ 收入落账失败，需人工补账\n钱包: %s\n金额: $%.2f\n交易: %s\n错误: %v",
				event.From, usd, event.TxHash, err))
		}
	} else {
		b.logger.Infof("收入已落账: 钱包=%s 金额=$%.2f", event.From, usd)
	}

	if b.events != nil {
		b.events.Publish(&models.PipelineEvent{
			Type:      models.EventRevenueReceived,
			TxHash:    event.TxHash,
			Timestamp: time.Now().Unix(),
			Payload:   event,
		})
	}

	// 回购：收入的一部分换成项目代币
	buybackAmount := new(big.Float).Mul(
		new(big.Float).SetInt(event.Amount),
		big.NewFloat(b.buybackShare),
	)
	wei, _ := buybackAmount.Int(nil)

	if b.exchanger != nil && wei.Sign() > 0 {
		if err := b.exchanger.Swap(ctx, b.wethAddress, b.agiToken, wei); err != nil {
			b.logger.Warnf("回购兑换失败: %v", err)
		} else {
			b.logger.Infof("回购完成: %s wei → %s", wei.String(), b.agiToken)
		}
	}

	if b.operator != nil {
		b.operator.Notify(ctx, fmt.Sprintf("💰 收到收入分成\n来源: %s\n金额: $%.2f\n交易: %s",
			event.From, usd, event.TxHash))
	}

	return nil
}

// toUSD 把收入事件折算为美元金额
func (b *Buyback) toUSD(ctx context.Context, event *models.RevenueEvent) (float64, error) {
	switch event.Currency {
	case models.RevenueCurrencyUSDC:
		return usdcFloat(event.Amount), nil
	case models.RevenueCurrencyETH:
		price, err := b.quoter.NativePriceUSD(ctx)
		if err != nil {
			return 0, err
		}
		eth, _ := new(big.Float).Quo(new(big.Float).SetInt(event.Amount), big.NewFloat(1e18)).Float64()
		return eth * price, nil
	default:
		return 0, fmt.Errorf("未知的收入币种: %s", event.Currency)
	}
}
