package scanner

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"agifund/internal/config"
	"agifund/internal/intake"
	"agifund/internal/retry"
	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
)

// 默认扫描参数
const (
	DefaultScanInterval  = 60 * time.Second
	DefaultBlockWindow   = 100
	DefaultSubgraphLimit = 50
)

// Ledger 扫描器需要的账本能力
type Ledger interface {
	IsProcessed(txHash string) bool
	MarkProcessed(txHash string) error
	ActiveFundedWallets() []string
}

// Indexer 索引器查询能力
type Indexer interface {
	TransfersToTreasury(ctx context.Context, treasury string, limit int) ([]Transfer, error)
	FundedWallets(ctx context.Context) ([]string, error)
}

// CycleRecorder 扫描周期检查点
type CycleRecorder interface {
	RecordCycle(lastBlock uint64, applicationsFound int) error
}

// RevenueSink 收入分成处理接口（由执行器的回购路径实现）
type RevenueSink interface {
	ProcessRevenueShare(ctx context.Context, event *models.RevenueEvent) error
}

// Scanner 金库交易扫描器
//
// 每个扫描周期从索引器拉取发往金库的转账，索引器不可用或无结果时
// 退回RPC逐块检查最近blockWindow个区块。每笔交易按
// 忽略名单 → 已投资钱包（收入分成）→ 申请解码 的优先级分类，
// 分类结果在Scan返回前全部落入已处理集合。
type Scanner struct {
	reader     ChainReader
	indexer    Indexer
	ledger     Ledger
	checkpoint CycleRecorder
	sink       RevenueSink
	retrier    *retry.Retrier
	logger     *logrus.Logger

	treasury       string
	applicationFee *big.Int // wei
	interval       time.Duration
	blockWindow    uint64
	subgraphLimit  int

	ignoredWallets map[string]struct{}

	mu            sync.RWMutex
	fundedWallets map[string]struct{}
}

// NewScanner 创建扫描器
func NewScanner(
	cfg *config.Config,
	reader ChainReader,
	indexer Indexer,
	ledger Ledger,
	checkpoint CycleRecorder,
	sink RevenueSink,
	logger *logrus.Logger,
) (*Scanner, error) {
	interval := DefaultScanInterval
	if cfg.Scanner.Interval != "" {
		parsed, err := time.ParseDuration(cfg.Scanner.Interval)
		if err != nil {
			return nil, NewScanError(ErrorTypeDecode, "无效的扫描间隔配置", err)
		}
		interval = parsed
	}

	fee, err := ParseEther(cfg.Scanner.ApplicationFee)
	if err != nil {
		return nil, NewScanError(ErrorTypeDecode, "无效的申请费配置", err)
	}

	blockWindow := cfg.Scanner.BlockWindow
	if blockWindow == 0 {
		blockWindow = DefaultBlockWindow
	}
	subgraphLimit := cfg.Scanner.SubgraphLimit
	if subgraphLimit <= 0 {
		subgraphLimit = DefaultSubgraphLimit
	}

	ignored := make(map[string]struct{}, len(cfg.Treasury.IgnoredWallets))
	for _, w := range cfg.Treasury.IgnoredWallets {
		ignored[strings.ToLower(w)] = struct{}{}
	}

	return &Scanner{
		reader:         reader,
		indexer:        indexer,
		ledger:         ledger,
		checkpoint:     checkpoint,
		sink:           sink,
		retrier:        retry.NewRetrier(retry.DefaultRetryConfig, logger),
		logger:         logger,
		treasury:       cfg.Treasury.Address,
		applicationFee: fee,
		interval:       interval,
		blockWindow:    blockWindow,
		subgraphLimit:  subgraphLimit,
		ignoredWallets: ignored,
		fundedWallets:  make(map[string]struct{}),
	}, nil
}

// LoadFundedWallets 启动时加载已投资钱包集合
//
// 先从本地账本加载，再尽力从索引器补充，索引器失败不阻塞启动。
func (s *Scanner) LoadFundedWallets(ctx context.Context) {
	s.mu.Lock()
	for _, w := range s.ledger.ActiveFundedWallets() {
		s.fundedWallets[w] = struct{}{}
	}
	local := len(s.fundedWallets)
	s.mu.Unlock()

	wallets, err := s.indexer.FundedWallets(ctx)
	if err != nil {
		s.logger.Warnf("从索引器加载已投资钱包失败: %v", err)
	} else {
		s.mu.Lock()
		for _, w := range wallets {
			s.fundedWallets[strings.ToLower(w)] = struct{}{}
		}
		s.mu.Unlock()
	}

	s.mu.RLock()
	total := len(s.fundedWallets)
	s.mu.RUnlock()
	s.logger.Infof("已投资钱包集合加载完成: 本地=%d 合计=%d", local, total)
}

// RegisterFundedWallet 注册新投资的收款钱包
func (s *Scanner) RegisterFundedWallet(wallet string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fundedWallets[strings.ToLower(wallet)] = struct{}{}
}

// isFundedWallet 检查钱包是否在已投资集合中
func (s *Scanner) isFundedWallet(wallet string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fundedWallets[strings.ToLower(wallet)]
	return ok
}

// Run 运行固定间隔的扫描循环
//
// 一个周期内扫描、分类、持久化全部完成后才等待下一个tick，
// 周期间不会并发。单个周期的错误只记录日志，不中断循环。
func (s *Scanner) Run(ctx context.Context, enqueue func(*models.Application)) {
	s.logger.Infof("扫描循环已启动: 金库=%s 间隔=%s", s.treasury, s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		apps, err := s.Scan(ctx)
		if err != nil {
			s.logger.Errorf("扫描周期失败: %v", err)
		}
		for _, app := range apps {
			enqueue(app)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("扫描循环已停止")
			return
		case <-ticker.C:
		}
	}
}

// Scan 执行一个扫描周期，返回新发现的申请
func (s *Scanner) Scan(ctx context.Context) ([]*models.Application, error) {
	latest, err := s.reader.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}

	candidates := s.collectCandidates(ctx, latest)

	var apps []*models.Application
	for i := range candidates {
		app, err := s.classify(ctx, &candidates[i])
		if err != nil {
			s.logger.Errorf("处理交易%s失败: %v", candidates[i].TxHash, err)
			continue
		}
		if app != nil {
			apps = append(apps, app)
		}
	}

	if err := s.checkpoint.RecordCycle(latest, len(apps)); err != nil {
		s.logger.Warnf("记录扫描检查点失败: %v", err)
	}

	if len(apps) > 0 {
		s.logger.Infof("扫描周期完成: 区块=%d 候选=%d 新申请=%d", latest, len(candidates), len(apps))
	} else {
		s.logger.Debugf("扫描周期完成: 区块=%d 候选=%d", latest, len(candidates))
	}

	return apps, nil
}

// collectCandidates 收集候选转账（索引器优先，RPC兜底）
func (s *Scanner) collectCandidates(ctx context.Context, latest uint64) []Transfer {
	var transfers []Transfer
	err := s.retrier.Execute(ctx, "查询索引器", func() error {
		result, err := s.indexer.TransfersToTreasury(ctx, s.treasury, s.subgraphLimit)
		if err != nil {
			return err
		}
		transfers = result
		return nil
	})
	if err == nil && len(transfers) > 0 {
		return transfers
	}
	if err != nil {
		s.logger.Warnf("索引器查询失败，回退RPC逐块扫描: %v", err)
	}

	from := uint64(1)
	if latest > s.blockWindow {
		from = latest - s.blockWindow + 1
	}

	for number := from; number <= latest; number++ {
		select {
		case <-ctx.Done():
			return transfers
		default:
		}

		blockTransfers, err := s.reader.BlockTransfers(ctx, number, s.treasury)
		if err != nil {
			s.logger.Warnf("检查区块%d失败: %v", number, err)
			continue
		}
		transfers = append(transfers, blockTransfers...)
	}

	return transfers
}

// classify 分类单笔候选转账
//
// 返回非nil的Application表示新申请；返回(nil, nil)表示该交易被
// 忽略、按收入处理或解码失败丢弃。所有被分类的交易都已标记处理。
func (s *Scanner) classify(ctx context.Context, t *Transfer) (*models.Application, error) {
	// 准入检查
	if !equalAddress(t.To, s.treasury) {
		return nil, nil
	}
	if t.Value == nil || t.Value.Cmp(s.applicationFee) < 0 {
		return nil, nil
	}
	if len(t.Input) < 2 {
		return nil, nil
	}

	if s.ledger.IsProcessed(t.TxHash) {
		return nil, nil
	}

	from := strings.ToLower(t.From)

	// 忽略名单优先级最高
	if _, ok := s.ignoredWallets[from]; ok {
		s.logger.Debugf("忽略名单钱包交易: %s", t.TxHash)
		return nil, s.ledger.MarkProcessed(t.TxHash)
	}

	// 已投资钱包的转入按收入分成处理
	if s.isFundedWallet(from) {
		s.handleRevenue(ctx, t)
		return nil, s.ledger.MarkProcessed(t.TxHash)
	}

	// 尝试解码为融资申请
	data, err := decodeApplication(t.Input)
	if err != nil {
		s.logger.Debugf("交易%s的calldata不是合法申请，丢弃: %v", t.TxHash, err)
		return nil, s.ledger.MarkProcessed(t.TxHash)
	}

	if err := s.ledger.MarkProcessed(t.TxHash); err != nil {
		return nil, NewScanError(ErrorTypeStorage, "标记交易已处理失败", err)
	}

	return &models.Application{
		TxHash:          t.TxHash,
		BlockNumber:     t.BlockNumber,
		Timestamp:       t.Timestamp,
		ApplicantWallet: t.From,
		Data:            *data,
	}, nil
}

// handleRevenue 收入分成交接
func (s *Scanner) handleRevenue(ctx context.Context, t *Transfer) {
	s.logger.Infof("检测到收入分成: 来源=%s 金额=%s wei 交易=%s", t.From, t.Value.String(), t.TxHash)

	if s.sink == nil {
		return
	}

	event := &models.RevenueEvent{
		TxHash:    t.TxHash,
		From:      t.From,
		Amount:    new(big.Int).Set(t.Value),
		Currency:  models.RevenueCurrencyETH,
		Timestamp: t.Timestamp,
	}
	if err := s.sink.ProcessRevenueShare(ctx, event); err != nil {
		s.logger.Errorf("处理收入分成失败: %v", err)
	}
}

// decodeApplication 将calldata解码为申请载荷
//
// calldata优先按UTF-8编码的JSON对象解析；不是JSON时退回自由文本
// 提取器，必填字段齐全才算成功。任何必填字段缺失都视为解码失败。
func decodeApplication(input []byte) (*models.ApplicationData, error) {
	if !utf8.Valid(input) {
		return nil, NewScanError(ErrorTypeDecode, "calldata不是合法UTF-8", nil)
	}

	var data models.ApplicationData
	if err := json.Unmarshal(input, &data); err != nil {
		partial, missing := intake.Extract(string(input))
		if len(missing) > 0 {
			return nil, NewScanError(ErrorTypeDecode,
				"calldata不是合法JSON且自由文本缺失字段: "+strings.Join(missing, ","), err)
		}
		extracted, _ := partial.ToApplicationData()
		data = *extracted
	}

	if err := data.Validate(); err != nil {
		return nil, NewScanError(ErrorTypeDecode, "申请载荷校验失败", err)
	}

	return &data, nil
}

// equalAddress 地址大小写无关比较
func equalAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ParseEther 解析以原生币计价的十进制金额为wei
func ParseEther(amount string) (*big.Int, error) {
	f, ok := new(big.Float).SetString(amount)
	if !ok {
		return nil, NewScanError(ErrorTypeDecode, "无效的金额: "+amount, nil)
	}

	wei, _ := new(big.Float).Mul(f, big.NewFloat(1e18)).Int(nil)
	return wei, nil
}
