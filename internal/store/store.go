package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	// 持久化文件名
	FundedAgentsFile       = "funded-agents.json"
	RejectionsFile         = "rejections.json"
	ProcessedTxsFile       = "processed-txs.json"
	EvaluationFailuresFile = "evaluation-failures.json"

	// 已处理交易集合的默认保留上限
	DefaultProcessedTxLimit = 10000
)

// Store 账本存储
//
// 独占持有FundedAgent、RejectionRecord、EvaluationFailure和已处理交易集合
// 的磁盘表示，其他组件只通过读/追加方法访问。每次变更都在返回前同步
// 重写对应JSON文件（临时文件+重命名，保证文件任何时刻都是合法JSON）。
type Store struct {
	dataDir          string
	processedTxLimit int
	logger           *logrus.Logger
	mu               sync.RWMutex

	fundedAgents []models.FundedAgent
	rejections   []models.RejectionRecord
	failures     []models.EvaluationFailure
	processedSet map[string]struct{}
	processedSeq []string // 保留插入顺序，超限时从最旧开始裁剪
}

// NewStore 创建账本存储并加载既有数据
func NewStore(dataDir string, processedTxLimit int, logger *logrus.Logger) (*Store, error) {
	if dataDir == "" {
		dataDir = "./data"
	}
	if processedTxLimit <= 0 {
		processedTxLimit = DefaultProcessedTxLimit
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	s := &Store{
		dataDir:          dataDir,
		processedTxLimit: processedTxLimit,
		logger:           logger,
		processedSet:     make(map[string]struct{}),
	}

	s.loadAll()

	logger.Infof("账本存储已初始化: 目录=%s 已投资=%d 已拒绝=%d 已处理交易=%d",
		dataDir, len(s.fundedAgents), len(s.rejections), len(s.processedSeq))
	return s, nil
}

// loadAll 加载全部持久化文件（缺失或损坏的文件按空集处理）
func (s *Store) loadAll() {
	readJSON(s, FundedAgentsFile, &s.fundedAgents)
	readJSON(s, RejectionsFile, &s.rejections)
	readJSON(s, EvaluationFailuresFile, &s.failures)
	readJSON(s, ProcessedTxsFile, &s.processedSeq)

	for _, h := range s.processedSeq {
		s.processedSet[strings.ToLower(h)] = struct{}{}
	}
}

// readJSON 读取单个JSON数组文件
func readJSON[T any](s *Store, name string, out *[]T) {
	path := filepath.Join(s.dataDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warnf("读取%s失败: %v", name, err)
		}
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warnf("解析%s失败，按空集处理: %v", name, err)
		*out = nil
	}
}

// writeJSON 原子写入单个JSON数组文件（临时文件+重命名）
func (s *Store) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化%s失败: %w", name, err)
	}

	path := filepath.Join(s.dataDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("替换%s失败: %w", name, err)
	}
	return nil
}

// IsProcessed 检查交易哈希是否已处理
func (s *Store) IsProcessed(txHash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processedSet[strings.ToLower(txHash)]
	return ok
}

// MarkProcessed 标记交易已处理并同步持久化
//
// 返回前必须落盘，保证进程重启后同一交易不会被二次分类。
// 集合超过保留上限时从最旧的条目开始裁剪。
func (s *Store) MarkProcessed(txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(txHash)
	if _, ok := s.processedSet[key]; ok {
		return nil
	}

	s.processedSet[key] = struct{}{}
	s.processedSeq = append(s.processedSeq, key)

	if len(s.processedSeq) > s.processedTxLimit {
		overflow := len(s.processedSeq) - s.processedTxLimit
		for _, old := range s.processedSeq[:overflow] {
			delete(s.processedSet, old)
		}
		s.processedSeq = append([]string(nil), s.processedSeq[overflow:]...)
	}

	return s.writeJSON(ProcessedTxsFile, s.processedSeq)
}

// ProcessedCount 已处理交易数量
func (s *Store) ProcessedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processedSeq)
}

// SaveFundedAgent 持久化投资记录
func (s *Store) SaveFundedAgent(agent *models.FundedAgent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.fundedAgents {
		if existing.ID == agent.ID {
			return fmt.Errorf("投资记录已存在: %s", agent.ID)
		}
	}

	s.fundedAgents = append(s.fundedAgents, *agent)
	if err := s.writeJSON(FundedAgentsFile, s.fundedAgents); err != nil {
		return err
	}

	s.logger.Infof("已保存投资记录: %s (%s, $%.2f)", agent.Name, agent.Wallet, agent.FundedAmount)
	return nil
}

// SaveRejection 持久化拒绝记录
func (s *Store) SaveRejection(rec *models.RejectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rejections = append(s.rejections, *rec)
	return s.writeJSON(RejectionsFile, s.rejections)
}

// SaveEvaluationFailure 持久化评审失败终态记录
func (s *Store) SaveEvaluationFailure(rec *models.EvaluationFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, *rec)
	return s.writeJSON(EvaluationFailuresFile, s.failures)
}

// AddRevenue 累加某代理钱包的收入分成
//
// TotalRevenuePaid是投资记录创建后唯一允许变更的字段（单调不减），
// 另外更新LastPayment时间戳。
func (s *Store) AddRevenue(wallet string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("收入金额不能为负: %f", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(wallet)
	for i := range s.fundedAgents {
		if strings.ToLower(s.fundedAgents[i].Wallet) == key {
			s.fundedAgents[i].TotalRevenuePaid += amount
			s.fundedAgents[i].LastPayment = time.Now().Unix()
			return s.writeJSON(FundedAgentsFile, s.fundedAgents)
		}
	}

	return fmt.Errorf("未找到钱包对应的投资记录: %s", wallet)
}

// FundedAgents 返回全部投资记录的副本
func (s *Store) FundedAgents() []models.FundedAgent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FundedAgent(nil), s.fundedAgents...)
}

// Rejections 返回全部拒绝记录的副本
func (s *Store) Rejections() []models.RejectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RejectionRecord(nil), s.rejections...)
}

// EvaluationFailures 返回全部评审失败记录的副本
func (s *Store) EvaluationFailures() []models.EvaluationFailure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.EvaluationFailure(nil), s.failures...)
}

// FindFundedByID 按申请交易哈希查找投资记录
func (s *Store) FindFundedByID(id string) (*models.FundedAgent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.fundedAgents {
		if strings.EqualFold(s.fundedAgents[i].ID, id) {
			agent := s.fundedAgents[i]
			return &agent, true
		}
	}
	return nil, false
}

// FindRejectionByID 按申请交易哈希查找拒绝记录
func (s *Store) FindRejectionByID(id string) (*models.RejectionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.rejections {
		if strings.EqualFold(s.rejections[i].ApplicationID, id) {
			rec := s.rejections[i]
			return &rec, true
		}
	}
	return nil, false
}

// ActiveFundedWallets 返回状态为active的代理收款钱包列表（小写）
func (s *Store) ActiveFundedWallets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wallets []string
	for i := range s.fundedAgents {
		if s.fundedAgents[i].Status == models.AgentStatusActive {
			wallets = append(wallets, strings.ToLower(s.fundedAgents[i].Wallet))
		}
	}
	return wallets
}
