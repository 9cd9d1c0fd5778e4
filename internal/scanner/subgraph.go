package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// SubgraphClient 索引器查询客户端
//
// 扫描优先走索引器，RPC逐块检查只作兜底。索引器可能重复返回
// 已见过的交易，去重由调用方的已处理集合保证。
type SubgraphClient struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewSubgraphClient 创建索引器客户端
func NewSubgraphClient(url string, logger *logrus.Logger) *SubgraphClient {
	return &SubgraphClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// subgraphTransfer 索引器返回的转账记录
type subgraphTransfer struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Input       string `json:"input"`
	BlockNumber string `json:"blockNumber"`
	Timestamp   string `json:"timestamp"`
}

// query 执行GraphQL查询
func (c *SubgraphClient) query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return NewScanError(ErrorTypeSubgraph, "序列化查询失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return NewScanError(ErrorTypeSubgraph, "构建查询请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewScanError(ErrorTypeSubgraph, "查询索引器失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return NewScanError(ErrorTypeSubgraph, fmt.Sprintf("索引器返回状态码%d", resp.StatusCode), nil)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return NewScanError(ErrorTypeSubgraph, "解析索引器响应失败", err)
	}
	if len(envelope.Errors) > 0 {
		return NewScanError(ErrorTypeSubgraph, envelope.Errors[0].Message, nil)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return NewScanError(ErrorTypeSubgraph, "解析索引器数据失败", err)
	}
	return nil
}

// TransfersToTreasury 查询发往金库的最近转账
func (c *SubgraphClient) TransfersToTreasury(ctx context.Context, treasury string, limit int) ([]Transfer, error) {
	const q = `query($to: String!, $first: Int!) {
		transfers(where: {to: $to}, orderBy: timestamp, orderDirection: desc, first: $first) {
			id from to value input blockNumber timestamp
		}
	}`

	var data struct {
		Transfers []subgraphTransfer `json:"transfers"`
	}
	err := c.query(ctx, q, map[string]interface{}{
		"to":    strings.ToLower(treasury),
		"first": limit,
	}, &data)
	if err != nil {
		return nil, err
	}

	transfers := make([]Transfer, 0, len(data.Transfers))
	for _, t := range data.Transfers {
		transfer, err := t.toTransfer()
		if err != nil {
			c.logger.Debugf("跳过无法解析的索引器记录 %s: %v", t.ID, err)
			continue
		}
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

// FundedWallets 查询索引器记录的已投资钱包
func (c *SubgraphClient) FundedWallets(ctx context.Context) ([]string, error) {
	const q = `query {
		fundedAgents(first: 1000) { wallet }
	}`

	var data struct {
		FundedAgents []struct {
			Wallet string `json:"wallet"`
		} `json:"fundedAgents"`
	}
	if err := c.query(ctx, q, nil, &data); err != nil {
		return nil, err
	}

	wallets := make([]string, 0, len(data.FundedAgents))
	for _, a := range data.FundedAgents {
		wallets = append(wallets, strings.ToLower(a.Wallet))
	}
	return wallets, nil
}

// toTransfer 转换为内部转账结构
func (t *subgraphTransfer) toTransfer() (Transfer, error) {
	value, ok := new(big.Int).SetString(t.Value, 10)
	if !ok {
		return Transfer{}, fmt.Errorf("无效的转账金额: %s", t.Value)
	}

	blockNumber, err := strconv.ParseUint(t.BlockNumber, 10, 64)
	if err != nil {
		return Transfer{}, fmt.Errorf("无效的区块号: %s", t.BlockNumber)
	}

	timestamp, err := strconv.ParseInt(t.Timestamp, 10, 64)
	if err != nil {
		return Transfer{}, fmt.Errorf("无效的时间戳: %s", t.Timestamp)
	}

	var input []byte
	if t.Input != "" && t.Input != "0x" {
		input, err = hexutil.Decode(t.Input)
		if err != nil {
			return Transfer{}, fmt.Errorf("无效的calldata: %w", err)
		}
	}

	// 索引器的id即交易哈希
	hash := t.ID
	if idx := strings.Index(hash, "-"); idx > 0 {
		hash = hash[:idx]
	}

	return Transfer{
		TxHash:      hash,
		From:        t.From,
		To:          t.To,
		Value:       value,
		Input:       input,
		BlockNumber: blockNumber,
		Timestamp:   timestamp,
	}, nil
}
