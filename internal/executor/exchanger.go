package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Exchanger 代币兑换接口
//
// 具体路由（DEX选择、滑点控制）由实现决定，执行器只关心
// "把amountIn的fromToken换成toToken"这一结果。
type Exchanger interface {
	Swap(ctx context.Context, fromToken, toToken string, amountIn *big.Int) error
}

// Quoter 价格查询接口
type Quoter interface {
	// NativePriceUSD 查询原生币的美元价格
	NativePriceUSD(ctx context.Context) (float64, error)
}

// CoinGeckoQuoter CoinGecko价格查询客户端
type CoinGeckoQuoter struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewCoinGeckoQuoter 创建价格查询客户端
func NewCoinGeckoQuoter(baseURL string, logger *logrus.Logger) *CoinGeckoQuoter {
	return &CoinGeckoQuoter{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NativePriceUSD 查询ETH的美元价格
func (q *CoinGeckoQuoter) NativePriceUSD(ctx context.Context) (float64, error) {
	url := q.baseURL + "/simple/price?ids=ethereum&vs_currencies=usd"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("构建价格请求失败: %w", err)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("查询价格失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("价格API返回状态码%d", resp.StatusCode)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("解析价格响应失败: %w", err)
	}

	price, ok := payload["ethereum"]["usd"]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("价格响应缺少ethereum.usd字段")
	}
	return price, nil
}

// NoSwapExchanger 不执行兑换的占位实现
//
// 未配置DEX路由的部署使用该实现，兑换请求一律报错，
// 储备不足时直接走INSUFFICIENT_FUNDS路径。
type NoSwapExchanger struct{}

// Swap 始终返回兑换不可用
func (NoSwapExchanger) Swap(ctx context.Context, fromToken, toToken string, amountIn *big.Int) error {
	return NewFundingError(CodeExchangeFailed, "未配置兑换路由", nil)
}
