package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
)

// DryRunTokenClient 演练模式代币客户端
//
// 不发送任何链上交易：余额查询返回充足余额，转账只记日志并
// 返回伪造的交易哈希。用于验证管道行为而不动真金。
type DryRunTokenClient struct {
	logger *logrus.Logger
}

// NewDryRunTokenClient 创建演练模式客户端
func NewDryRunTokenClient(logger *logrus.Logger) *DryRunTokenClient {
	return &DryRunTokenClient{logger: logger}
}

// BalanceOf 返回充足的演练余额
func (c *DryRunTokenClient) BalanceOf(ctx context.Context, token, owner string) (*big.Int, error) {
	// 1,000,000 USDC
	return new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e6)), nil
}

// NativeBalance 返回充足的演练余额
func (c *DryRunTokenClient) NativeBalance(ctx context.Context, owner string) (*big.Int, error) {
	// 1000 ETH
	return new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)), nil
}

// Transfer 只记日志，返回伪造哈希
func (c *DryRunTokenClient) Transfer(ctx context.Context, token, to string, amount *big.Int) (string, error) {
	c.logger.Infof("[演练] 跳过转账: 代币=%s 收款=%s 金额=%s", token, to, amount.String())
	return fmt.Sprintf("0xdryrun%d", time.Now().UnixNano()), nil
}
