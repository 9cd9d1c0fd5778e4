package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ERC20最小ABI（只用到balanceOf和transfer）
const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const receiptPollInterval = 3 * time.Second

// TokenClient 代币操作接口
type TokenClient interface {
	// BalanceOf 查询代币余额
	BalanceOf(ctx context.Context, token, owner string) (*big.Int, error)

	// Transfer 发送代币转账并等待上链确认，返回交易哈希
	Transfer(ctx context.Context, token, to string, amount *big.Int) (string, error)

	// NativeBalance 查询原生币余额
	NativeBalance(ctx context.Context, owner string) (*big.Int, error)
}

// ERC20Client 基于ethclient的代币客户端
type ERC20Client struct {
	client     *ethclient.Client
	erc20ABI   abi.ABI
	chainID    *big.Int
	privateKey *ecdsa.PrivateKey
	sender     common.Address
	logger     *logrus.Logger
}

// NewERC20Client 创建代币客户端
//
// privateKeyHex为金库私钥（不带0x前缀也可），签名方地址由私钥推导。
func NewERC20Client(rpcURL string, chainID int64, privateKeyHex string, logger *logrus.Logger) (*ERC20Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接RPC节点失败: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("解析ERC20 ABI失败: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析金库私钥失败: %w", err)
	}

	return &ERC20Client{
		client:     client,
		erc20ABI:   parsed,
		chainID:    big.NewInt(chainID),
		privateKey: key,
		sender:     crypto.PubkeyToAddress(key.PublicKey),
		logger:     logger,
	}, nil
}

// Sender 签名方地址
func (c *ERC20Client) Sender() string {
	return c.sender.Hex()
}

// BalanceOf 查询代币余额
func (c *ERC20Client) BalanceOf(ctx context.Context, token, owner string) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("编码balanceOf调用失败: %w", err)
	}

	tokenAddr := common.HexToAddress(token)
	result, err := c.client.CallContract(ctx, callMsg(tokenAddr, data), nil)
	if err != nil {
		return nil, fmt.Errorf("查询代币余额失败: %w", err)
	}

	var balance *big.Int
	if err := c.erc20ABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return nil, fmt.Errorf("解码余额失败: %w", err)
	}
	return balance, nil
}

// NativeBalance 查询原生币余额
func (c *ERC20Client) NativeBalance(ctx context.Context, owner string) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, common.HexToAddress(owner), nil)
	if err != nil {
		return nil, fmt.Errorf("查询原生币余额失败: %w", err)
	}
	return balance, nil
}

// Transfer 发送代币转账并等待上链确认
func (c *ERC20Client) Transfer(ctx context.Context, token, to string, amount *big.Int) (string, error) {
	data, err := c.erc20ABI.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return "", fmt.Errorf("编码transfer调用失败: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return "", fmt.Errorf("获取nonce失败: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("获取gas价格失败: %w", err)
	}

	tokenAddr := common.HexToAddress(token)
	gasLimit, err := c.client.EstimateGas(ctx, callMsgFrom(c.sender, tokenAddr, data))
	if err != nil {
		return "", fmt.Errorf("估算gas失败: %w", err)
	}

	tx := types.NewTransaction(nonce, tokenAddr, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("签名交易失败: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("发送交易失败: %w", err)
	}

	hash := signed.Hash()
	c.logger.Infof("代币转账已发送: %s，等待确认", hash.Hex())

	if err := c.waitReceipt(ctx, hash); err != nil {
		return hash.Hex(), err
	}
	return hash.Hex(), nil
}

// waitReceipt 轮询等待交易回执
func (c *ERC20Client) waitReceipt(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("交易%s执行失败（回执状态%d）", hash.Hex(), receipt.Status)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("等待交易%s确认超时: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func callMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}

func callMsgFrom(from, to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: from, To: &to, Data: data}
}
