package scanner

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Transfer 一笔进入金库的原生币转账
type Transfer struct {
	TxHash      string
	From        string
	To          string
	Value       *big.Int
	Input       []byte
	BlockNumber uint64
	Timestamp   int64
}

// ChainReader 链上数据读取接口
type ChainReader interface {
	// LatestBlock 获取最新区块号
	LatestBlock(ctx context.Context) (uint64, error)

	// BlockTransfers 获取指定区块中发往目标地址的转账
	BlockTransfers(ctx context.Context, number uint64, to string) ([]Transfer, error)
}

// RPCReader 基于ethclient的链上读取器
type RPCReader struct {
	client  *ethclient.Client
	chainID *big.Int
	signer  types.Signer
}

// NewRPCReader 创建RPC读取器
func NewRPCReader(rpcURL string, chainID int64) (*RPCReader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, NewScanError(ErrorTypeRPC, "连接RPC节点失败", err)
	}

	id := big.NewInt(chainID)
	return &RPCReader{
		client:  client,
		chainID: id,
		signer:  types.LatestSignerForChainID(id),
	}, nil
}

// LatestBlock 获取最新区块号
func (r *RPCReader) LatestBlock(ctx context.Context) (uint64, error) {
	number, err := r.client.BlockNumber(ctx)
	if err != nil {
		return 0, NewScanError(ErrorTypeRPC, "获取最新区块号失败", err)
	}
	return number, nil
}

// BlockTransfers 获取指定区块中发往目标地址的转账
func (r *RPCReader) BlockTransfers(ctx context.Context, number uint64, to string) ([]Transfer, error) {
	block, err := r.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, NewScanError(ErrorTypeRPC, fmt.Sprintf("获取区块%d失败", number), err)
	}

	var transfers []Transfer
	for _, tx := range block.Transactions() {
		if tx.To() == nil || !equalAddress(tx.To().Hex(), to) {
			continue
		}

		from, err := types.Sender(r.signer, tx)
		if err != nil {
			// 无法恢复发送方的交易直接跳过
			continue
		}

		transfers = append(transfers, Transfer{
			TxHash:      tx.Hash().Hex(),
			From:        from.Hex(),
			To:          tx.To().Hex(),
			Value:       tx.Value(),
			Input:       tx.Data(),
			BlockNumber: number,
			Timestamp:   int64(block.Time()),
		})
	}

	return transfers, nil
}

// Close 关闭RPC连接
func (r *RPCReader) Close() {
	r.client.Close()
}
