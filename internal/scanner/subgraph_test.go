package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubgraph(serverURL string) *SubgraphClient {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewSubgraphClient(serverURL, logger)
}

// TestTransfersToTreasury 测试索引器转账查询与解析
func TestTransfersToTreasury(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "transfers")
		assert.Equal(t, testTreasuryLower(), req.Variables["to"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"transfers": []map[string]string{
					{
						"id":          "0xaaa",
						"from":        "0x2222222222222222222222222222222222222222",
						"to":          testTreasury,
						"value":       "1000000000000000",
						"input":       "0x7b2261223a317d",
						"blockNumber": "100",
						"timestamp":   "1700000000",
					},
					{
						// 金额非法的记录被跳过
						"id":          "0xbad",
						"from":        "0x3333333333333333333333333333333333333333",
						"to":          testTreasury,
						"value":       "oops",
						"input":       "0x",
						"blockNumber": "101",
						"timestamp":   "1700000001",
					},
				},
			},
		})
	}))
	defer server.Close()

	c := newTestSubgraph(server.URL)
	transfers, err := c.TransfersToTreasury(context.Background(), testTreasury, 50)
	require.NoError(t, err)

	require.Len(t, transfers, 1)
	assert.Equal(t, "0xaaa", transfers[0].TxHash)
	assert.Equal(t, "1000000000000000", transfers[0].Value.String())
	assert.Equal(t, uint64(100), transfers[0].BlockNumber)
}

// TestSubgraphGraphQLError 测试GraphQL错误传播
func TestSubgraphGraphQLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]string{{"message": "subgraph not synced"}},
		})
	}))
	defer server.Close()

	c := newTestSubgraph(server.URL)
	_, err := c.TransfersToTreasury(context.Background(), testTreasury, 50)
	require.Error(t, err)

	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, ErrorTypeSubgraph, scanErr.Type)
	assert.Contains(t, err.Error(), "subgraph not synced")
}

// TestFundedWalletsQuery 测试已投资钱包查询（统一小写）
func TestFundedWalletsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"fundedAgents": []map[string]string{
					{"wallet": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
					{"wallet": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
				},
			},
		})
	}))
	defer server.Close()

	c := newTestSubgraph(server.URL)
	wallets, err := c.FundedWallets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}, wallets)
}

func testTreasuryLower() string {
	return "0xc2f123b6c04e7950c882df2c90e9c79ea176c91d"
}
