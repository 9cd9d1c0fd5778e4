package scanner

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"agifund/internal/config"
	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTreasury = "0xC2f123B6C04e7950C882DF2C90e9C79ea176C91D"
	testIgnored  = "0x6e58ab81a36ce48250a6162d2a28ad852d48397d"
)

// fakeLedger 内存账本
type fakeLedger struct {
	processed map[string]struct{}
	funded    []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{processed: make(map[string]struct{})}
}

func (f *fakeLedger) IsProcessed(txHash string) bool {
	_, ok := f.processed[strings.ToLower(txHash)]
	return ok
}

func (f *fakeLedger) MarkProcessed(txHash string) error {
	f.processed[strings.ToLower(txHash)] = struct{}{}
	return nil
}

func (f *fakeLedger) ActiveFundedWallets() []string {
	return f.funded
}

// fakeIndexer 固定响应的索引器
type fakeIndexer struct {
	transfers []Transfer
	wallets   []string
	err       error
	calls     int
}

func (f *fakeIndexer) TransfersToTreasury(ctx context.Context, treasury string, limit int) ([]Transfer, error) {
	f.calls++
	return f.transfers, f.err
}

func (f *fakeIndexer) FundedWallets(ctx context.Context) ([]string, error) {
	return f.wallets, nil
}

// fakeReader 固定响应的链上读取器
type fakeReader struct {
	latest uint64
	blocks map[uint64][]Transfer
}

func (f *fakeReader) LatestBlock(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeReader) BlockTransfers(ctx context.Context, number uint64, to string) ([]Transfer, error) {
	return f.blocks[number], nil
}

// fakeRecorder 记录检查点调用
type fakeRecorder struct {
	lastBlock uint64
	found     int
}

func (f *fakeRecorder) RecordCycle(lastBlock uint64, applicationsFound int) error {
	f.lastBlock = lastBlock
	f.found += applicationsFound
	return nil
}

// fakeSink 记录收入交接
type fakeSink struct {
	events []*models.RevenueEvent
}

func (f *fakeSink) ProcessRevenueShare(ctx context.Context, event *models.RevenueEvent) error {
	f.events = append(f.events, event)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Treasury: &config.TreasuryConfig{
			Address:        testTreasury,
			IgnoredWallets: []string{testIgnored},
		},
		Scanner: &config.ScannerConfig{
			Interval:       "60s",
			BlockWindow:    10,
			ApplicationFee: "0.001",
			SubgraphLimit:  50,
		},
	}
}

func newTestScanner(t *testing.T, indexer Indexer, reader ChainReader, ledger Ledger, sink RevenueSink) (*Scanner, *fakeRecorder) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	recorder := &fakeRecorder{}
	s, err := NewScanner(testConfig(), reader, indexer, ledger, recorder, sink, logger)
	require.NoError(t, err)
	return s, recorder
}

// applicationCalldata 合法申请载荷
func applicationCalldata(t *testing.T) []byte {
	data, err := json.Marshal(models.ApplicationData{
		Agent:        "TraderBot",
		Wallet:       "0x1111111111111111111111111111111111111111",
		Description:  "自动化链上做市",
		RevenueModel: "交易手续费分成",
		Twitter:      "@traderbot",
	})
	require.NoError(t, err)
	return data
}

// fee 0.001 ETH
func feeWei() *big.Int {
	return big.NewInt(1_000_000_000_000_000)
}

func validTransfer(t *testing.T, hash, from string) Transfer {
	return Transfer{
		TxHash:      hash,
		From:        from,
		To:          testTreasury,
		Value:       feeWei(),
		Input:       applicationCalldata(t),
		BlockNumber: 100,
		Timestamp:   1700000000,
	}
}

// TestScanDiscoversApplication 测试合法申请被发现并解码
func TestScanDiscoversApplication(t *testing.T) {
	ledger := newFakeLedger()
	indexer := &fakeIndexer{transfers: []Transfer{validTransfer(t, "0xaaa", "0x2222222222222222222222222222222222222222")}}
	reader := &fakeReader{latest: 100}

	s, recorder := newTestScanner(t, indexer, reader, ledger, nil)

	apps, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "TraderBot", apps[0].Data.Agent)
	assert.Equal(t, "0xaaa", apps[0].TxHash)
	assert.True(t, ledger.IsProcessed("0xaaa"))
	assert.Equal(t, uint64(100), recorder.lastBlock)
	assert.Equal(t, 1, recorder.found)
}

// TestScanAtMostOnceAcrossReplays 测试索引器重复返回同一交易只处理一次
func TestScanAtMostOnceAcrossReplays(t *testing.T) {
	ledger := newFakeLedger()
	indexer := &fakeIndexer{transfers: []Transfer{validTransfer(t, "0xaaa", "0x2222222222222222222222222222222222222222")}}
	reader := &fakeReader{latest: 100}

	s, _ := newTestScanner(t, indexer, reader, ledger, nil)

	apps, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	// 索引器再次返回同一批交易
	apps, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps)
}

// TestIgnoreListPrecedence 测试忽略名单优先于申请解码
func TestIgnoreListPrecedence(t *testing.T) {
	ledger := newFakeLedger()
	sink := &fakeSink{}
	// 忽略名单中的钱包即使携带合法申请calldata也被忽略
	indexer := &fakeIndexer{transfers: []Transfer{validTransfer(t, "0xbbb", testIgnored)}}
	reader := &fakeReader{latest: 100}

	s, _ := newTestScanner(t, indexer, reader, ledger, sink)
	s.RegisterFundedWallet(testIgnored) // 同时在已投资集合中，忽略名单仍然优先

	apps, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps)
	assert.Empty(t, sink.events, "忽略名单交易不应走收入路径")
	assert.True(t, ledger.IsProcessed("0xbbb"))
}

// TestFundedWalletRevenuePrecedence 测试已投资钱包的转入按收入处理
func TestFundedWalletRevenuePrecedence(t *testing.T) {
	fundedWallet := "0x3333333333333333333333333333333333333333"
	ledger := newFakeLedger()
	sink := &fakeSink{}
	indexer := &fakeIndexer{transfers: []Transfer{validTransfer(t, "0xccc", fundedWallet)}}
	reader := &fakeReader{latest: 100}

	s, _ := newTestScanner(t, indexer, reader, ledger, sink)
	s.RegisterFundedWallet(fundedWallet)

	apps, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps, "已投资钱包的转入不应被当作新申请")
	require.Len(t, sink.events, 1)
	assert.Equal(t, fundedWallet, sink.events[0].From)
	assert.Equal(t, models.RevenueCurrencyETH, sink.events[0].Currency)
	assert.True(t, ledger.IsProcessed("0xccc"))
}

// TestAdmissionRules 测试准入检查
func TestAdmissionRules(t *testing.T) {
	ledger := newFakeLedger()

	lowValue := validTransfer(t, "0x01", "0x2222222222222222222222222222222222222222")
	lowValue.Value = big.NewInt(1) // 低于申请费

	emptyInput := validTransfer(t, "0x02", "0x2222222222222222222222222222222222222222")
	emptyInput.Input = nil

	wrongTo := validTransfer(t, "0x03", "0x2222222222222222222222222222222222222222")
	wrongTo.To = "0x9999999999999999999999999999999999999999"

	indexer := &fakeIndexer{transfers: []Transfer{lowValue, emptyInput, wrongTo}}
	reader := &fakeReader{latest: 100}

	s, _ := newTestScanner(t, indexer, reader, ledger, nil)

	apps, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps)

	// 未通过准入的交易不占用已处理集合
	assert.False(t, ledger.IsProcessed("0x01"))
	assert.False(t, ledger.IsProcessed("0x02"))
	assert.False(t, ledger.IsProcessed("0x03"))
}

// TestDecodeFailureDropsSilently 测试解码失败静默丢弃但标记处理
func TestDecodeFailureDropsSilently(t *testing.T) {
	ledger := newFakeLedger()

	garbage := validTransfer(t, "0xddd", "0x2222222222222222222222222222222222222222")
	garbage.Input = []byte("hello world")

	missingFields := validTransfer(t, "0xeee", "0x2222222222222222222222222222222222222222")
	missingFields.Input = []byte(`{"agent": "OnlyName"}`)

	indexer := &fakeIndexer{transfers: []Transfer{garbage, missingFields}}
	reader := &fakeReader{latest: 100}

	s, _ := newTestScanner(t, indexer, reader, ledger, nil)

	apps, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps)
	assert.True(t, ledger.IsProcessed("0xddd"))
	assert.True(t, ledger.IsProcessed("0xeee"))
}

// TestInvalidWalletAddressDropped 测试收款钱包格式非法的申请按解码失败丢弃
func TestInvalidWalletAddressDropped(t *testing.T) {
	ledger := newFakeLedger()

	badWallet := validTransfer(t, "0xbad", "0x2222222222222222222222222222222222222222")
	badWallet.Input = []byte(`{"agent":"Bot1","wallet":"not-an-address",` +
		`"description":"d","revenue_model":"m","twitter":"bot1"}`)

	indexer := &fakeIndexer{transfers: []Transfer{badWallet}}
	reader := &fakeReader{latest: 100}

	s, _ := newTestScanner(t, indexer, reader, ledger, nil)

	apps, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps)
	assert.True(t, ledger.IsProcessed("0xbad"))
}

// TestFreeTextCalldataExtracted 测试非JSON的自由文本calldata走提取器兜底
func TestFreeTextCalldataExtracted(t *testing.T) {
	ledger := newFakeLedger()

	text := validTransfer(t, "0xfreetext", "0x2222222222222222222222222222222222222222")
	text.Input = []byte("agent: TextBot\n" +
		"description: 自由文本提交的交易代理\n" +
		"revenue model: subscription fees\n" +
		"wallet 0x3333333333333333333333333333333333333333\n" +
		"twitter.com/textbot\n")

	indexer := &fakeIndexer{transfers: []Transfer{text}}
	reader := &fakeReader{latest: 100}

	s, _ := newTestScanner(t, indexer, reader, ledger, nil)

	apps, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "TextBot", apps[0].Data.Agent)
	assert.Equal(t, "0x3333333333333333333333333333333333333333", apps[0].Data.Wallet)
	assert.Equal(t, "@textbot", apps[0].Data.Twitter)
	assert.True(t, ledger.IsProcessed("0xfreetext"))
}

// TestFallbackToRPCWhenIndexerEmpty 测试索引器无结果时回退RPC逐块扫描
func TestFallbackToRPCWhenIndexerEmpty(t *testing.T) {
	ledger := newFakeLedger()
	indexer := &fakeIndexer{} // 无结果
	reader := &fakeReader{
		latest: 100,
		blocks: map[uint64][]Transfer{
			95: {validTransfer(t, "0xfff", "0x2222222222222222222222222222222222222222")},
		},
	}

	s, _ := newTestScanner(t, indexer, reader, ledger, nil)

	apps, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "0xfff", apps[0].TxHash)
}

// TestLoadFundedWallets 测试启动时加载已投资钱包集合
func TestLoadFundedWallets(t *testing.T) {
	ledger := newFakeLedger()
	ledger.funded = []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	indexer := &fakeIndexer{wallets: []string{"0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"}}
	reader := &fakeReader{latest: 100}

	s, _ := newTestScanner(t, indexer, reader, ledger, nil)
	s.LoadFundedWallets(context.Background())

	assert.True(t, s.isFundedWallet("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	assert.True(t, s.isFundedWallet("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
}

// TestParseEther 测试原生币金额解析
func TestParseEther(t *testing.T) {
	wei, err := ParseEther("0.001")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000", wei.String())

	wei, err = ParseEther("1")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", wei.String())

	_, err = ParseEther("abc")
	assert.Error(t, err)
}
