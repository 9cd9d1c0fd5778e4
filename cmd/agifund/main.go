package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agifund/internal/api"
	"agifund/internal/config"
	"agifund/internal/evaluator"
	"agifund/internal/events"
	"agifund/internal/executor"
	"agifund/internal/logging"
	"agifund/internal/notify"
	"agifund/internal/orchestrator"
	"agifund/internal/scanner"
	"agifund/internal/shutdown"
	"agifund/internal/store"
	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	dryRun     bool
	apiPort    int
	runOnce    bool
)

var rootCmd = &cobra.Command{
	Use:   "agifund",
	Short: "AI代理自动投资基金后端",
	Long:  "扫描金库申请交易、自动评审并执行投资的完整管道，附带只读API。",
	RunE:  run,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "显示扫描检查点和账本统计",
	RunE:  showStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "演练模式，不发送链上交易")
	rootCmd.Flags().IntVar(&apiPort, "api-port", 0, "覆盖API端口")
	rootCmd.Flags().BoolVar(&runOnce, "once", false, "只执行一个扫描周期后退出")

	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	if apiPort > 0 {
		cfg.API.Port = apiPort
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	structured, err := logging.NewStructuredLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("初始化结构化日志失败: %w", err)
	}
	structured.InfoWithFields("agifund启动", map[string]any{
		"treasury": cfg.Treasury.Address,
		"chain_id": cfg.Chain.ChainID,
		"dry_run":  dryRun,
	})

	logManager := api.NewLogManager(api.DefaultLogBufferSize)
	logger.AddHook(logManager.Hook())

	sm := shutdown.NewManager(shutdown.DefaultShutdownTimeout, logger)
	ctx := sm.Context()

	// 存储
	st, err := store.NewStore(cfg.Storage.DataDir, cfg.Storage.ProcessedTxLimit, logger)
	if err != nil {
		return fmt.Errorf("初始化账本存储失败: %w", err)
	}
	checkpoint, err := store.NewCheckpoint(filepath.Join(cfg.Storage.DataDir, "scanner.db"), logger)
	if err != nil {
		return fmt.Errorf("初始化扫描检查点失败: %w", err)
	}
	sm.Register("checkpoint", shutdown.OrderStorage, func(ctx context.Context) error {
		return checkpoint.Close()
	})

	// 通知与事件
	telegram := notify.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID, logger)
	twitter := notify.NewTwitter(
		cfg.Notify.TwitterAPIKey, cfg.Notify.TwitterAPISecret,
		cfg.Notify.TwitterAccessToken, cfg.Notify.TwitterAccessSecret, logger)

	publisher, err := events.NewPublisher(cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("初始化事件发布器失败: %w", err)
	}
	sm.Register("events", shutdown.OrderEvents, func(ctx context.Context) error {
		return publisher.Close()
	})

	// 链上客户端
	reader, err := scanner.NewRPCReader(cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		return fmt.Errorf("初始化链上读取器失败: %w", err)
	}
	sm.Register("rpc", shutdown.OrderClients, func(ctx context.Context) error {
		reader.Close()
		return nil
	})

	var tokens executor.TokenClient
	if dryRun {
		tokens = executor.NewDryRunTokenClient(logger)
	} else {
		if cfg.Treasury.PrivateKey == "" {
			return fmt.Errorf("缺少环境变量AGIFUND_TREASURY_PRIVATE_KEY（或使用--dry-run）")
		}
		tokens, err = executor.NewERC20Client(cfg.Chain.RPCURL, cfg.Chain.ChainID, cfg.Treasury.PrivateKey, logger)
		if err != nil {
			return fmt.Errorf("初始化代币客户端失败: %w", err)
		}
	}

	quoter := executor.NewCoinGeckoQuoter(cfg.Chain.CoingeckoAPI, logger)
	exchanger := executor.NoSwapExchanger{}

	// 回购与扫描器
	buyback := executor.NewBuyback(st, exchanger, quoter, publisher, telegram,
		cfg.Chain.WETHAddress, cfg.Chain.AGIToken, cfg.Funding.BuybackFraction, logger)

	subgraph := scanner.NewSubgraphClient(cfg.Chain.SubgraphURL, logger)
	scan, err := scanner.NewScanner(cfg, reader, subgraph, st, checkpoint, buyback, logger)
	if err != nil {
		return fmt.Errorf("初始化扫描器失败: %w", err)
	}

	// 评审与执行
	completer, err := evaluator.NewCompleter(ctx, cfg.Evaluator, logger)
	if err != nil {
		return fmt.Errorf("初始化模型客户端失败: %w", err)
	}
	researcher := evaluator.NewResearcher(cfg.Chain.BlockscoutAPI, logger)
	eval, err := evaluator.NewEvaluator(cfg.Evaluator, cfg.Funding, completer, researcher, logger)
	if err != nil {
		return fmt.Errorf("初始化评审器失败: %w", err)
	}

	exec, err := executor.NewExecutor(cfg, tokens, exchanger, quoter, st, scan, telegram, twitter, publisher, logger)
	if err != nil {
		return fmt.Errorf("初始化执行器失败: %w", err)
	}

	orch := orchestrator.NewOrchestrator(eval, exec, st, telegram, publisher, logger)
	sm.Register("queue", shutdown.OrderQueue, func(ctx context.Context) error {
		orch.Wait()
		return nil
	})

	// API
	server := api.NewServer(cfg.API.Port, st, checkpoint, logManager, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("API服务退出: %v", err)
		}
	}()
	sm.Register("api", shutdown.OrderAPI, func(ctx context.Context) error {
		return server.Stop(ctx)
	})

	// 启动管道
	scan.LoadFundedWallets(ctx)

	enqueue := func(app *models.Application) {
		orch.Enqueue(ctx, app)
	}

	if runOnce {
		apps, err := scan.Scan(ctx)
		if err != nil {
			logger.Errorf("扫描失败: %v", err)
		}
		for _, app := range apps {
			enqueue(app)
		}
		orch.Wait()
		sm.Shutdown()
		return nil
	}

	go scan.Run(ctx, enqueue)

	sm.Wait()
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	st, err := store.NewStore(cfg.Storage.DataDir, cfg.Storage.ProcessedTxLimit, logger)
	if err != nil {
		return fmt.Errorf("打开账本存储失败: %w", err)
	}

	checkpoint, err := store.NewCheckpoint(filepath.Join(cfg.Storage.DataDir, "scanner.db"), logger)
	if err != nil {
		return fmt.Errorf("打开扫描检查点失败: %w", err)
	}
	defer checkpoint.Close()

	info := checkpoint.Info()
	agents := st.FundedAgents()

	var totalInvested, totalRevenue float64
	for i := range agents {
		totalInvested += agents[i].FundedAmount
		totalRevenue += agents[i].TotalRevenuePaid
	}

	fmt.Println("=== agifund 状态 ===")
	fmt.Printf("最后扫描区块:   %d\n", info.LastScannedBlock)
	fmt.Printf("扫描周期数:     %d\n", info.ScanCycles)
	fmt.Printf("累计发现申请:   %d\n", info.ApplicationsFound)
	if !info.LastScanTime.IsZero() {
		fmt.Printf("最后扫描时间:   %s\n", info.LastScanTime.Format(time.RFC3339))
	}
	fmt.Printf("已投资代理:     %d\n", len(agents))
	fmt.Printf("累计投资:       $%.2f\n", totalInvested)
	fmt.Printf("累计收入分成:   $%.2f\n", totalRevenue)
	fmt.Printf("拒绝记录:       %d\n", len(st.Rejections()))
	fmt.Printf("评审失败记录:   %d\n", len(st.EvaluationFailures()))
	fmt.Printf("已处理交易:     %d\n", st.ProcessedCount())

	return nil
}
