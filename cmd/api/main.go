package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"agifund/internal/api"
	"agifund/internal/config"
	"agifund/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	port       int
)

// 独立的只读API进程，与主管道共享同一个数据目录。
var rootCmd = &cobra.Command{
	Use:   "agifund-api",
	Short: "agifund只读API服务",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "配置文件路径")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "覆盖API端口")
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
	if port > 0 {
		cfg.API.Port = port
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

	logManager := api.NewLogManager(api.DefaultLogBufferSize)
	logger.AddHook(logManager.Hook())

	st, err := store.NewStore(cfg.Storage.DataDir, cfg.Storage.ProcessedTxLimit, logger)
	if err != nil {
		return fmt.Errorf("打开账本存储失败: %w", err)
	}

	// 主管道进程持有检查点数据库的文件锁，这里打不开就只提供账本数据
	var stats api.StatsSource
	checkpoint, err := store.NewCheckpoint(filepath.Join(cfg.Storage.DataDir, "scanner.db"), logger)
	if err != nil {
		logger.Warnf("打开扫描检查点失败，统计端点不含扫描数据: %v", err)
	} else {
		stats = checkpoint
		defer checkpoint.Close()
	}

	server := api.NewServer(cfg.API.Port, st, stats, logManager, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Infof("收到信号%s，停止API服务", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(ctx)
	}
}
