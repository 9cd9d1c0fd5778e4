package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"agifund/internal/store"
	"agifund/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LedgerReader 只读账本访问接口
type LedgerReader interface {
	FundedAgents() []models.FundedAgent
	Rejections() []models.RejectionRecord
	EvaluationFailures() []models.EvaluationFailure
	FindFundedByID(id string) (*models.FundedAgent, bool)
	FindRejectionByID(id string) (*models.RejectionRecord, bool)
}

// StatsSource 扫描统计来源
type StatsSource interface {
	Info() *store.CheckpointInfo
}

// Server 只读API服务
//
// 只暴露账本和扫描统计的读取，没有任何写路径。账本文件缺失或
// 损坏时各端点降级为空列表，不返回5xx。
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	ledger     LedgerReader
	stats      StatsSource
	logs       *LogManager
	logger     *logrus.Logger
	port       int
}

// NewServer 创建API服务
func NewServer(port int, ledger LedgerReader, stats StatsSource, logs *LogManager, logger *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	s := &Server{
		engine: engine,
		ledger: ledger,
		stats:  stats,
		logs:   logs,
		logger: logger,
		port:   port,
	}
	s.registerRoutes()
	return s
}

// registerRoutes 注册路由
func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/funded-agents", s.handleFundedAgents)
		api.GET("/rejections", s.handleRejections)
		api.GET("/application/:txHash", s.handleApplication)
		api.GET("/stats", s.handleStats)
		api.GET("/logs", s.handleLogs)
	}
}

// corsMiddleware 跨域中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// handleHealth 健康检查
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleFundedAgents 已投资代理列表
func (s *Server) handleFundedAgents(c *gin.Context) {
	agents := s.ledger.FundedAgents()
	if agents == nil {
		agents = []models.FundedAgent{}
	}
	c.JSON(http.StatusOK, agents)
}

// handleRejections 拒绝记录列表
func (s *Server) handleRejections(c *gin.Context) {
	rejections := s.ledger.Rejections()
	if rejections == nil {
		rejections = []models.RejectionRecord{}
	}
	c.JSON(http.StatusOK, rejections)
}

// handleApplication 单个申请的状态查询
func (s *Server) handleApplication(c *gin.Context) {
	txHash := c.Param("txHash")

	if agent, ok := s.ledger.FindFundedByID(txHash); ok {
		c.JSON(http.StatusOK, gin.H{
			"status": "FUNDED",
			"agent":  agent,
		})
		return
	}

	if rec, ok := s.ledger.FindRejectionByID(txHash); ok {
		c.JSON(http.StatusOK, gin.H{
			"status":    "REJECTED",
			"rejection": rec,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "UNKNOWN",
	})
}

// handleStats 基金统计
func (s *Server) handleStats(c *gin.Context) {
	agents := s.ledger.FundedAgents()

	var totalInvested, totalRevenue float64
	for i := range agents {
		totalInvested += agents[i].FundedAmount
		totalRevenue += agents[i].TotalRevenuePaid
	}

	stats := gin.H{
		"agentsFunded":       len(agents),
		"totalInvested":      totalInvested,
		"totalRevenue":       totalRevenue,
		"totalRejections":    len(s.ledger.Rejections()),
		"evaluationFailures": len(s.ledger.EvaluationFailures()),
		"lastUpdated":        time.Now().Format(time.RFC3339),
	}
	if s.stats != nil {
		info := s.stats.Info()
		stats["lastScannedBlock"] = info.LastScannedBlock
		stats["scanCycles"] = info.ScanCycles
	}

	c.JSON(http.StatusOK, stats)
}

// handleLogs 最近日志
func (s *Server) handleLogs(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	if s.logs == nil {
		c.JSON(http.StatusOK, []LogEntry{})
		return
	}
	c.JSON(http.StatusOK, s.logs.Recent(limit))
}

// Start 启动API服务（阻塞直到服务退出）
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.engine,
	}

	s.logger.Infof("API服务已启动: 端口=%d", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API服务异常退出: %w", err)
	}
	return nil
}

// Stop 优雅停止API服务
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("停止API服务")
	return s.httpServer.Shutdown(ctx)
}

// Engine 暴露gin引擎（测试用）
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
