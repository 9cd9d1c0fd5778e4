package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 关闭顺序（数值小的先执行）
const (
	OrderScanner = 10 // 停止扫描循环，不再产生新申请
	OrderQueue   = 20 // 等待在途申请处理完成
	OrderAPI     = 30 // 停止API服务
	OrderEvents  = 40 // 刷新并关闭事件发布器
	OrderStorage = 50 // 关闭检查点数据库
	OrderClients = 60 // 关闭RPC等外部连接
)

// DefaultShutdownTimeout 默认关闭超时
const DefaultShutdownTimeout = 30 * time.Second

// Hook 关闭钩子
type Hook struct {
	Name  string
	Order int
	Fn    func(ctx context.Context) error
}

// Manager 优雅关闭管理器
type Manager struct {
	mu      sync.Mutex
	hooks   []Hook
	timeout time.Duration
	logger  *logrus.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewManager 创建关闭管理器
func NewManager(timeout time.Duration, logger *logrus.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register 注册关闭钩子
func (m *Manager) Register(name string, order int, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, Hook{Name: name, Order: order, Fn: fn})
}

// Context 返回随关闭信号取消的根上下文
func (m *Manager) Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			m.logger.Infof("收到信号%s，开始优雅关闭", sig)
			m.Shutdown()
		case <-m.done:
		}
	}()

	return ctx
}

// Shutdown 按顺序执行全部关闭钩子
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		defer close(m.done)

		if m.cancel != nil {
			m.cancel()
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.mu.Lock()
		hooks := make([]Hook, len(m.hooks))
		copy(hooks, m.hooks)
		m.mu.Unlock()

		sort.SliceStable(hooks, func(i, j int) bool {
			return hooks[i].Order < hooks[j].Order
		})

		for _, hook := range hooks {
			m.logger.Infof("执行关闭钩子: %s", hook.Name)
			if err := hook.Fn(ctx); err != nil {
				m.logger.Errorf("关闭钩子%s失败: %v", hook.Name, err)
			}
		}

		m.logger.Info("优雅关闭完成")
	})
}

// Wait 阻塞直到关闭完成
func (m *Manager) Wait() {
	<-m.done
}
