package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
)

// DefaultPacing 相邻申请处理之间的间隔
const DefaultPacing = 2 * time.Second

// ApplicationEvaluator 申请评审接口
type ApplicationEvaluator interface {
	Evaluate(ctx context.Context, app *models.Application) (*models.EvaluationResult, error)
}

// DecisionExecutor 决定执行接口
type DecisionExecutor interface {
	ExecuteFunding(ctx context.Context, app *models.Application, result *models.EvaluationResult) error
	HandleRejection(ctx context.Context, app *models.Application, result *models.EvaluationResult) error
	HandleNeedsInfo(ctx context.Context, app *models.Application, result *models.EvaluationResult) error
}

// FailureLedger 评审失败终态记录接口
type FailureLedger interface {
	SaveEvaluationFailure(rec *models.EvaluationFailure) error
}

// OperatorNotifier 运营通知接口
type OperatorNotifier interface {
	Notify(ctx context.Context, message string)
}

// EventPublisher 管道事件发布接口
type EventPublisher interface {
	Publish(event *models.PipelineEvent)
}

// Orchestrator 申请处理编排器
//
// 新申请入队后由单消费者按FIFO顺序逐个处理，任一时刻最多
// 一个申请在评审/执行中，相邻处理之间留固定间隔。
type Orchestrator struct {
	evaluator ApplicationEvaluator
	executor  DecisionExecutor
	ledger    FailureLedger
	operator  OperatorNotifier
	events    EventPublisher
	pacing    time.Duration
	logger    *logrus.Logger

	mu       sync.Mutex
	queue    []*models.Application
	draining bool

	wg sync.WaitGroup
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	evaluator ApplicationEvaluator,
	executor DecisionExecutor,
	ledger FailureLedger,
	operator OperatorNotifier,
	events EventPublisher,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		evaluator: evaluator,
		executor:  executor,
		ledger:    ledger,
		operator:  operator,
		events:    events,
		pacing:    DefaultPacing,
		logger:    logger,
	}
}

// Enqueue 申请入队
//
// 队列空闲时启动消费协程，已有消费协程在跑时只追加。
func (o *Orchestrator) Enqueue(ctx context.Context, app *models.Application) {
	o.mu.Lock()
	o.queue = append(o.queue, app)
	pending := len(o.queue)
	start := !o.draining
	if start {
		o.draining = true
	}
	o.mu.Unlock()

	o.logger.Infof("申请已入队: %s (%s)，待处理=%d", app.Data.Agent, app.TxHash, pending)

	if o.events != nil {
		o.events.Publish(&models.PipelineEvent{
			Type:      models.EventApplicationDiscovered,
			TxHash:    app.TxHash,
			AgentName: app.Data.Agent,
			Timestamp: time.Now().Unix(),
		})
	}

	if start {
		o.wg.Add(1)
		go o.drain(ctx)
	}
}

// QueueLength 当前队列长度
func (o *Orchestrator) QueueLength() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Wait 等待在途处理全部结束
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// drain 单消费者出队循环
func (o *Orchestrator) drain(ctx context.Context) {
	defer o.wg.Done()

	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.draining = false
			o.mu.Unlock()
			return
		}
		app := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		o.process(ctx, app)

		select {
		case <-ctx.Done():
			o.mu.Lock()
			dropped := len(o.queue)
			o.queue = nil
			o.draining = false
			o.mu.Unlock()
			if dropped > 0 {
				o.logger.Warnf("编排器停止，丢弃队列中%d个未处理申请（交易已标记处理，扫描不会重新发现，需人工重新入队）", dropped)
			}
			return
		case <-time.After(o.pacing):
		}
	}
}

// process 处理单个申请
func (o *Orchestrator) process(ctx context.Context, app *models.Application) {
	result, err := o.evaluator.Evaluate(ctx, app)
	if err != nil {
		o.recordFailure(ctx, app, err)
		return
	}

	if err := o.dispatch(ctx, app, result); err != nil {
		o.logger.Errorf("执行决定失败: %s 决定=%s 错误=%v", app.TxHash, result.Decision, err)
		if o.operator != nil {
			o.operator.Notify(ctx, fmt.Sprintf("⚠️ 决定执行失败\n代理: %s\n决定: %s\n错误: %v",
				app.Data.Agent, result.Decision, err))
		}
	}
}

// dispatch 按决定分发（穷举所有分支）
func (o *Orchestrator) dispatch(ctx context.Context, app *models.Application, result *models.EvaluationResult) error {
	switch result.Decision {
	case models.DecisionApproved:
		return o.executor.ExecuteFunding(ctx, app, result)
	case models.DecisionRejected:
		return o.executor.HandleRejection(ctx, app, result)
	case models.DecisionNeedsInfo:
		return o.executor.HandleNeedsInfo(ctx, app, result)
	default:
		return fmt.Errorf("未知的评审决定: %q", result.Decision)
	}
}

// recordFailure 评审失败落终态账并告警，不自动重试
func (o *Orchestrator) recordFailure(ctx context.Context, app *models.Application, evalErr error) {
	o.logger.Errorf("评审失败: %s 错误=%v", app.TxHash, evalErr)

	rec := &models.EvaluationFailure{
		ApplicationID: app.TxHash,
		AgentName:     app.Data.Agent,
		TwitterHandle: app.Data.TwitterHandle(),
		Error:         evalErr.Error(),
		Timestamp:     time.Now().Unix(),
	}
	if err := o.ledger.SaveEvaluationFailure(rec); err != nil {
		o.logger.Errorf("保存评审失败记录失败: %v", err)
	}

	if o.events != nil {
		o.events.Publish(&models.PipelineEvent{
			Type:      models.EventApplicationErrored,
			TxHash:    app.TxHash,
			AgentName: app.Data.Agent,
			Timestamp: time.Now().Unix(),
			Payload:   rec,
		})
	}

	if o.operator != nil {
		o.operator.Notify(ctx, fmt.Sprintf("🚨 申请评审失败，需人工跟进\n代理: %s\n交易: %s\n错误: %v",
			app.Data.Agent, app.TxHash, evalErr))
	}
}
