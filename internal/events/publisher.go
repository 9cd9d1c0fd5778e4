package events

import (
	"encoding/json"
	"fmt"
	"time"

	"agifund/internal/config"
	"agifund/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// Publisher 管道事件发布器
//
// 把管道事件作为JSON发布到Kafka，供外部消费方订阅。发布是
// 尽力而为的：失败只记日志并丢弃，绝不阻塞或中断管道。
// 未启用时所有调用都是空操作。
type Publisher struct {
	producer sarama.SyncProducer
	topics   map[string]string
	enabled  bool
	logger   *logrus.Logger
}

// NewPublisher 创建事件发布器
func NewPublisher(cfg *config.EventsConfig, logger *logrus.Logger) (*Publisher, error) {
	p := &Publisher{
		topics: cfg.Topics,
		logger: logger,
	}
	if !cfg.Enabled {
		logger.Info("管道事件输出未启用")
		return p, nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	p.producer = producer
	p.enabled = true
	logger.Infof("管道事件输出已启用: brokers=%v", cfg.Brokers)
	return p, nil
}

// Publish 发布管道事件（尽力而为）
func (p *Publisher) Publish(event *models.PipelineEvent) {
	if !p.enabled {
		return
	}

	topic := p.topicFor(event.Type)
	if topic == "" {
		p.logger.Debugf("事件类型%s没有配置主题，丢弃", event.Type)
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warnf("序列化管道事件失败: %v", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.TxHash),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Warnf("发布管道事件失败，丢弃: %v", err)
		return
	}

	p.logger.Debugf("管道事件已发布: 类型=%s 主题=%s 分区=%d 偏移=%d", event.Type, topic, partition, offset)
}

// topicFor 事件类型到主题的映射
func (p *Publisher) topicFor(eventType string) string {
	switch eventType {
	case models.EventApplicationFunded:
		return p.topics["fundings"]
	case models.EventApplicationRejected:
		return p.topics["rejections"]
	case models.EventRevenueReceived:
		return p.topics["revenue"]
	case models.EventApplicationDiscovered, models.EventApplicationNeedsInfo, models.EventApplicationErrored:
		return p.topics["applications"]
	default:
		return ""
	}
}

// Close 关闭生产者
func (p *Publisher) Close() error {
	if p.producer != nil {
		p.logger.Info("关闭管道事件发布器")
		return p.producer.Close()
	}
	return nil
}
