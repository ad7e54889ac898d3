package event

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aihub/knowledge-sync/internal/config"
	"github.com/aihub/knowledge-sync/internal/logger"
)

// handlerRetryDelay 处理失败后重试当前消息的间隔
var handlerRetryDelay = 2 * time.Second

// KafkaSource 基于Kafka消费者组的变更事件源
//
// 事件以document_id为消息键写入，同一文档落在同一分区，
// 分区内顺序消费即保证了按文档的事件顺序。
type KafkaSource struct {
	consumer sarama.ConsumerGroup
	topics   []string
}

// NewKafkaSource 创建Kafka事件源
func NewKafkaSource(cfg config.KafkaConfig) (*KafkaSource, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Version = sarama.V2_6_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	logger.Info("kafka event source initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group_id", cfg.GroupID),
		zap.String("topic", cfg.Topic))

	return &KafkaSource{
		consumer: consumerGroup,
		topics:   []string{cfg.Topic},
	}, nil
}

// Run 消费变更事件直到ctx取消
func (s *KafkaSource) Run(ctx context.Context, handler Handler) error {
	// 错误通道单独消费
	go func() {
		for err := range s.consumer.Errors() {
			logger.Error("kafka consumer error", zap.Error(err))
		}
	}()

	groupHandler := &consumerGroupHandler{handler: handler}
	for {
		select {
		case <-ctx.Done():
			logger.Info("kafka event source stopping")
			return ctx.Err()
		default:
			if err := s.consumer.Consume(ctx, s.topics, groupHandler); err != nil {
				logger.Error("kafka consume failed", zap.Error(err))
				time.Sleep(5 * time.Second)
			}
		}
	}
}

// Close 关闭消费者
func (s *KafkaSource) Close() error {
	if s.consumer != nil {
		return s.consumer.Close()
	}
	return nil
}

// consumerGroupHandler 消费者组处理器
type consumerGroupHandler struct {
	handler Handler
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 消费单个分区的消息
//
// 提交offset意味着之前的全部消息都已确认，失败的消息不能跳过，
// 否则后续消息的提交会把它一并带过。因此处理失败时阻塞重试
// 当前消息，直到成功或会话结束。
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			if err := processMessage(session.Context(), h.handler, message); err != nil {
				// 会话结束，消息未标记，rebalance后重投
				return nil
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage 处理单条消息，返回nil表示可以提交offset
//
// 畸形消息记录后视为已处理；处理失败阻塞重试直到ctx取消。
func processMessage(ctx context.Context, handler Handler, message *sarama.ConsumerMessage) error {
	evt, err := ParseChangeEvent(message.Value)
	if err != nil {
		logger.Warn("skipping malformed change event",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Error(err))
		return nil
	}

	for {
		err := handler(ctx, *evt)
		if err == nil {
			logger.Debug("change event applied",
				zap.String("document_id", evt.DocumentID),
				zap.String("type", string(evt.Type)),
				zap.Int64("offset", message.Offset))
			return nil
		}

		logger.Error("failed to apply change event, holding partition",
			zap.String("document_id", evt.DocumentID),
			zap.String("type", string(evt.Type)),
			zap.Int64("offset", message.Offset),
			zap.Error(err))

		select {
		case <-time.After(handlerRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
