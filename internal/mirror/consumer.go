package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sales-engine/internal/config"
	"sales-engine/internal/domain"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Subscription is the handle returned by StartMirroring. Stop releases the
// feed subscription; it is idempotent and safe to call when the consumer
// already shut down.
type Subscription struct {
	cancel context.CancelFunc
	group  sarama.ConsumerGroup
	done   chan struct{}
	logger *zap.Logger
	once   sync.Once
}

// Stop releases the subscription and waits for the consume loop to exit.
func (sub *Subscription) Stop() {
	sub.once.Do(func() {
		sub.cancel()
		<-sub.done
		if err := sub.group.Close(); err != nil {
			sub.logger.Warn("Failed to close consumer group", zap.Error(err))
		}
		sub.logger.Info("Stock feed subscription stopped")
	})
}

// StartMirroring subscribes to live updates of the remote stock collection
// filtered by warehouse. Updates are applied until Stop is called or the
// parent context is cancelled.
func (s *Service) StartMirroring(ctx context.Context, cfg *config.Config, warehouse *domain.WarehouseRef) (*Subscription, error) {
	s.logger.Info("🔌 Creating stock feed consumer",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group_id", cfg.KafkaGroupID),
		zap.String("warehouse_id", warehouse.ID),
	)

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.KafkaClientID
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.KafkaBrokers, cfg.KafkaGroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		cancel: cancel,
		group:  group,
		done:   make(chan struct{}),
		logger: s.logger,
	}

	handler := &feedHandler{
		service:     s,
		warehouseID: warehouse.ID,
		logger:      s.logger,
	}
	topics := []string{cfg.KafkaTopicStock}

	go func() {
		defer close(sub.done)
		for {
			if err := group.Consume(subCtx, topics, handler); err != nil {
				s.logger.Error("Error from stock feed consumer", zap.Error(err))
				return
			}
			if subCtx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		for err := range group.Errors() {
			s.logger.Error("Stock feed consumer error", zap.Error(err))
		}
	}()

	s.logger.Info("✅ Stock feed subscription started",
		zap.Strings("topics", topics),
		zap.String("warehouse_id", warehouse.ID),
	)

	return sub, nil
}

// feedHandler applies stock-feed messages as mirror updates
type feedHandler struct {
	service     *Service
	warehouseID string
	logger      *zap.Logger
}

// Setup is run at the beginning of a new session
func (h *feedHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session
func (h *feedHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes stock feed messages. A failing message is logged
// and marked; one bad document never stalls the mirror.
func (h *feedHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			eventType := extractEventType(message.Headers)
			if eventType == "" {
				h.logger.Warn("Message without event type, skipping",
					zap.String("topic", message.Topic),
					zap.Int64("offset", message.Offset),
				)
				session.MarkMessage(message, "")
				continue
			}

			if err := h.service.HandleFeedEvent(session.Context(), h.warehouseID, eventType, message.Value); err != nil {
				h.logger.Error("Failed to apply stock feed event",
					zap.String("event_type", eventType),
					zap.String("topic", message.Topic),
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// extractEventType extracts event type from message headers
func extractEventType(headers []*sarama.RecordHeader) string {
	for _, header := range headers {
		if string(header.Key) == "event-type" {
			return string(header.Value)
		}
	}
	return ""
}
