package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/service/orders"
)

// HandleFunc processes a single orders.Event from Kafka
type HandleFunc func(context.Context, orders.Event) error

var (
	newConsumerGroup  = sarama.NewConsumerGroup
	consumeRetryDelay = time.Second
)

const clientID = "courier-dispatch"

// Consumer wraps a Sarama consumer group and dispatches events to a handler
type Consumer struct {
	logger  logx.Logger
	group   sarama.ConsumerGroup
	topic   string
	handler HandleFunc
}

// NewConsumer creates a new Kafka consumer. It returns nil when Kafka is not configured.
func NewConsumer(logger logx.Logger, brokers []string, groupID, topic string, h HandleFunc) (*Consumer, error) {
	// не стратую если у кафки нет настроек
	if len(brokers) == 0 || strings.TrimSpace(topic) == "" || strings.TrimSpace(groupID) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logx.Nop()
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}

	group, err := newConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		logger:  logger.With(logx.String("topic", topic), logx.String("group", groupID)),
		group:   group,
		topic:   topic,
		handler: h,
	}, nil
}

// Run consumes until ctx is done. Consume errors are logged and retried.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}

	h := &groupHandler{c: c}

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("kafka consume error",
				logx.Err(err),
				logx.Duration("retry_in", consumeRetryDelay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(consumeRetryDelay):
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close closes the consumer group
func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	return c.group.Close()
}

type groupHandler struct{ c *Consumer }

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim marks every message it is done with, including undecodable
// and permanently failing ones. A transient handler error returns without
// marking so the group redelivers the message after rebalance.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log := h.c.logger.With(logx.Int("partition", int(claim.Partition())))
	for {
		var msg *sarama.ConsumerMessage
		select {
		case <-sess.Context().Done():
			return nil
		case m, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			msg = m
		}

		if err := h.handle(sess.Context(), log, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
}

func (h *groupHandler) handle(ctx context.Context, log logx.Logger, msg *sarama.ConsumerMessage) error {
	ev, err := decodeEvent(msg.Value)
	if err != nil {
		log.Warn("order event undecodable, skipping",
			logx.Int64("offset", msg.Offset),
			logx.Err(err),
		)
		return nil
	}
	if ev.OrderID == "" {
		log.Warn("order event without order_id, skipping", logx.Int64("offset", msg.Offset))
		return nil
	}

	err = h.c.handler(ctx, ev)
	switch {
	case err == nil:
		return nil
	case IsPermanent(err):
		log.Warn("order event rejected, skipping",
			logx.Int64("offset", msg.Offset),
			logx.String("order_id", ev.OrderID),
			logx.String("status", ev.Status),
			logx.Err(err),
		)
		return nil
	default:
		log.Error("order event failed, will redeliver",
			logx.Int64("offset", msg.Offset),
			logx.String("order_id", ev.OrderID),
			logx.String("status", ev.Status),
			logx.Err(err),
		)
		return err
	}
}
