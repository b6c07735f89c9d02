package mirror

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/models"
	"github.com/shubham-shewale/quote-stream/pkg/protocol"
)

var _ Sink = (*KafkaSink)(nil)

// KafkaSink writes one message per quote keyed by ticker, so every ticker
// stays on one partition.
type KafkaSink struct {
	writer KafkaWriter
}

func NewKafkaSink(writer KafkaWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// NewKafkaWriter returns an async batching writer for brokers/topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Write(ctx context.Context, batch *models.Batch) error {
	msgs := make([]kafka.Message, 0, len(batch.Quotes))
	for _, q := range batch.Quotes {
		payload, err := protocol.EncodeQuote(q)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(q.Ticker), Value: payload})
	}
	if len(msgs) == 0 {
		return nil
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

// Close flushes buffered messages.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// TopicCreator makes sure the mirror topic exists before the writer starts.
type TopicCreator struct {
	logger *zap.Logger
	dialer KafkaDialer
	sleep  func(time.Duration)
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, sleep func(time.Duration)) *TopicCreator {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &TopicCreator{logger: logger, dialer: dialer, sleep: sleep}
}

// Create is best effort: failures are logged and the writer will surface
// any remaining problem on its first write.
func (tc *TopicCreator) Create(ctx context.Context, brokers []string, topic string, partitions int) {
	var conn KafkaConn
	var err error

	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
	}
	if conn == nil {
		tc.logger.Warn("Failed to dial brokers", zap.Strings("brokers", brokers), zap.Error(err))
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		tc.logger.Warn("Failed to get controller", zap.Error(err))
		return
	}

	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		tc.logger.Warn("Failed to dial controller", zap.Error(err))
		return
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		tc.logger.Info("Topic creation finished (might already exist)", zap.String("topic", topic), zap.Error(err))
	}

	for i := 0; i < 5; i++ {
		parts, err := conn.ReadPartitions(topic)
		if err == nil && len(parts) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(parts)))
			return
		}
		tc.sleep(200 * time.Millisecond)
	}
	tc.logger.Warn("Timed out waiting for topic", zap.String("topic", topic))
}
