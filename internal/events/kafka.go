package events

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

// KafkaConfig configures the event producer.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

var _ order.Notifier = (*Kafka)(nil)

// Kafka publishes events to a topic, keyed by order id so that every change
// of one order lands on the same partition in commit order.
type Kafka struct {
	client   sarama.Client
	producer sarama.SyncProducer
	topic    string
}

// NewKafka connects to the brokers and returns a synchronous publisher.
func NewKafka(cfg KafkaConfig, lg *zap.Logger) (*Kafka, error) {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Net.DialTimeout = 30 * time.Second
	sc.Net.ReadTimeout = 30 * time.Second
	sc.Net.WriteTimeout = 30 * time.Second

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka client")
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create kafka producer")
	}

	lg.Info("Kafka producer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return &Kafka{client: client, producer: producer, topic: cfg.Topic}, nil
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

// Notify publishes e and waits for the broker acknowledgement.
func (k *Kafka) Notify(ctx context.Context, e order.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     k.topic,
		Key:       sarama.StringEncoder(e.OrderID),
		Value:     sarama.ByteEncoder(Encode(e)),
		Timestamp: e.At,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s for order %s", e.Type, e.OrderID)
	}
	return nil
}

// Check refreshes topic metadata, which fails when no broker is reachable.
func (k *Kafka) Check(context.Context) error {
	if k.client == nil {
		return nil
	}
	if err := k.client.RefreshMetadata(k.topic); err != nil {
		return errors.Wrap(err, "refresh kafka metadata")
	}
	return nil
}

// Close flushes the producer and closes the client.
func (k *Kafka) Close() error {
	err := k.producer.Close()
	if k.client != nil && !k.client.Closed() {
		if cerr := k.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
