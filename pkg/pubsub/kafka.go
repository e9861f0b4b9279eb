package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

const (
	headerEventType = "event_type"
	pollTimeout     = 500 * time.Millisecond
)

// KafkaPubSub carries bus events over Kafka topics. Events are keyed by
// Event.Key, so one room's events keep their order within a partition.
//
// Each subscribed channel gets its own consumer group, so every realtime
// process sees every push command.
type KafkaPubSub struct {
	producer *kafka.Producer
	config   KafkaConfig
	done     chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// topicFor maps a bus channel to a topic name, "chat:push" to "chat-push".
func topicFor(channel string) string {
	return strings.ReplaceAll(channel, ":", "-")
}

var invalidGroupChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// NewKafkaPubSub creates the producer and makes sure the topics of channels
// exist.
func NewKafkaPubSub(cfg KafkaConfig, channels ...string) (*KafkaPubSub, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "all",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		producer: producer,
		config:   cfg,
		done:     make(chan struct{}),
		cancels:  make(map[string]context.CancelFunc),
	}
	go k.watchProducer()

	if err := k.createTopics(channels); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("could not create kafka topics, assuming they exist")
	}
	return k, nil
}

func (k *KafkaPubSub) createTopics(channels []string) error {
	if len(channels) == 0 {
		return nil
	}
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}
	specs := make([]kafka.TopicSpecification, len(channels))
	for i, ch := range channels {
		specs[i] = kafka.TopicSpecification{Topic: topicFor(ch), NumPartitions: partitions, ReplicationFactor: 1}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return err
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("topic %s: %w", r.Topic, r.Error)
		}
	}
	return nil
}

// watchProducer logs failed deliveries and client-level errors.
func (k *KafkaPubSub) watchProducer() {
	defer close(k.done)
	l := log.L()
	for ev := range k.producer.Events() {
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				l.Error().Err(e.TopicPartition.Error).
					Str("topic", *e.TopicPartition.Topic).
					Str("key", string(e.Key)).
					Msg("kafka delivery failed")
			}
		case kafka.Error:
			l.Error().Err(e).Bool("fatal", e.IsFatal()).Msg("kafka producer error")
		}
	}
}

// Publish enqueues the event and returns without waiting for the broker.
// Delivery failures are reported by watchProducer.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	topic := topicFor(channel)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.Key()),
		Value:          data,
		Headers:        []kafka.Header{{Key: headerEventType, Value: []byte(event.Type)}},
	}, nil)
	if err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	l := log.Ctx(ctx)
	l.Debug().Str("topic", topic).Str(log.FieldEventType, event.Type).Msg("event enqueued")
	return nil
}

// Subscribe starts a consumer on the channel's topic. The consumer starts
// at the latest offset: push commands sent while no process was listening
// are not replayed.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	group := k.config.GroupID
	if group == "" {
		group = "chat-realtime"
	}
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.config.Brokers,
		"group.id":           group + "-" + invalidGroupChars.ReplaceAllString(channel, "-"),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	topic := topicFor(channel)
	if err := consumer.SubscribeTopics([]string{topic}, nil); err != nil {
		_ = consumer.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	k.mu.Lock()
	if old, ok := k.cancels[channel]; ok {
		old()
	}
	k.cancels[channel] = cancel
	k.mu.Unlock()

	out := make(chan *Event, subscriberBuffer)
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.consume(subCtx, consumer, channel, out)
	}()
	return out, nil
}

// consume owns the consumer and closes it on exit.
func (k *KafkaPubSub) consume(ctx context.Context, consumer *kafka.Consumer, channel string, out chan<- *Event) {
	defer close(out)
	defer consumer.Close()

	l := log.Ctx(ctx)
	for ctx.Err() == nil {
		msg, err := consumer.ReadMessage(pollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) {
				if kerr.IsTimeout() {
					continue
				}
				if kerr.IsFatal() {
					l.Error().Err(kerr).Str("channel", channel).Msg("kafka consumer failed")
					return
				}
			}
			l.Warn().Err(err).Str("channel", channel).Msg("kafka read failed")
			continue
		}
		if !forward(ctx, l, channel, msg.Value, out) {
			return
		}
	}
}

// Close stops every consumer, then flushes and closes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	for channel, cancel := range k.cancels {
		cancel()
		delete(k.cancels, channel)
	}
	k.mu.Unlock()
	k.wg.Wait()

	if pending := k.producer.Flush(5000); pending > 0 {
		l := log.L()
		l.Warn().Int("pending", pending).Msg("kafka producer closed with undelivered events")
	}
	k.producer.Close()
	<-k.done
	return nil
}
