package lib

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

const kafkaMetadataTimeoutMs = 5000

func GetKafkaProducerConfig(broker, clientId string) kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers": broker,
		"client.id":         clientId,
		"acks":              "all",
	}
}

// GetKafkaConsumerConfig gives every instance its own group so each one sees
// every message on the topic.
func GetKafkaConsumerConfig(broker, instanceId string) kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers": broker,
		"group.id":          "vmp-sse-" + instanceId,
		"auto.offset.reset": "latest",
		"retry.backoff.ms":  100,
	}
}

// KafkaTopic maps a channel name onto the characters Kafka accepts.
func KafkaTopic(channel string) string {
	return strings.NewReplacer(":", ".", "/", ".", " ", "_").Replace(channel)
}

func KafkaCreateTopics(broker string, topics ...string) ([]kafka.TopicResult, error) {
	a, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": broker,
	})
	if err != nil {
		log.Printf("Error on AdminClient: %s\n", err.Error())
		return nil, err
	}
	defer a.Close()
	topicsDef := []kafka.TopicSpecification{}
	for _, topic := range topics {
		topicsDef = append(topicsDef, kafka.TopicSpecification{
			Topic:             KafkaTopic(topic),
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	result, err := a.CreateTopics(context.Background(), topicsDef)
	if err != nil {
		log.Printf("Error creating topics: %s\n", err.Error())
		return nil, err
	}
	return result, nil
}

// KafkaChannel is the alternative event channel for deployments that run
// Kafka instead of Redis.
type KafkaChannel struct {
	broker     string
	instanceId string
	producer   *kafka.Producer

	mu        sync.Mutex
	consumers []*kafka.Consumer
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewKafkaChannel(broker, instanceId string) (*KafkaChannel, error) {
	cfg := GetKafkaProducerConfig(broker, "vmp-"+instanceId)
	p, err := kafka.NewProducer(&cfg)
	if err != nil {
		log.Printf("Error on producer: %s\n", err.Error())
		return nil, err
	}
	return &KafkaChannel{
		broker:     broker,
		instanceId: instanceId,
		producer:   p,
		done:       make(chan struct{}),
	}, nil
}

func (k *KafkaChannel) Publish(ctx context.Context, channel string, payload []byte) error {
	topic := KafkaTopic(channel)
	delivery := make(chan kafka.Event, 1)
	err := k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          payload,
	}, delivery)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			return errors.New("unexpected delivery report")
		}
		return m.TopicPartition.Error
	}
}

func (k *KafkaChannel) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	cfg := GetKafkaConsumerConfig(k.broker, k.instanceId)
	c, err := kafka.NewConsumer(&cfg)
	if err != nil {
		return err
	}
	topic := KafkaTopic(channel)
	if _, err := c.GetMetadata(&topic, false, kafkaMetadataTimeoutMs); err != nil {
		c.Close()
		return err
	}
	if err := c.SubscribeTopics([]string{topic}, nil); err != nil {
		c.Close()
		return err
	}
	k.mu.Lock()
	k.consumers = append(k.consumers, c)
	k.mu.Unlock()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for {
			select {
			case <-k.done:
				return
			default:
			}
			switch e := c.Poll(100).(type) {
			case *kafka.Message:
				handler(e.Value)
			case kafka.Error:
				log.Printf("[kafka] Consumer error on %s: %s\n", topic, e.Error())
				if e.IsFatal() {
					return
				}
			}
		}
	}()
	return nil
}

func (k *KafkaChannel) Close() error {
	k.closeOnce.Do(func() {
		close(k.done)
		k.wg.Wait()
		k.mu.Lock()
		for _, c := range k.consumers {
			if err := c.Close(); err != nil {
				log.Printf("[kafka] Error closing consumer: %s\n", err.Error())
			}
		}
		k.consumers = nil
		k.mu.Unlock()
		k.producer.Flush(kafkaMetadataTimeoutMs)
		k.producer.Close()
	})
	return nil
}
