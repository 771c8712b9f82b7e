package mq

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registry-client-sol/internal/consts"
	"registry-client-sol/internal/logic/domain"
	"registry-client-sol/internal/types"
)

type fakeProducer struct {
	mu       sync.Mutex
	messages []*kafka.Message

	produceErr  error // Produce 直接返回的错误
	deliveryErr error // 投递回调中的错误
	silent      bool  // 不回调（模拟 ack 超时）
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()

	if !f.silent {
		delivered := *msg
		delivered.TopicPartition.Error = f.deliveryErr
		deliveryChan <- &delivered
	}
	return nil
}

func TestSendKafkaJobs(t *testing.T) {
	p := &fakeProducer{}
	jobs := []*KafkaJob{
		{Topic: "t", Partition: 0, Value: []byte("a")},
		{Topic: "t", Partition: 1, Value: []byte("b")},
		{Topic: "t", Partition: 2, Value: []byte("c")},
	}

	ok, failed := SendKafkaJobs(context.Background(), p, jobs, time.Second)
	assert.Len(t, ok, 3)
	assert.Empty(t, failed)
	assert.Len(t, p.messages, 3)
}

func TestSendKafkaJobs_Failures(t *testing.T) {
	jobs := []*KafkaJob{{Topic: "t", Value: []byte("a")}}

	_, failed := SendKafkaJobs(context.Background(), &fakeProducer{produceErr: errors.New("queue full")}, jobs, time.Second)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Err.Error(), "queue full")

	_, failed = SendKafkaJobs(context.Background(), &fakeProducer{deliveryErr: kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)}, jobs, time.Second)
	require.Len(t, failed, 1)

	_, failed = SendKafkaJobs(context.Background(), &fakeProducer{silent: true}, jobs, 20*time.Millisecond)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Err.Error(), "delivery timeout")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, failed = SendKafkaJobs(ctx, &fakeProducer{silent: true}, jobs, time.Second)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, context.Canceled)
}

func TestReceiptPublisher(t *testing.T) {
	p := &fakeProducer{}
	pub := NewReceiptPublisher(p, "registry-receipts", 4, time.Second)

	owner := types.PubkeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	ev := &domain.ReceiptEvent{
		Operation:  domain.OperationRegister,
		Program:    consts.DefaultRegistryProgram,
		Owner:      owner,
		Model:      "m1",
		Signature:  "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
		Slot:       4242,
		Commitment: "confirmed",
		Outcome:    "Committed",
		Success:    true,
	}
	require.NoError(t, pub.Publish(context.Background(), ev))

	_, err := uuid.Parse(ev.EventID)
	assert.NoError(t, err)
	assert.NotZero(t, ev.Timestamp)

	require.Len(t, p.messages, 1)
	msg := p.messages[0]
	assert.Equal(t, "registry-receipts", *msg.TopicPartition.Topic)
	assert.Equal(t, []byte(ev.Signature), msg.Key)
	assert.GreaterOrEqual(t, msg.TopicPartition.Partition, int32(0))
	assert.Less(t, msg.TopicPartition.Partition, int32(4))

	got, err := DecodeReceiptEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	// 同一 owner 始终进入同一分区
	require.NoError(t, pub.Publish(context.Background(), &domain.ReceiptEvent{Owner: owner, Signature: "x"}))
	assert.Equal(t, msg.TopicPartition.Partition, p.messages[1].TopicPartition.Partition)
}

func TestReceiptPublisher_DeliveryError(t *testing.T) {
	p := &fakeProducer{deliveryErr: kafka.NewError(kafka.ErrUnknownTopicOrPart, "unknown topic", false)}
	pub := NewReceiptPublisher(p, "missing", 1, time.Second)

	err := pub.Publish(context.Background(), &domain.ReceiptEvent{Signature: "sig"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sig")
}

func TestReceiptPublisher_RealKafka(t *testing.T) {
	conn, err := net.DialTimeout("tcp", "127.0.0.1:9092", 200*time.Millisecond)
	if err != nil {
		t.Skip("kafka not reachable on 127.0.0.1:9092")
	}
	_ = conn.Close()

	topic := "registry-receipts-test"
	producer, err := NewKafkaProducer(KafkaProducerOption{
		Brokers: "127.0.0.1:9092",
		Topics:  []TopicOption{{Topic: topic, Partitions: 1}},
	})
	require.NoError(t, err)
	defer producer.Close()

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": "127.0.0.1:9092",
		"group.id":          "registry-test-" + uuid.NewString(),
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.Subscribe(topic, nil))

	ev := &domain.ReceiptEvent{
		Operation: domain.OperationInitialize,
		Program:   consts.DefaultRegistryProgram,
		Signature: uuid.NewString(),
		Outcome:   "Committed",
		Success:   true,
	}
	pub := NewReceiptPublisher(producer, topic, 1, 10*time.Second)
	require.NoError(t, pub.Publish(context.Background(), ev))

	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := consumer.ReadMessage(time.Second)
		if err != nil {
			continue
		}
		got, err := DecodeReceiptEvent(msg.Value)
		require.NoError(t, err)
		if got.Signature == ev.Signature {
			assert.Equal(t, ev, got)
			return
		}
	}
	t.Fatal("receipt not consumed within deadline")
}
