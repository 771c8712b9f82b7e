package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"registry-client-sol/internal/logic/domain"
	"registry-client-sol/internal/types"
	"registry-client-sol/internal/utils"
)

// 事件类型（消息前 4 字节）
const (
	EventTypeReceipt uint32 = 1
)

// ReceiptPublisher 将交易回执发布到 Kafka。同一 owner 的事件落在同一分区，保证消费顺序。
type ReceiptPublisher struct {
	producer   Producer
	topic      string
	partitions uint32
	timeout    time.Duration
}

func NewReceiptPublisher(producer Producer, topic string, partitions int, timeout time.Duration) *ReceiptPublisher {
	if partitions <= 0 {
		partitions = 1
	}
	return &ReceiptPublisher{
		producer:   producer,
		topic:      topic,
		partitions: uint32(partitions),
		timeout:    timeout,
	}
}

// Publish EventID / Timestamp 为空时自动填充
func (p *ReceiptPublisher) Publish(ctx context.Context, ev *domain.ReceiptEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	value, err := EncodeReceiptEvent(ev)
	if err != nil {
		return err
	}

	job := &KafkaJob{
		Topic:     p.topic,
		Partition: utils.OwnerPartition(ev.Owner, p.partitions),
		Key:       []byte(ev.Signature),
		Value:     value,
	}
	_, failed := SendKafkaJobs(ctx, p.producer, []*KafkaJob{job}, p.timeout)
	if len(failed) > 0 {
		return fmt.Errorf("publish receipt %s: %w", ev.Signature, failed[0].Err)
	}
	return nil
}

func EncodeReceiptEvent(ev *domain.ReceiptEvent) ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"event_id":       ev.EventID,
		"operation":      string(ev.Operation),
		"program":        ev.Program.String(),
		"owner":          ev.Owner.String(),
		"model":          ev.Model,
		"signature":      ev.Signature,
		"slot":           ev.Slot,
		"commitment":     ev.Commitment,
		"outcome":        ev.Outcome,
		"success":        ev.Success,
		"failure_reason": ev.FailureReason,
		"timestamp":      ev.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("build receipt struct: %w", err)
	}
	return utils.EncodeEvent(EventTypeReceipt, msg)
}

// DecodeReceiptEvent 消费端使用
func DecodeReceiptEvent(data []byte) (*domain.ReceiptEvent, error) {
	var msg structpb.Struct
	eventType, err := utils.DecodeEvent(data, &msg)
	if err != nil {
		return nil, err
	}
	if eventType != EventTypeReceipt {
		return nil, fmt.Errorf("unexpected event type %d", eventType)
	}

	f := msg.GetFields()
	ev := &domain.ReceiptEvent{
		EventID:       f["event_id"].GetStringValue(),
		Operation:     domain.Operation(f["operation"].GetStringValue()),
		Model:         f["model"].GetStringValue(),
		Signature:     f["signature"].GetStringValue(),
		Slot:          uint64(f["slot"].GetNumberValue()),
		Commitment:    f["commitment"].GetStringValue(),
		Outcome:       f["outcome"].GetStringValue(),
		Success:       f["success"].GetBoolValue(),
		FailureReason: f["failure_reason"].GetStringValue(),
		Timestamp:     int64(f["timestamp"].GetNumberValue()),
	}
	if ev.Program, err = types.TryPubkeyFromBase58(f["program"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if ev.Owner, err = types.TryPubkeyFromBase58(f["owner"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	return ev, nil
}
