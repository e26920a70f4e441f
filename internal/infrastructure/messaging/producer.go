package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/pkg/tracer"
)

var otelTracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := otelTracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	if traceID := tracer.TraceID(ctx); traceID != "" {
		msg.SetMetadata("trace_id", traceID)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishDebitRetry 发布待重放的扣费
func (p *Producer) PublishDebitRetry(ctx context.Context, retry *DebitRetryMessage) (string, error) {
	if retry.RequestID == "" {
		return "", fmt.Errorf("debit retry requires a request id")
	}
	msg, err := NewMessage(retry.RequestID, MessageTypeDebitRetry, retry.UserID, retry)
	if err != nil {
		return "", err
	}
	msg.SetMetadata("request_id", retry.RequestID)
	msg.SetMetadata("tool", retry.ToolName)

	return p.Publish(ctx, StreamDebitRetry, msg)
}

// EnqueueDebit 实现 service.DebitRetryQueue
func (p *Producer) EnqueueDebit(ctx context.Context, debit service.PendingDebit) error {
	_, err := p.PublishDebitRetry(ctx, &DebitRetryMessage{
		RequestID:       debit.RequestID,
		UserID:          debit.UserID,
		Amount:          debit.Amount,
		ToolName:        debit.ToolName,
		ToolDisplayName: debit.ToolDisplayName,
		InputPreview:    debit.InputPreview,
		OutputPreview:   debit.OutputPreview,
		LastError:       debit.LastError,
		FailedAt:        debit.FailedAt,
	})
	return err
}

// PendingDebit 转换为账本重放所需的扣费
func (m *DebitRetryMessage) PendingDebit() service.PendingDebit {
	return service.PendingDebit{
		RequestID:       m.RequestID,
		UserID:          m.UserID,
		Amount:          m.Amount,
		ToolName:        m.ToolName,
		ToolDisplayName: m.ToolDisplayName,
		InputPreview:    m.InputPreview,
		OutputPreview:   m.OutputPreview,
		LastError:       m.LastError,
		FailedAt:        m.FailedAt,
	}
}
