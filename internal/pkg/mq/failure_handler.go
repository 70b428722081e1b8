// internal/pkg/mq/failure_handler.go
package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/Abbracx/loan-be/internal/pkg/logger"
)

const (
	HeaderRetryCount        = "x-retry-count"
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"
)

// FailureHandler 把处理失败的消息转投到重试 topic，超过最大次数后进入死信 topic。
type FailureHandler struct {
	retryWriter MessageWriter
	dltWriter   MessageWriter
	maxAttempts int
}

// NewFailureHandler 创建失败处理器。maxAttempts 包含第一次投递。
func NewFailureHandler(retryWriter, dltWriter MessageWriter, maxAttempts int) *FailureHandler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &FailureHandler{retryWriter: retryWriter, dltWriter: dltWriter, maxAttempts: maxAttempts}
}

// Handle 根据重试次数决定转投目标。返回 error 表示转投本身失败，调用方不应提交 offset。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, processingErr error) error {
	attempts := RetryCount(msg) + 1

	headers := append([]kafka.Header(nil), msg.Headers...)
	carrier := KafkaHeaderCarrier(headers)
	carrier.Set(HeaderRetryCount, strconv.Itoa(attempts))
	if carrier.Get(HeaderOriginalTopic) == "" {
		carrier.Set(HeaderOriginalTopic, msg.Topic)
		carrier.Set(HeaderOriginalPartition, strconv.Itoa(msg.Partition))
		carrier.Set(HeaderOriginalOffset, strconv.FormatInt(msg.Offset, 10))
	}
	carrier.Set(HeaderExceptionFqcn, fmt.Sprintf("%T", processingErr))
	carrier.Set(HeaderExceptionMessage, processingErr.Error())

	out := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: carrier}

	if attempts >= h.maxAttempts {
		logger.Ctx(ctx).Error().Err(processingErr).
			Int("attempts", attempts).
			Str("key", string(msg.Key)).
			Msg("🚨 Max attempts reached, moving message to DLT")
		return h.dltWriter.WriteMessages(ctx, out)
	}

	logger.Ctx(ctx).Warn().Err(processingErr).
		Int("attempts", attempts).
		Str("key", string(msg.Key)).
		Msg("Message processing failed, scheduling retry")
	return h.retryWriter.WriteMessages(ctx, out)
}

// RetryCount 读取消息已经失败的次数。
func RetryCount(msg kafka.Message) int {
	carrier := KafkaHeaderCarrier(msg.Headers)
	n, err := strconv.Atoi(carrier.Get(HeaderRetryCount))
	if err != nil {
		return 0
	}
	return n
}
