// internal/service/notification/interfaces/dlt_handler.go
package interfaces

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/mq"
)

// DltConsumer 监听死信队列并记录日志
type DltConsumer struct {
	reader mq.MessageReader
	topic  string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDltConsumer(reader mq.MessageReader, topic string) *DltConsumer {
	return &DltConsumer{reader: reader, topic: topic}
}

func (a *DltConsumer) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("✅ DLT consumer started")
		for {
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 DLT consumer shutting down")
					return
				}
				continue
			}

			logDeadLetter(ctx, msg)

			// 死信记录日志即视为已处理
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit dead letter")
			}
		}
	}()
	return nil
}

func (a *DltConsumer) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	_ = a.reader.Close()
	logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("✅ DLT consumer stopped")
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	headers := mq.KafkaHeaderCarrier(msg.Headers)

	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", headers.Get(mq.HeaderOriginalTopic)).
		Str("original_partition", headers.Get(mq.HeaderOriginalPartition)).
		Str("original_offset", headers.Get(mq.HeaderOriginalOffset)).
		Str("exception_fqcn", headers.Get(mq.HeaderExceptionFqcn)).
		Str("exception_message", headers.Get(mq.HeaderExceptionMessage)).
		Str("retry_count", headers.Get(mq.HeaderRetryCount)).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("🚨 CRITICAL: Dead letter message received")
}
