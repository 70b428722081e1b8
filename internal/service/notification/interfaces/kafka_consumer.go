// internal/service/notification/interfaces/kafka_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/mq"
	"github.com/Abbracx/loan-be/internal/service/notification/domain"
)

// FlaggedLoanHandler 是消费者驱动的应用服务。
type FlaggedLoanHandler interface {
	HandleLoanFlagged(ctx context.Context, msg *domain.LoanFlagged) error
}

// FailureHandler 把处理失败的消息转投到重试或死信 topic。
type FailureHandler interface {
	Handle(ctx context.Context, msg kafka.Message, processingErr error) error
}

// FlaggedLoanConsumer 监听贷款标记消息并驱动通知服务。
type FlaggedLoanConsumer struct {
	reader         mq.MessageReader
	topic          string
	handler        FlaggedLoanHandler
	failureHandler FailureHandler
	delay          time.Duration
	fetchBackoff   time.Duration
	retryBackoff   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFlaggedLoanConsumer(reader mq.MessageReader, topic string, handler FlaggedLoanHandler, failureHandler FailureHandler) *FlaggedLoanConsumer {
	return &FlaggedLoanConsumer{
		reader:         reader,
		topic:          topic,
		handler:        handler,
		failureHandler: failureHandler,
		fetchBackoff:   time.Second,
		retryBackoff:   time.Second,
	}
}

// SetDelay 让重试消费者在消息写入 delay 之后才处理它。
func (a *FlaggedLoanConsumer) SetDelay(d time.Duration) {
	a.delay = d
}

// Start 在后台开始消费，直到 Stop 或 ctx 取消。
func (a *FlaggedLoanConsumer) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("✅ Kafka consumer started")
		for {
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("🛑 Kafka consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Str("topic", a.topic).Msg("could not fetch message, retrying")
				if !sleepCtx(ctx, a.fetchBackoff) {
					return
				}
				continue
			}

			if a.delay > 0 && !sleepCtx(ctx, time.Until(msg.Time.Add(a.delay))) {
				return
			}

			// 转投失败时原地重试同一条消息，提交后续 offset 会越过它
			for {
				err := a.handle(ctx, msg)
				if err == nil {
					break
				}
				logger.Ctx(ctx).Error().Err(err).Str("topic", a.topic).Int64("offset", msg.Offset).Msg("🚨 failed to hand off message, retrying")
				if !sleepCtx(ctx, a.retryBackoff) {
					return
				}
			}
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit message")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (a *FlaggedLoanConsumer) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.reader.Close(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("topic", a.topic).Msg("close reader failed")
	}
	logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("✅ Kafka consumer stopped")
}

// handle 只有在处理失败且无法转投时才返回错误。
func (a *FlaggedLoanConsumer) handle(ctx context.Context, msg kafka.Message) error {
	msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)

	processingErr := a.processMessage(msgCtx, msg)
	if processingErr == nil {
		return nil
	}
	return a.failureHandler.Handle(msgCtx, msg, processingErr)
}

func (a *FlaggedLoanConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.LoanFlagged
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "decode loan flagged message")
	}
	return a.handler.HandleLoanFlagged(ctx, &event)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
