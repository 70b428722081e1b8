package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Abbracx/loan-be/internal/pkg/mq"
	"github.com/Abbracx/loan-be/internal/service/loan/domain"
)

// NotificationKafkaAdapter 实现了 port.NotificationProducer 接口。
type NotificationKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewNotificationKafkaAdapter(writer mq.MessageWriter) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

// SendLoanFlagged 以 loan_id 为 key，同一笔申请的通知落在同一分区。
func (a *NotificationKafkaAdapter) SendLoanFlagged(ctx context.Context, event *domain.LoanFlaggedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal loan flagged event: %w", err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(event.LoanID), payload)
}
