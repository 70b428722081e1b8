package port

import (
	"context"

	"github.com/Abbracx/loan-be/internal/service/loan/domain"
)

// NotificationProducer 是管理员通知的出站端口，实现方把事件投递到消息队列。
type NotificationProducer interface {
	SendLoanFlagged(ctx context.Context, event *domain.LoanFlaggedEvent) error
}

// FlagFeed 向在线的管理员实时推送被标记的申请。
type FlagFeed interface {
	Publish(event *domain.LoanFlaggedEvent)
}
