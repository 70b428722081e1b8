// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FraudFlagsTotal 按原因统计写入的欺诈标记数量。
	FraudFlagsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loan",
		Name:      "fraud_flags_total",
		Help:      "Number of fraud flags recorded, by reason.",
	}, []string{"reason"})

	// LoansCreatedTotal 按创建后的状态统计贷款申请。
	LoansCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loan",
		Name:      "applications_created_total",
		Help:      "Number of loan applications created, by resulting status.",
	}, []string{"status"})

	ReviewActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loan",
		Name:      "review_actions_total",
		Help:      "Admin review actions applied, by action.",
	}, []string{"action"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification",
		Name:      "emails_total",
		Help:      "Admin notification emails, by outcome.",
	}, []string{"outcome"})

	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts, by outcome.",
	}, []string{"outcome"})
)
