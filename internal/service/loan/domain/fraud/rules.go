// internal/service/loan/domain/fraud/rules.go
package fraud

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrMalformedEmail = errors.New("email address has no domain part")

// Facts 是一次评估所需的全部输入，由应用层在评估前收集。
type Facts struct {
	Amount      decimal.Decimal
	RecentLoans int64 // 窗口内（含本次）提交的申请数
	DomainUsers int64 // 同邮箱域名的用户数
	EmailDomain string
}

type rule func(Facts, Policy) (string, bool)

// 声明顺序即原因的输出顺序。
var builtinRules = []rule{
	velocityRule,
	amountRule,
	domainRule,
}

// Evaluate 依次执行所有内置规则，返回触发的原因列表。纯函数，无任何 I/O。
func Evaluate(f Facts, p Policy) []string {
	reasons := make([]string, 0, len(builtinRules))
	for _, r := range builtinRules {
		if reason, hit := r(f, p); hit {
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

func velocityRule(f Facts, p Policy) (string, bool) {
	return p.VelocityReason(), f.RecentLoans >= p.VelocityLimit
}

// 恰好等于阈值不触发。
func amountRule(f Facts, p Policy) (string, bool) {
	return p.AmountReason(), f.Amount.GreaterThan(p.AmountThreshold)
}

func domainRule(f Facts, p Policy) (string, bool) {
	return p.DomainReason(), f.DomainUsers > p.DomainUserLimit
}

// EmailDomain 返回第一个 '@' 之后的部分。
func EmailDomain(email string) (string, error) {
	_, domain, found := strings.Cut(email, "@")
	if !found {
		return "", ErrMalformedEmail
	}
	return domain, nil
}
