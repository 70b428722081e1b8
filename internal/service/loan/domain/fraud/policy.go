// internal/service/loan/domain/fraud/policy.go
package fraud

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Policy 是欺诈规则的全部阈值。
type Policy struct {
	VelocityLimit   int64
	VelocityWindow  time.Duration
	AmountThreshold decimal.Decimal
	DomainUserLimit int64
	DomainCacheTTL  time.Duration
	CustomRules     []CustomRule
}

// CustomRule 是配置的附加规则，Expression 为 CEL 表达式。
type CustomRule struct {
	Name       string
	Expression string
	Reason     string
}

// DefaultPolicy 三条内置规则的默认阈值。
func DefaultPolicy() Policy {
	return Policy{
		VelocityLimit:   3,
		VelocityWindow:  24 * time.Hour,
		AmountThreshold: decimal.NewFromInt(5_000_000),
		DomainUserLimit: 10,
		DomainCacheTTL:  time.Hour,
	}
}

func (p Policy) VelocityReason() string {
	return fmt.Sprintf("User submitted more than %d loans in past %s", p.VelocityLimit, humanizeWindow(p.VelocityWindow))
}

func (p Policy) AmountReason() string {
	return fmt.Sprintf("Requested amount exceeds NGN %s", groupThousands(p.AmountThreshold))
}

func (p Policy) DomainReason() string {
	return fmt.Sprintf("Email domain used by more than %d users", p.DomainUserLimit)
}

func humanizeWindow(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int64(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int64(d/time.Minute))
	default:
		return d.String()
	}
}

// groupThousands 5000000 -> 5,000,000；保留非零小数部分。
func groupThousands(d decimal.Decimal) string {
	s := d.String()
	intPart, frac, _ := strings.Cut(s, ".")
	sign := ""
	if strings.HasPrefix(intPart, "-") {
		sign, intPart = "-", intPart[1:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String()
	if frac != "" {
		out += "." + frac
	}
	return out
}
