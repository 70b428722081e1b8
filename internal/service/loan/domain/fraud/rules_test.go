package fraud

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	velocityReason = "User submitted more than 3 loans in past 24 hours"
	amountReason   = "Requested amount exceeds NGN 5,000,000"
	domainReason   = "Email domain used by more than 10 users"
)

func TestDefaultPolicy_Reasons(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, velocityReason, p.VelocityReason())
	assert.Equal(t, amountReason, p.AmountReason())
	assert.Equal(t, domainReason, p.DomainReason())
}

func TestPolicy_ReasonsFollowThresholds(t *testing.T) {
	p := Policy{
		VelocityLimit:   5,
		VelocityWindow:  time.Hour,
		AmountThreshold: decimal.RequireFromString("1250000.5"),
		DomainUserLimit: 42,
	}
	assert.Equal(t, "User submitted more than 5 loans in past 1 hour", p.VelocityReason())
	assert.Equal(t, "Requested amount exceeds NGN 1,250,000.5", p.AmountReason())
	assert.Equal(t, "Email domain used by more than 42 users", p.DomainReason())

	p.VelocityWindow = 90 * time.Minute
	assert.Equal(t, "User submitted more than 5 loans in past 90 minutes", p.VelocityReason())
}

func TestEvaluate_NoSignals(t *testing.T) {
	reasons := Evaluate(Facts{Amount: decimal.NewFromInt(1_000_000), RecentLoans: 1, DomainUsers: 1}, DefaultPolicy())
	assert.Empty(t, reasons)
	assert.NotNil(t, reasons)
}

func TestEvaluate_Velocity(t *testing.T) {
	p := DefaultPolicy()
	for recent, want := range map[int64]bool{0: false, 2: false, 3: true, 4: true, 50: true} {
		reasons := Evaluate(Facts{Amount: decimal.NewFromInt(100), RecentLoans: recent}, p)
		if want {
			assert.Equal(t, []string{velocityReason}, reasons, "recent=%d", recent)
		} else {
			assert.Empty(t, reasons, "recent=%d", recent)
		}
	}
}

func TestEvaluate_AmountBoundary(t *testing.T) {
	p := DefaultPolicy()
	cases := map[string]bool{
		"0":          false,
		"-10":        false,
		"4999999.99": false,
		"5000000":    false,
		"5000000.00": false,
		"5000000.01": true,
		"6000000":    true,
	}
	for amount, want := range cases {
		reasons := Evaluate(Facts{Amount: decimal.RequireFromString(amount)}, p)
		if want {
			assert.Equal(t, []string{amountReason}, reasons, amount)
		} else {
			assert.Empty(t, reasons, amount)
		}
	}
}

func TestEvaluate_DomainConcentration(t *testing.T) {
	p := DefaultPolicy()
	assert.Empty(t, Evaluate(Facts{DomainUsers: 10}, p))
	assert.Equal(t, []string{domainReason}, Evaluate(Facts{DomainUsers: 11}, p))
	assert.Equal(t, []string{domainReason}, Evaluate(Facts{DomainUsers: 12}, p))
}

func TestEvaluate_AllRulesInDeclarationOrder(t *testing.T) {
	reasons := Evaluate(Facts{
		Amount:      decimal.NewFromInt(9_000_000),
		RecentLoans: 4,
		DomainUsers: 30,
	}, DefaultPolicy())

	require.Len(t, reasons, 3)
	assert.Equal(t, []string{velocityReason, amountReason, domainReason}, reasons)
}

func TestEmailDomain(t *testing.T) {
	d, err := EmailDomain("user@x.com")
	require.NoError(t, err)
	assert.Equal(t, "x.com", d)

	d, err = EmailDomain("odd@name@y.org")
	require.NoError(t, err)
	assert.Equal(t, "name@y.org", d)

	d, err = EmailDomain("trailing@")
	require.NoError(t, err)
	assert.Equal(t, "", d)

	_, err = EmailDomain("no-at-sign")
	assert.ErrorIs(t, err, ErrMalformedEmail)
}
