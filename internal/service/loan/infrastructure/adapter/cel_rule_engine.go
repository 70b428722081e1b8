package adapter

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Abbracx/loan-be/internal/service/loan/domain/fraud"
)

// CELRuleEngine 是 port.RuleEngine 的 cel-go 实现，表达式在启动时编译。
type CELRuleEngine struct {
	rules []compiledRule
}

type compiledRule struct {
	name   string
	reason string
	prg    cel.Program
}

// NewCELRuleEngine 任何一条表达式编译失败都会返回错误，服务拒绝启动。
func NewCELRuleEngine(rules []fraud.CustomRule) (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("recent_loans", cel.IntType),
		cel.Variable("domain_users", cel.IntType),
		cel.Variable("email_domain", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Reason == "" {
			return nil, fmt.Errorf("rule %q: reason is required", r.Name)
		}
		ast, iss := env.Compile(r.Expression)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, iss.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{name: r.Name, reason: r.Reason, prg: prg})
	}
	return &CELRuleEngine{rules: compiled}, nil
}

// Evaluate 按配置顺序返回命中规则的原因。单条规则出错不影响其余规则，返回第一个错误。
func (e *CELRuleEngine) Evaluate(ctx context.Context, facts fraud.Facts) ([]string, error) {
	if len(e.rules) == 0 {
		return nil, nil
	}

	amount, _ := facts.Amount.Float64()
	vars := map[string]interface{}{
		"amount":       amount,
		"recent_loans": facts.RecentLoans,
		"domain_users": facts.DomainUsers,
		"email_domain": facts.EmailDomain,
	}

	var (
		reasons  []string
		firstErr error
	)
	for _, r := range e.rules {
		if err := ctx.Err(); err != nil {
			return reasons, err
		}
		out, _, err := r.prg.Eval(vars)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %q: %w", r.name, err)
			}
			continue
		}
		hit, ok := out.Value().(bool)
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %q: expression must evaluate to bool, got %T", r.name, out.Value())
			}
			continue
		}
		if hit {
			reasons = append(reasons, r.reason)
		}
	}
	return reasons, firstErr
}

// Len 返回已编译的规则数。
func (e *CELRuleEngine) Len() int {
	return len(e.rules)
}
