// Package policy evaluates the admission rules a checkout must pass before
// the SDK is invoked.
//
// Rules are govaluate expressions over the checkout parameters:
//
//	amount         float64  checkout total
//	tip            float64  explicit tip, 0 when absent
//	tip_on_reader  bool     caller asked for the tip on the reader
//	currency       string   requested currency code, "" for the merchant default
//
// A rule that evaluates to false rejects the checkout with its Code.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/reader-bridge/internal/call"
)

// MinimumAmount is the smallest total the SDK accepts.
const MinimumAmount = 1.0

// RuleConfig describes one admission rule.
type RuleConfig struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	// Code is the rejection discriminator; defaults to INVALID_AMOUNT.
	Code string `yaml:"code"`
	// Message is the rejection text; defaults to "checkout rejected by <Name>".
	Message string `yaml:"message"`
}

// DefaultRules enforces the SDK's minimum amount.
func DefaultRules() []RuleConfig {
	return []RuleConfig{{
		Name:       "MinimumAmount",
		Expression: fmt.Sprintf("amount >= %.2f", MinimumAmount),
		Code:       call.CodeInvalidAmount,
		Message:    "amount is required and must be at least 1.00",
	}}
}

// CheckoutParams are the values exposed to rule expressions.
type CheckoutParams struct {
	Amount      float64
	Tip         float64
	TipOnReader bool
	Currency    string
}

func (p CheckoutParams) parameters() map[string]interface{} {
	return map[string]interface{}{
		"amount":        p.Amount,
		"tip":           p.Tip,
		"tip_on_reader": p.TipOnReader,
		"currency":      p.Currency,
	}
}

type rule struct {
	cfg  RuleConfig
	expr *govaluate.EvaluableExpression
}

// CheckoutPolicy holds compiled admission rules.
type CheckoutPolicy struct {
	rules []rule
}

// NewCheckoutPolicy compiles DefaultRules followed by extra. The minimum
// amount rule is always evaluated first.
func NewCheckoutPolicy(extra []RuleConfig) (*CheckoutPolicy, error) {
	rules := append(DefaultRules(), extra...)
	p := &CheckoutPolicy{}
	for _, cfg := range rules {
		expr, err := govaluate.NewEvaluableExpression(cfg.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: failed to compile rule %q: %w", cfg.Name, err)
		}
		if cfg.Code == "" {
			cfg.Code = call.CodeInvalidAmount
		}
		if cfg.Message == "" {
			cfg.Message = fmt.Sprintf("checkout rejected by %s", cfg.Name)
		}
		p.rules = append(p.rules, rule{cfg: cfg, expr: expr})
	}
	return p, nil
}

// Evaluate runs the rules in order and returns the rejection of the first
// one that does not hold, or nil. A rule that fails to evaluate or yields a
// non-boolean rejects with INVALID_REQUEST.
func (p *CheckoutPolicy) Evaluate(params CheckoutParams) *call.Error {
	vars := params.parameters()
	for _, r := range p.rules {
		res, err := r.expr.Evaluate(vars)
		if err != nil {
			return call.WrapError(call.CodeInvalidRequest, fmt.Sprintf("rule %s could not be evaluated", r.cfg.Name), err)
		}
		ok, isBool := res.(bool)
		if !isBool {
			return call.NewError(call.CodeInvalidRequest, fmt.Sprintf("rule %s did not yield a boolean", r.cfg.Name))
		}
		if !ok {
			return call.NewError(r.cfg.Code, r.cfg.Message)
		}
	}
	return nil
}
