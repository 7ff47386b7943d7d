// Package pricing evaluates the checkout discount rule. Rules are CEL
// expressions over the order facts, so merchandising can change the discount
// policy through configuration without a deploy.
package pricing

import (
	"context"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/service/order/domain/port"
)

// DefaultRule gives 10% off orders of 5000.00 or more in minor units.
const DefaultRule = `total >= 500000 ? total / 10 : 0`

// Engine compiles one discount rule at construction and evaluates it per
// order. A rule must yield an int, interpreted as the discount in minor
// units; results outside [0, total] are clamped.
type Engine struct {
	program cel.Program
	tracer  trace.Tracer
}

func NewEngine(rule string) (*Engine, error) {
	if rule == "" {
		rule = DefaultRule
	}
	env, err := cel.NewEnv(
		cel.Variable("total", cel.IntType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("account_id", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build cel environment")
	}
	ast, issues := env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile discount rule %q", rule)
	}
	if ast.OutputType() != cel.IntType {
		return nil, errors.Errorf("discount rule must yield int, got %s", ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build cel program")
	}
	return &Engine{
		program: program,
		tracer:  otel.Tracer("pricing"),
	}, nil
}

// Discount implements the order pipeline's discount port.
func (e *Engine) Discount(ctx context.Context, fact port.PricingFact) (int64, error) {
	_, span := e.tracer.Start(ctx, "pricing.Discount")
	defer span.End()

	out, _, err := e.program.Eval(map[string]interface{}{
		"total":      fact.Total,
		"item_count": int64(fact.ItemCount),
		"account_id": fact.AccountID,
	})
	if err != nil {
		return 0, errors.Wrap(err, "evaluate discount rule")
	}
	discount, ok := out.Value().(int64)
	if !ok {
		return 0, errors.Errorf("discount rule yielded %T, want int64", out.Value())
	}
	if discount < 0 {
		return 0, nil
	}
	if discount > fact.Total {
		return fact.Total, nil
	}
	return discount, nil
}
