package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/service/order/domain/port"
)

func TestDefaultRule(t *testing.T) {
	engine, err := NewEngine("")
	require.NoError(t, err)
	ctx := context.Background()

	discount, err := engine.Discount(ctx, port.PricingFact{AccountID: "acct-1", Total: 600000, ItemCount: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(60000), discount)

	discount, err = engine.Discount(ctx, port.PricingFact{AccountID: "acct-1", Total: 100000, ItemCount: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), discount)
}

func TestAccountScopedRule(t *testing.T) {
	engine, err := NewEngine(`account_id == "acct-vip" ? total / 5 : 0`)
	require.NoError(t, err)
	ctx := context.Background()

	discount, err := engine.Discount(ctx, port.PricingFact{AccountID: "acct-vip", Total: 100000})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), discount)

	discount, err = engine.Discount(ctx, port.PricingFact{AccountID: "acct-other", Total: 100000})
	require.NoError(t, err)
	assert.Equal(t, int64(0), discount)
}

func TestDiscountIsClamped(t *testing.T) {
	ctx := context.Background()

	engine, err := NewEngine(`total * 2`)
	require.NoError(t, err)
	discount, err := engine.Discount(ctx, port.PricingFact{Total: 100000})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), discount, "a discount above the total clamps to the total")

	engine, err = NewEngine(`0 - 500`)
	require.NoError(t, err)
	discount, err = engine.Discount(ctx, port.PricingFact{Total: 100000})
	require.NoError(t, err)
	assert.Equal(t, int64(0), discount, "a negative discount clamps to zero")
}

func TestInvalidRules(t *testing.T) {
	_, err := NewEngine(`total >`)
	require.Error(t, err)

	_, err = NewEngine(`"not a number"`)
	require.Error(t, err)

	_, err = NewEngine(`unknown_var + 1`)
	require.Error(t, err)
}
