package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testEngine() *Engine {
	return NewEngine(Config{
		TaxRate:               d("0.1"),
		ShippingCost:          d("20000"),
		FreeShippingThreshold: d("500000"),
		DecimalPlaces:         2,
		Currency:              "VND",
	})
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s: want %s got %s", field, want, got)
}

func TestCalculateSingleLineBelowFreeShipping(t *testing.T) {
	engine := testEngine()
	out := engine.Calculate([]Line{{ProductID: "p1", Quantity: 3, TotalPrice: engine.LineTotal(d("100000"), 3)}})

	assertDecimal(t, "300000", out.Subtotal, "subtotal")
	assertDecimal(t, "30000", out.Tax, "tax")
	assertDecimal(t, "20000", out.Shipping, "shipping")
	assertDecimal(t, "0", out.Discount, "discount")
	assertDecimal(t, "350000", out.Total, "total")
	assert.Equal(t, "VND", out.Currency)
	assert.Equal(t, 3, out.ItemCount)
}

func TestCalculateBulkDiscountAboveTenUnits(t *testing.T) {
	engine := testEngine()
	out := engine.Calculate([]Line{
		{ProductID: "p1", Quantity: 6, TotalPrice: d("60000")},
		{ProductID: "p2", Quantity: 5, TotalPrice: d("50000")},
	})

	assertDecimal(t, "110000", out.Subtotal, "subtotal")
	assertDecimal(t, "5500", out.Discount, "discount")
	assertDecimal(t, "11000", out.Tax, "tax")
	assertDecimal(t, "20000", out.Shipping, "shipping")
	assertDecimal(t, "135500", out.Total, "total")
	assert.Equal(t, 11, out.ItemCount)
}

func TestCalculateExactlyTenUnitsHasNoBulkDiscount(t *testing.T) {
	out := testEngine().Calculate([]Line{{ProductID: "p1", Quantity: 10, TotalPrice: d("100000")}})
	assertDecimal(t, "0", out.Discount, "discount")
}

func TestCalculateFreeShippingAtThreshold(t *testing.T) {
	out := testEngine().Calculate([]Line{{ProductID: "p1", Quantity: 1, TotalPrice: d("500000")}})
	assertDecimal(t, "0", out.Shipping, "shipping")
	assertDecimal(t, "550000", out.Total, "total")
}

func TestCalculateCategoryDiscountIsCaseInsensitive(t *testing.T) {
	out := testEngine().Calculate([]Line{
		{ProductID: "tv", Quantity: 1, TotalPrice: d("200000"), Categories: []string{"Consumer ELECTRONICS"}},
		{ProductID: "mug", Quantity: 1, TotalPrice: d("100000"), Categories: []string{"kitchen"}},
	})
	assertDecimal(t, "20000", out.Discount, "discount")
	assertDecimal(t, "330000", out.Total, "total")
}

func TestCalculateDoubleCategoryMatchIsAdditive(t *testing.T) {
	out := testEngine().Calculate([]Line{
		{ProductID: "p1", Quantity: 1, TotalPrice: d("100000"), Categories: []string{"electronics", "Home Electronics"}},
	})
	// Both categories match the electronics rule, so the line is discounted twice.
	assertDecimal(t, "20000", out.Discount, "discount")
}

func TestCalculateRoundsEachComponent(t *testing.T) {
	engine := NewEngine(Config{
		TaxRate:               d("0.075"),
		ShippingCost:          d("4.995"),
		FreeShippingThreshold: d("1000"),
		DecimalPlaces:         2,
		Currency:              "USD",
	})
	out := engine.Calculate([]Line{{ProductID: "p1", Quantity: 1, TotalPrice: d("10.05")}})

	assertDecimal(t, "10.05", out.Subtotal, "subtotal")
	assertDecimal(t, "0.75", out.Tax, "tax") // 0.75375
	assertDecimal(t, "5", out.Shipping, "shipping")
	// 10.05 + 0.75375 + 4.995 = 15.79875
	assertDecimal(t, "15.8", out.Total, "total")
}

func TestCalculateTotalMatchesComponents(t *testing.T) {
	engine := testEngine()
	lines := []Line{
		{ProductID: "a", Quantity: 4, TotalPrice: d("423456")},
		{ProductID: "b", Quantity: 9, TotalPrice: d("98765"), Categories: []string{"electronics"}},
	}
	out := engine.Calculate(lines)
	want := engine.Round(out.Subtotal.Add(out.Tax).Add(out.Shipping).Sub(out.Discount))
	assert.True(t, want.Equal(out.Total), "want %s got %s", want, out.Total)
	assert.True(t, out.Shipping.IsZero(), "subtotal above threshold ships free")
}

func TestCalculateRecoversFromPanickingRule(t *testing.T) {
	engine := NewEngine(Config{
		TaxRate:               d("0.1"),
		ShippingCost:          d("20000"),
		FreeShippingThreshold: d("500000"),
		DecimalPlaces:         2,
		Currency:              "VND",
		CategoryRules: []CategoryRule{{
			Name:    "broken",
			Matches: func(string) bool { panic("bad rule") },
			Rate:    d("0.5"),
		}},
	})

	var out Breakdown
	require.NotPanics(t, func() {
		out = engine.Calculate([]Line{{ProductID: "p1", Quantity: 2, TotalPrice: d("1000"), Categories: []string{"x"}}})
	})
	assertDecimal(t, "1000", out.Subtotal, "subtotal")
	assert.True(t, out.Tax.IsZero())
	assert.True(t, out.Shipping.IsZero())
	assert.True(t, out.Discount.IsZero())
	assert.True(t, out.Total.IsZero())
	assert.Equal(t, "VND", out.Currency)
}

func TestEmptyBreakdown(t *testing.T) {
	out := testEngine().Empty()
	assert.True(t, out.Subtotal.IsZero())
	assert.True(t, out.Total.IsZero())
	assert.Equal(t, 0, out.ItemCount)
	assert.Equal(t, "VND", out.Currency)
}

func TestLineTotalRoundsHalfUp(t *testing.T) {
	engine := testEngine()
	assertDecimal(t, "0.13", engine.LineTotal(d("0.125"), 1), "line total")
	assertDecimal(t, "3.75", engine.LineTotal(d("1.25"), 3), "line total")
}
