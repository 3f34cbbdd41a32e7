package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{"pending", "paid", "shipped"} {
		assert.True(t, s.Valid(), s)
	}
	for _, s := range []OrderStatus{"", "cancelled", "PAID", "delivered"} {
		assert.False(t, s.Valid(), s)
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleHO.Valid())
	assert.True(t, RoleOutlet.Valid())
	assert.False(t, Role("admin").Valid())
}

func TestLineTotal(t *testing.T) {
	item := OrderItem{Quantity: 3, Price: decimal.NewFromInt(25000)}
	assert.True(t, item.LineTotal().Equal(decimal.NewFromInt(75000)))

	item = OrderItem{Quantity: 4, Price: decimal.RequireFromString("12.25")}
	assert.Equal(t, "49", item.LineTotal().String())
}
