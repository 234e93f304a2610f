//go:build unit

package money_test

import (
	"testing"

	"coupon-settlement/internal/domain/money"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("accepts zero", func(t *testing.T) {
		m, err := money.New(0)
		require.NoError(t, err)
		assert.True(t, m.IsZero())
	})

	t.Run("accepts positive amounts", func(t *testing.T) {
		m, err := money.New(1000)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), m.MinorUnits())
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := money.New(-1)
		assert.ErrorIs(t, err, money.ErrNegativeAmount)
	})
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		percent string
		want    int64
	}{
		{"exact result", 1000, "10", 100},
		{"half rounds to even, down", 25, "10", 2},
		{"half rounds to even, up", 35, "10", 4},
		{"another half down", 45, "10", 4},
		{"fractional percent", 999, "33.33", 333},
		{"full percent", 1234, "100", 1234},
		{"small amount", 1, "50", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, err := decimal.NewFromString(tt.percent)
			require.NoError(t, err)
			got := money.MustNew(tt.amount).Percent(pct)
			assert.Equal(t, tt.want, got.MinorUnits())
		})
	}
}

func TestMin(t *testing.T) {
	assert.Equal(t, money.MustNew(5), money.MustNew(5).Min(money.MustNew(10)))
	assert.Equal(t, money.MustNew(5), money.MustNew(10).Min(money.MustNew(5)))
	assert.Equal(t, money.MustNew(7), money.MustNew(7).Min(money.MustNew(7)))
}

func TestLessThan(t *testing.T) {
	assert.True(t, money.MustNew(1).LessThan(money.MustNew(2)))
	assert.False(t, money.MustNew(2).LessThan(money.MustNew(2)))
	assert.False(t, money.MustNew(3).LessThan(money.MustNew(2)))
}
