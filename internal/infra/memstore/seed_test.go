//go:build unit

package memstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/infra/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coupons.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	t.Run("parses percentage and fixed coupons", func(t *testing.T) {
		path := writeSeed(t, `[
			{
				"code": "SAVE10",
				"description": "10% off, capped",
				"discount_type": "percentage",
				"discount_value": "10",
				"max_discount": 50,
				"valid_from": "2026-01-01T00:00:00Z",
				"valid_until": "2026-12-31T23:59:59Z",
				"is_active": true,
				"total_limit": 100
			},
			{
				"code": "FLAT20",
				"discount_type": "fixed",
				"discount_value": "20",
				"valid_from": "2026-01-01T00:00:00Z",
				"valid_until": "2026-12-31T23:59:59Z",
				"is_active": true
			}
		]`)

		coupons, err := memstore.LoadSeedFile(path)
		require.NoError(t, err)
		require.Len(t, coupons, 2)

		assert.Equal(t, "SAVE10", coupons[0].Code().String())
		assert.Equal(t, coupon.DiscountPercentage, coupons[0].Discount().Type())
		require.NotNil(t, coupons[0].UsageLimits().Total)
		assert.Equal(t, 100, *coupons[0].UsageLimits().Total)

		assert.Equal(t, "FLAT20", coupons[1].Code().String())
		assert.Equal(t, coupon.DiscountFixed, coupons[1].Discount().Type())
		assert.Nil(t, coupons[1].UsageLimits().Total)
	})

	t.Run("rejects invalid definitions", func(t *testing.T) {
		path := writeSeed(t, `[
			{
				"code": "BAD",
				"discount_type": "percentage",
				"discount_value": "150",
				"valid_from": "2026-01-01T00:00:00Z",
				"valid_until": "2026-12-31T23:59:59Z",
				"is_active": true
			}
		]`)

		_, err := memstore.LoadSeedFile(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := memstore.LoadSeedFile(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})
}
