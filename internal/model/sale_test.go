package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewSaleRecord_NetIsDerived(t *testing.T) {
	tests := []struct {
		name  string
		gross string
		fees  string
		net   string
	}{
		{"typical sale", "250.00", "25.00", "225.00"},
		{"zero fees", "99.99", "0", "99.99"},
		{"fees equal gross", "10.00", "10.00", "0"},
		{"cent precision", "19.99", "2.57", "17.42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gross := decimal.RequireFromString(tt.gross)
			fees := decimal.RequireFromString(tt.fees)

			s := NewSaleRecord("s-1", "item-001", "mercari", time.Now(), gross, fees)

			assert.True(t, s.Net.Equal(decimal.RequireFromString(tt.net)),
				"net = %s, want %s", s.Net, tt.net)
			assert.NoError(t, s.Validate())
		})
	}
}

func TestSaleRecord_Validate(t *testing.T) {
	base := func() *SaleRecord {
		return NewSaleRecord("s-1", "item-001", "vinted", time.Now(),
			decimal.NewFromFloat(100), decimal.NewFromFloat(8))
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("missing sale id", func(t *testing.T) {
		s := base()
		s.SaleID = ""
		assert.Error(t, s.Validate())
	})

	t.Run("missing listing id", func(t *testing.T) {
		s := base()
		s.ListingID = ""
		assert.Error(t, s.Validate())
	})

	t.Run("missing platform", func(t *testing.T) {
		s := base()
		s.Platform = ""
		assert.Error(t, s.Validate())
	})

	t.Run("negative fees", func(t *testing.T) {
		s := base()
		s.Fees = decimal.NewFromInt(-1)
		assert.Error(t, s.Validate())
	})

	t.Run("tampered net is rejected", func(t *testing.T) {
		s := base()
		s.Net = decimal.NewFromFloat(100)
		assert.Error(t, s.Validate())
	})
}

func TestSaleRecord_ProfitMargin(t *testing.T) {
	s := NewSaleRecord("s-1", "item-001", "mercari", time.Now(),
		decimal.NewFromInt(200), decimal.NewFromInt(20))
	assert.True(t, s.ProfitMargin().Equal(decimal.NewFromInt(90)))

	zero := NewSaleRecord("s-2", "item-001", "mercari", time.Now(),
		decimal.Zero, decimal.Zero)
	assert.True(t, zero.ProfitMargin().IsZero())
}
