package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSyncDivergence_ApplyTo(t *testing.T) {
	t.Run("price", func(t *testing.T) {
		l := validListing()
		d := &SyncDivergence{Field: DivergenceFieldPrice, ObservedValue: "230.50"}

		assert.NoError(t, d.ApplyTo(l))
		assert.True(t, l.Price.Equal(decimal.NewFromFloat(230.50)))
	})

	t.Run("unparseable price", func(t *testing.T) {
		l := validListing()
		d := &SyncDivergence{Field: DivergenceFieldPrice, ObservedValue: "cheap"}

		assert.Error(t, d.ApplyTo(l))
		assert.True(t, l.Price.Equal(decimal.NewFromFloat(250.00)), "failed apply leaves the listing untouched")
	})

	t.Run("quantity", func(t *testing.T) {
		l := validListing()
		d := &SyncDivergence{Field: DivergenceFieldQuantity, ObservedValue: "4"}

		assert.NoError(t, d.ApplyTo(l))
		assert.Equal(t, 4, l.Quantity)
	})

	t.Run("absent clears remote id", func(t *testing.T) {
		l := validListing()
		l.SetRemoteID("vinted", "v-456")
		d := &SyncDivergence{Field: DivergenceFieldExistence, Platform: "vinted", ObservedValue: "absent"}

		assert.NoError(t, d.ApplyTo(l))
		_, ok := l.RemoteID("vinted")
		assert.False(t, ok)
		assert.Equal(t, int8(ListingStatusDeleted), l.Status, "last platform gone means the listing is gone")
	})

	t.Run("absent keeps other platforms", func(t *testing.T) {
		l := validListing()
		l.SetRemoteID("vinted", "v-456")
		l.SetRemoteID("mercari", "m-123")
		d := &SyncDivergence{Field: DivergenceFieldExistence, Platform: "vinted", ObservedValue: "absent"}

		assert.NoError(t, d.ApplyTo(l))
		assert.Equal(t, int8(ListingStatusActive), l.Status)
		assert.True(t, l.IsListedAnywhere())
	})

	t.Run("unknown field", func(t *testing.T) {
		l := validListing()
		d := &SyncDivergence{Field: "color", ObservedValue: "red"}

		assert.Error(t, d.ApplyTo(l))
	})
}

func TestResolutionLabel(t *testing.T) {
	assert.Equal(t, "pending", ResolutionLabel(ResolutionPending))
	assert.Equal(t, "applied", ResolutionLabel(ResolutionApplied))
	assert.Equal(t, "kept", ResolutionLabel(ResolutionKept))
}
