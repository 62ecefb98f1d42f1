package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenFilter_UnseenKeysAreNegative(t *testing.T) {
	f := NewSeenFilter(1000, 0.01)

	assert.False(t, f.MaybeSeen(Key("mercari", "sale-1")))

	f.Mark(Key("mercari", "sale-1"))
	assert.True(t, f.MaybeSeen(Key("mercari", "sale-1")))
}

func TestSeenFilter_PlatformScopedKeys(t *testing.T) {
	f := NewSeenFilter(1000, 0.01)

	f.Mark(Key("mercari", "sale-1"))

	// The same remote id on another platform is a different sale.
	assert.False(t, f.MaybeSeen(Key("vinted", "sale-1")))
}

func TestSeenFilter_MarkAndCheck(t *testing.T) {
	f := NewSeenFilter(1000, 0.01)

	assert.False(t, f.MarkAndCheck(Key("vinted", "s-9")))
	assert.True(t, f.MarkAndCheck(Key("vinted", "s-9")))
}

func TestSeenFilter_NoFalseNegatives(t *testing.T) {
	f := NewSeenFilter(10000, 0.01)

	for i := 0; i < 5000; i++ {
		f.Mark(Key("mercari", fmt.Sprintf("sale-%d", i)))
	}
	for i := 0; i < 5000; i++ {
		assert.True(t, f.MaybeSeen(Key("mercari", fmt.Sprintf("sale-%d", i))),
			"marked key sale-%d must always test positive", i)
	}
}

func TestSeenFilter_DefaultsApplied(t *testing.T) {
	f := NewSeenFilter(0, 0)
	f.Mark("x")
	assert.True(t, f.MaybeSeen("x"))
}
