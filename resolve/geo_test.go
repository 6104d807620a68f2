package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	// Maranello to Stuttgart is roughly 490 km great-circle.
	d := HaversineKm(44.53, 10.86, 48.78, 9.18)
	assert.InDelta(t, 490, d, 20)

	assert.Equal(t, 0.0, HaversineKm(44.53, 10.86, 44.53, 10.86))

	// Symmetric in its endpoints.
	assert.InDelta(t, d, HaversineKm(48.78, 9.18, 44.53, 10.86), 0.001)
}

func TestLocateByName(t *testing.T) {
	lat, lon, ok := locateByName("Maranello, Italy")
	assert.True(t, ok)
	assert.Equal(t, 44.53, lat)
	assert.Equal(t, 10.86, lon)

	// First table entry wins: "maranello" before "italy".
	lat, _, ok = locateByName("somewhere in Italy")
	assert.True(t, ok)
	assert.Equal(t, 41.90, lat)

	_, _, ok = locateByName("Atlantis")
	assert.False(t, ok)

	_, _, ok = locateByName("")
	assert.False(t, ok)
}
