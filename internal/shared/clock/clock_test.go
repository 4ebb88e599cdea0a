package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemIsUTC(t *testing.T) {
	now := System{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Second)
}

func TestManual(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	m := NewManual(start)

	assert.True(t, m.Now().Equal(start))
	assert.Equal(t, time.UTC, m.Now().Location())

	m.Advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, m.Now().Sub(start))

	later := start.Add(time.Hour)
	m.Set(later)
	assert.True(t, m.Now().Equal(later))
}
