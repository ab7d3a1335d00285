package ticket

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownReserve(t *testing.T) {
	c := newCooldown(time.Hour)

	wait, ok := c.reserve("u1")
	assert.True(t, ok)
	assert.Zero(t, wait)

	wait, ok = c.reserve("u1")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, time.Hour)

	// A rejected reservation does not push the window further out.
	wait2, ok := c.reserve("u1")
	assert.False(t, ok)
	assert.LessOrEqual(t, wait2, wait)
}

func TestCooldownPerUser(t *testing.T) {
	c := newCooldown(time.Hour)

	_, ok := c.reserve("u1")
	assert.True(t, ok)
	_, ok = c.reserve("u2")
	assert.True(t, ok)
}

func TestCooldownExpires(t *testing.T) {
	c := newCooldown(20 * time.Millisecond)

	_, ok := c.reserve("u1")
	assert.True(t, ok)
	_, ok = c.reserve("u1")
	assert.False(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.reserve("u1")
	assert.True(t, ok)
}

func TestCooldownEvictsIdleBuckets(t *testing.T) {
	c := newCooldown(time.Millisecond)
	c.ttl = 10 * time.Millisecond

	for i := 0; i < 63; i++ {
		c.reserve(fmt.Sprintf("u%d", i))
	}
	assert.Equal(t, 63, c.size())

	time.Sleep(20 * time.Millisecond)
	// The 64th call triggers the sweep; idle buckets go away.
	c.reserve("fresh")
	assert.Equal(t, 1, c.size())
}
