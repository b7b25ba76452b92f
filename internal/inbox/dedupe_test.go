package inbox

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenCacheChecksAndMarks(t *testing.T) {
	s := newSeenCache(time.Minute, 8)

	assert.False(t, s.checkAndMark("a"))
	assert.True(t, s.checkAndMark("a"))
	assert.False(t, s.checkAndMark("b"))
}

func TestSeenCacheExpiry(t *testing.T) {
	s := newSeenCache(20*time.Millisecond, 8)

	assert.False(t, s.checkAndMark("a"))
	time.Sleep(30 * time.Millisecond)

	// Expired entries count as unseen and are re-marked.
	assert.False(t, s.checkAndMark("a"))
	assert.True(t, s.checkAndMark("a"))
}

func TestSeenCacheEvictsOldestPastMaxSize(t *testing.T) {
	s := newSeenCache(time.Minute, 3)

	for i := 0; i < 4; i++ {
		s.checkAndMark(fmt.Sprintf("key-%d", i))
	}

	// key-0 was the oldest and fell out; the rest survive.
	assert.False(t, s.checkAndMark("key-0"))
	assert.True(t, s.checkAndMark("key-3"))
}
