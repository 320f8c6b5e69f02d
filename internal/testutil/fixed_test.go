package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedID(t *testing.T) {
	assert.Equal(t, "abc", FixedID("abc").Generate())
	assert.Equal(t, "abc", FixedID("abc").Generate())
	assert.Equal(t, "test-id", FixedID("").Generate())
}

func TestClock_Advances(t *testing.T) {
	c := NewClock()

	assert.Equal(t, Origin, c.Now())
	assert.Equal(t, Origin.Add(time.Second), c.Now())

	c.Reset()
	assert.Equal(t, Origin, c.Now())
}

func TestClock_Concurrent(t *testing.T) {
	c := NewClock()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, Origin.Add(100*time.Second), c.Now())
}
