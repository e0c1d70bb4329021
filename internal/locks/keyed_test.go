package locks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("trip-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
}

func TestLockReleasesEntry(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("trip-1")
	km.mu.Lock()
	assert.Len(t, km.entries, 1)
	km.mu.Unlock()

	unlock()
	km.mu.Lock()
	assert.Len(t, km.entries, 0)
	km.mu.Unlock()
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("trip-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("trip-b")
		unlockB()
		close(done)
	}()
	<-done
}
