package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerializesSameKey(t *testing.T) {
	kl := New(4)

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := kl.Lock("booking-1")
			defer unlock()

			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()

			time.Sleep(100 * time.Microsecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, kl.Len(), "entries should be released once unlocked")
}

func TestLock_DifferentKeysDoNotBlock(t *testing.T) {
	kl := New(1)

	unlockA := kl.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := kl.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked behind key a")
	}
}
