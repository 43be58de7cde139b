package compiler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")

	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	unlockA()
	assert.Zero(t, k.len())
}

func TestKeyedMutex_SameKeySerializes(t *testing.T) {
	k := newKeyedMutex()
	var (
		mu      sync.Mutex
		order   []int
		wg      sync.WaitGroup
		started = make(chan struct{})
	)

	unlock := k.Lock("job")
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		u := k.Lock("job")
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		u()
	}()

	<-started
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	unlock()
	wg.Wait()

	assert.Equal(t, []int{1, 2}, order)
	assert.Zero(t, k.len())
}
