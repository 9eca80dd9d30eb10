package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyLocksSerializeSameKey(t *testing.T) {
	kl := newKeyLocks()

	var mu sync.Mutex
	var order []int

	kl.Acquire("r1/e1")
	done := make(chan struct{})
	go func() {
		kl.Acquire("r1/e1")
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		kl.Release("r1/e1")
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	kl.Release("r1/e1")
	<-done

	assert.Equal(t, []int{1, 2}, order)
}

func TestKeyLocksIndependentKeys(t *testing.T) {
	kl := newKeyLocks()

	kl.Acquire("r1/e1")
	acquired := make(chan struct{})
	go func() {
		kl.Acquire("r1/e2")
		close(acquired)
		kl.Release("r1/e2")
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("different key must not block")
	}
	kl.Release("r1/e1")
}

func TestKeyLocksEntriesAreReclaimed(t *testing.T) {
	kl := newKeyLocks()

	for i := 0; i < 100; i++ {
		kl.Acquire("k")
		kl.Release("k")
	}
	assert.Zero(t, kl.size(), "released entries must not accumulate")
}
