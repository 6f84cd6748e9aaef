package order

import (
	"testing"
	"time"
)

func TestKeyedLock_OtherKeysNotBlocked(t *testing.T) {
	var l keyedLock

	unlockA := l.Lock("a")

	done := make(chan struct{})
	go func() {
		l.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}

	acquired := make(chan func())
	go func() { acquired <- l.Lock("a") }()
	select {
	case <-acquired:
		t.Fatal("second lock on a acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	select {
	case unlock := <-acquired:
		unlock()
	case <-time.After(time.Second):
		t.Fatal("waiter on a never acquired")
	}

	if n := l.size(); n != 0 {
		t.Fatalf("%d entries left after all unlocks", n)
	}
}

func (l *keyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
