package httpapi

import (
	"sync"
	"testing"
	"time"
)

func TestSessionRegistryAcquireRelease(t *testing.T) {
	sr := NewSessionRegistry()

	if !sr.Acquire() {
		t.Fatal("Acquire should succeed on a fresh registry")
	}
	if got := sr.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}

	sr.Release()
	if got := sr.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after Release = %d, want 0", got)
	}
}

func TestSessionRegistryDraining(t *testing.T) {
	sr := NewSessionRegistry()

	if sr.IsDraining() {
		t.Error("fresh registry should not be draining")
	}

	sr.StartDraining()
	if !sr.IsDraining() {
		t.Error("IsDraining should report true after StartDraining")
	}
	if sr.Acquire() {
		t.Error("Acquire must fail while draining")
	}
}

func TestSessionRegistryWaitBlocksUntilRelease(t *testing.T) {
	sr := NewSessionRegistry()

	if !sr.Acquire() {
		t.Fatal("Acquire failed")
	}
	sr.StartDraining()

	done := make(chan struct{})
	go func() {
		sr.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned while a connection was still active")
	case <-time.After(50 * time.Millisecond):
	}

	sr.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the last Release")
	}
}

func TestSessionRegistryConcurrentAcquire(t *testing.T) {
	sr := NewSessionRegistry()

	var wg sync.WaitGroup
	acquired := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := sr.Acquire()
			acquired <- ok
			if ok {
				sr.Release()
			}
		}()
	}
	wg.Wait()
	close(acquired)

	for ok := range acquired {
		if !ok {
			t.Error("Acquire failed without draining")
		}
	}
	if got := sr.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d, want 0", got)
	}
}

func TestSessionRegistryLookup(t *testing.T) {
	sr := NewSessionRegistry()

	s := Session{SessionID: "sess-1", ParticipantID: "P-AAAA1111", CreatedAt: time.Now()}
	sr.Register(s)

	got, ok := sr.Lookup("sess-1")
	if !ok {
		t.Fatal("Lookup should find a registered session")
	}
	if got.ParticipantID != "P-AAAA1111" {
		t.Errorf("participant = %q, want %q", got.ParticipantID, "P-AAAA1111")
	}

	if _, ok := sr.Lookup("missing"); ok {
		t.Error("Lookup should miss for unknown session IDs")
	}
}
