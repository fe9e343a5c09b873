package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCheck_FirstSeenIsNew(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Minute, 10)
	if !s.Check("wamid.1") {
		t.Fatalf("Check(wamid.1) = false on first sight, want true")
	}
	if s.Check("wamid.1") {
		t.Fatalf("Check(wamid.1) = true on repeat, want false")
	}
	if !s.Check("wamid.2") {
		t.Fatalf("Check(wamid.2) = false, want true for a distinct id")
	}
}

func TestCheck_WindowExpiry(t *testing.T) {
	t.Parallel()
	current := time.Unix(1_700_000_000, 0)
	s := NewStore(time.Minute, 10)
	s.now = func() time.Time { return current }

	if !s.Check("wamid.1") {
		t.Fatalf("first Check = false, want true")
	}
	current = current.Add(30 * time.Second)
	if s.Check("wamid.1") {
		t.Fatalf("Check inside window = true, want false")
	}
	current = current.Add(time.Minute)
	if !s.Check("wamid.1") {
		t.Fatalf("Check after window = false, want true")
	}
	if got := s.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1 after expiry", got)
	}
}

func TestCheck_SizeEviction(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Hour, 3)
	for i := 0; i < 4; i++ {
		s.Check(fmt.Sprintf("wamid.%d", i))
	}
	if got := s.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3 after eviction", got)
	}
	// The oldest id was evicted and reads as new again.
	if !s.Check("wamid.0") {
		t.Fatalf("Check(wamid.0) = false, want true after eviction")
	}
	if s.Check("wamid.3") {
		t.Fatalf("Check(wamid.3) = true, want false for retained entry")
	}
}

func TestCheck_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Minute, 100)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Check("wamid.race") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("winners = %d, want exactly 1", got)
	}
}
