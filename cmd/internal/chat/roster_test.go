package chat

import (
	"errors"
	"sync"
	"testing"
)

func TestRosterClaimReleaseCycle(t *testing.T) {
	t.Parallel()

	r := NewRoster()

	if err := r.Claim("alice"); err != nil {
		t.Fatalf("first Claim: %v", err)
	}
	if err := r.Claim("alice"); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("second Claim err=%v, want ErrNameTaken", err)
	}
	if !r.Contains("alice") {
		t.Fatal("Contains=false after Claim")
	}

	r.Release("alice")
	if r.Contains("alice") {
		t.Fatal("Contains=true after Release")
	}
	if err := r.Claim("alice"); err != nil {
		t.Fatalf("Claim after Release: %v", err)
	}
}

func TestRosterRejectsEmptyName(t *testing.T) {
	t.Parallel()

	r := NewRoster()
	if err := r.Claim(""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("Claim(\"\") err=%v, want ErrInvalidName", err)
	}
	if r.Len() != 0 {
		t.Fatalf("Len=%d want=0", r.Len())
	}
}

func TestRosterReleaseAbsentIsNoop(t *testing.T) {
	t.Parallel()

	r := NewRoster()
	r.Release("ghost")
	r.Release("ghost")

	if r.Len() != 0 {
		t.Fatalf("Len=%d want=0", r.Len())
	}
}

func TestRosterConcurrentClaimSingleWinner(t *testing.T) {
	t.Parallel()

	r := NewRoster()

	const claimers = 16
	start := make(chan struct{})
	results := make(chan error, claimers)

	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- r.Claim("alice")
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var wins, taken int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNameTaken):
			taken++
		default:
			t.Fatalf("unexpected Claim err: %v", err)
		}
	}

	if wins != 1 || taken != claimers-1 {
		t.Fatalf("wins=%d taken=%d, want 1/%d", wins, taken, claimers-1)
	}
}

func TestRosterNamesSortedSnapshot(t *testing.T) {
	t.Parallel()

	r := NewRoster()
	for _, n := range []string{"carol", "alice", "bob"} {
		if err := r.Claim(n); err != nil {
			t.Fatalf("Claim(%q): %v", n, err)
		}
	}

	got := r.Names()
	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("Names=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names=%v want=%v", got, want)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("Len=%d want=3", r.Len())
	}
}
