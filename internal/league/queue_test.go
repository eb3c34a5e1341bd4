package league

import (
	"errors"
	"math/rand"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	g := &GroupState{}
	g.Normalize()
	if n := g.EnqueuePrompt("songs about rain"); n != 1 {
		t.Fatalf("first enqueue position: %d", n)
	}
	g.EnqueuePrompt("one-hit wonders")
	g.EnqueuePrompt("covers better than the original")

	rng := rand.New(rand.NewSource(1))
	p, err := g.DequeuePrompt(rng)
	if err != nil || p != "songs about rain" {
		t.Fatalf("dequeue: %q, %v", p, err)
	}
	p, _ = g.DequeuePrompt(rng)
	if p != "one-hit wonders" {
		t.Fatalf("FIFO order broken: %q", p)
	}
}

func TestQueue_RemoveByIndex(t *testing.T) {
	g := &GroupState{Queue: []string{"a", "b", "c"}}
	removed, err := g.RemovePrompt(2)
	if err != nil || removed != "b" {
		t.Fatalf("RemovePrompt: %q, %v", removed, err)
	}
	if len(g.Queue) != 2 || g.Queue[0] != "a" || g.Queue[1] != "c" {
		t.Fatalf("queue after removal: %v", g.Queue)
	}
	if _, err := g.RemovePrompt(0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for 0, got %v", err)
	}
	if _, err := g.RemovePrompt(3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange past end, got %v", err)
	}
}

func TestQueue_ShuffleDrainsAll(t *testing.T) {
	g := &GroupState{Queue: []string{"a", "b", "c", "d"}}
	g.SetShuffle(ShuffleOn)

	rng := rand.New(rand.NewSource(42))
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		p, err := g.DequeuePrompt(rng)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if seen[p] {
			t.Fatalf("prompt %q dequeued twice", p)
		}
		seen[p] = true
	}
	if _, err := g.DequeuePrompt(rng); !errors.Is(err, ErrNoPrompt) {
		t.Fatalf("expected ErrNoPrompt when drained, got %v", err)
	}
}

func TestSetShuffle(t *testing.T) {
	g := &GroupState{}
	if !g.SetShuffle(ShuffleOn) {
		t.Fatal("ShuffleOn should report true")
	}
	if g.SetShuffle(ShuffleOff) {
		t.Fatal("ShuffleOff should report false")
	}
	if !g.SetShuffle(ShuffleToggle) {
		t.Fatal("toggle from off should report true")
	}
}
