package league

import "testing"

func TestPendingTracker(t *testing.T) {
	p := NewPendingTracker()

	if _, ok := p.Get("alice"); ok {
		t.Fatal("empty tracker should have no intent")
	}

	p.Set("alice", AwaitingLink)
	if intent, ok := p.Get("alice"); !ok || intent != AwaitingLink {
		t.Fatalf("expected AwaitingLink, got %v/%v", intent, ok)
	}

	p.Set("alice", AwaitingDescription)
	if intent, _ := p.Get("alice"); intent != AwaitingDescription {
		t.Fatalf("expected AwaitingDescription, got %v", intent)
	}

	p.Clear("alice")
	if _, ok := p.Get("alice"); ok {
		t.Fatal("cleared intent still present")
	}

	p.Set("a", AwaitingLink)
	p.Set("b", AwaitingDescription)
	p.Set("c", AwaitingLink)
	p.ClearAll([]string{"a", "b"})
	if _, ok := p.Get("a"); ok {
		t.Fatal("a should be cleared")
	}
	if _, ok := p.Get("b"); ok {
		t.Fatal("b should be cleared")
	}
	if _, ok := p.Get("c"); !ok {
		t.Fatal("c should survive a scoped clear")
	}
}
