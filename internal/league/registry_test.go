package league

import (
	"errors"
	"testing"
)

func collectingRound() *Round {
	return &Round{ID: "r1", Prompt: "p", Phase: PhaseCollecting, Submissions: []Submission{}, Votes: []Vote{}}
}

func TestApplySubmission_ResubmitOverwrites(t *testing.T) {
	r := collectingRound()
	if err := ApplySubmission(r, "alice", "https://youtube.com/watch?v=aaa", "aaa", "First"); err != nil {
		t.Fatalf("ApplySubmission: %v", err)
	}
	if err := SetDescription(r, "alice", "my pick"); err != nil {
		t.Fatalf("SetDescription: %v", err)
	}

	if err := ApplySubmission(r, "alice", "https://youtube.com/watch?v=bbb", "bbb", "Second"); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if len(r.Submissions) != 1 {
		t.Fatalf("resubmit must not add an entry: %d", len(r.Submissions))
	}
	s := r.Submissions[0]
	if s.VideoID != "bbb" || s.Title != "Second" {
		t.Fatalf("link fields not replaced: %+v", s)
	}
	if s.Description != "" {
		t.Fatalf("resubmit must clear the stale description, got %q", s.Description)
	}
	if DistinctSubmitters(r) != 1 {
		t.Fatalf("distinct submitters: %d", DistinctSubmitters(r))
	}
}

func TestSetDescription_RequiresSubmission(t *testing.T) {
	r := collectingRound()
	if err := SetDescription(r, "ghost", "text"); !errors.Is(err, ErrNoSubmission) {
		t.Fatalf("expected ErrNoSubmission, got %v", err)
	}
	r.Phase = PhaseVoting
	if err := SetDescription(r, "ghost", "text"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
}

func TestFreeze_OnceAndOrderPreserved(t *testing.T) {
	r := collectingRound()
	_ = ApplySubmission(r, "a", "u1", "v1", "A")
	_ = ApplySubmission(r, "b", "u2", "v2", "B")
	_ = ApplySubmission(r, "c", "u3", "v3", "C")

	if err := Freeze(r); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if len(r.Numbered) != 3 {
		t.Fatalf("numbered length: %d", len(r.Numbered))
	}
	for i, want := range []string{"a", "b", "c"} {
		if r.Numbered[i].MemberID != want {
			t.Fatalf("entry %d: expected %s, got %s", i+1, want, r.Numbered[i].MemberID)
		}
	}
	if err := Freeze(r); !errors.Is(err, ErrAlreadyFrozen) {
		t.Fatalf("expected ErrAlreadyFrozen, got %v", err)
	}

	// the snapshot is a copy, later mutation of Submissions must not leak in
	r.Submissions[0].Title = "changed"
	if r.Numbered[0].Title != "A" {
		t.Fatalf("frozen snapshot mutated: %q", r.Numbered[0].Title)
	}
}

func TestApplySubmission_WrongPhase(t *testing.T) {
	r := collectingRound()
	r.Phase = PhaseVoting
	if err := ApplySubmission(r, "a", "u", "v", "T"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
}
