package league

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Vote tally engine: ballot parsing, self-vote policy, recording, ranking.

// EntryIDError carries the offending entry ID so the rejection message can
// name it. Unwraps to ErrBadEntryID.
type EntryIDError struct {
	EntryID int
}

func (e *EntryIDError) Error() string {
	return fmt.Sprintf("entry id %d out of range", e.EntryID)
}

func (e *EntryIDError) Unwrap() error { return ErrBadEntryID }

// ParseDistribution turns "entryID:points" tokens into a distribution map.
// A duplicated entry ID within one ballot overwrites the earlier value; the
// final distribution must sum to budget exactly or the whole ballot is
// rejected. Nothing is ever partially applied.
func ParseDistribution(tokens []string, entryCount, budget int) (map[int]int, error) {
	dist := make(map[int]int, len(tokens))
	for _, tok := range tokens {
		id, pts, ok := strings.Cut(tok, ":")
		if !ok {
			return nil, ErrBadToken
		}
		entryID, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return nil, ErrBadToken
		}
		points, err := strconv.Atoi(strings.TrimSpace(pts))
		if err != nil {
			return nil, ErrBadToken
		}
		if entryID < 1 || entryID > entryCount {
			return nil, &EntryIDError{EntryID: entryID}
		}
		if points < 0 {
			return nil, ErrNegativePoints
		}
		dist[entryID] = points
	}
	total := 0
	for _, p := range dist {
		total += p
	}
	if total != budget {
		return nil, ErrBudgetMismatch
	}
	return dist, nil
}

// CheckSelfVote rejects a distribution that allocates points to the voter's
// own entry. With allowSelfVote (debug override) the violation is reported to
// the caller but not enforced.
func CheckSelfVote(dist map[int]int, voterID string, numbered []Submission, allowSelfVote bool) (violated bool, err error) {
	for entryID := range dist {
		if entryID < 1 || entryID > len(numbered) {
			continue
		}
		if numbered[entryID-1].MemberID == voterID {
			if allowSelfVote {
				return true, nil
			}
			return true, ErrSelfVote
		}
	}
	return false, nil
}

// RecordVote replaces any prior vote by the same voter. The replaced vote
// loses its original position; ordering only affects display, not scoring.
func RecordVote(r *Round, v Vote) {
	kept := r.Votes[:0]
	for _, old := range r.Votes {
		if old.VoterID != v.VoterID {
			kept = append(kept, old)
		}
	}
	r.Votes = append(kept, v)
}

// Tally sums points per entry across all votes and ranks descending, with
// ascending entry ID breaking ties so reruns produce identical rankings.
func Tally(r *Round) ([]EntryScore, error) {
	if r == nil || len(r.Votes) == 0 {
		return nil, ErrNoVotes
	}
	n := len(r.Numbered)
	scores := make([]int, n) // index = entryID - 1
	for _, v := range r.Votes {
		for entryID, pts := range v.Distribution {
			if entryID >= 1 && entryID <= n {
				scores[entryID-1] += pts
			}
		}
	}
	ranked := make([]EntryScore, 0, n)
	for i := 0; i < n; i++ {
		ranked = append(ranked, EntryScore{EntryID: i + 1, Points: scores[i]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Points != ranked[j].Points {
			return ranked[i].Points > ranked[j].Points
		}
		return ranked[i].EntryID < ranked[j].EntryID
	})
	return ranked, nil
}

// DistinctVoters counts unique voter IDs on the round.
func DistinctVoters(r *Round) int {
	seen := make(map[string]struct{}, len(r.Votes))
	for _, v := range r.Votes {
		seen[v.VoterID] = struct{}{}
	}
	return len(seen)
}

// DistinctSubmitters counts unique submitter IDs on the round.
func DistinctSubmitters(r *Round) int {
	seen := make(map[string]struct{}, len(r.Submissions))
	for _, s := range r.Submissions {
		seen[s.MemberID] = struct{}{}
	}
	return len(seen)
}
