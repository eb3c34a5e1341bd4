package league

import (
	"errors"
	"time"
)

// Phase represents where a round is in its lifecycle. Idle is modelled by the
// absence of a Round on the group.
type Phase string

const (
	PhaseCollecting Phase = "COLLECTING"
	PhaseVoting     Phase = "VOTING"
)

// GroupState is the persisted record of one play space. Stored as JSON in Redis
// under bm:group:<id>. Older records may lack newer fields; Normalize fills the
// defaults after load.
type GroupState struct {
	Members        []string `json:"members"`
	AnnounceTarget string   `json:"announce_target,omitempty"`
	Queue          []string `json:"queue"`
	QueueShuffle   bool     `json:"queue_shuffle"`
	CurrentRound   *Round   `json:"current_round,omitempty"`
}

// Round is at most one per group. Submissions keeps arrival order while
// collecting; Numbered is the frozen snapshot taken at the voting transition
// and never changes afterwards (entry IDs are 1-based positions into it).
type Round struct {
	ID          string       `json:"id"`
	Prompt      string       `json:"prompt"`
	Phase       Phase        `json:"phase"`
	Submissions []Submission `json:"submissions"`
	Numbered    []Submission `json:"numbered_submissions,omitempty"`
	Votes       []Vote       `json:"votes"`
	StartedAt   time.Time    `json:"started_at"`
}

// Submission is one member's entry for the round. Description may stay empty
// until the member sends one.
type Submission struct {
	MemberID    string `json:"member_id"`
	URL         string `json:"url"`
	VideoID     string `json:"video_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Vote is a single voter's point distribution over entry IDs. Re-voting
// replaces the previous Vote in place; no history is kept.
type Vote struct {
	VoterID      string      `json:"voter_id"`
	Distribution map[int]int `json:"distribution"`
}

// EntryScore is one row of a tallied ranking.
type EntryScore struct {
	EntryID int
	Points  int
}

// Normalize fills defaults for records written by older versions.
func (g *GroupState) Normalize() {
	if g.Members == nil {
		g.Members = []string{}
	}
	if g.Queue == nil {
		g.Queue = []string{}
	}
	if g.CurrentRound != nil {
		r := g.CurrentRound
		if r.Submissions == nil {
			r.Submissions = []Submission{}
		}
		if r.Votes == nil {
			r.Votes = []Vote{}
		}
	}
}

// IsMember reports whether id joined this group.
func (g *GroupState) IsMember(id string) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Precondition violations: reported to the actor, state unchanged.
var (
	ErrNotMember        = errors.New("not a member of this group")
	ErrAlreadyRunning   = errors.New("a round is already running")
	ErrWrongPhase       = errors.New("round is not in the required phase")
	ErrNoActiveRound    = errors.New("no active round")
	ErrNoSubmissions    = errors.New("no submissions yet")
	ErrNoVotes          = errors.New("no votes yet")
	ErrAlreadyFrozen    = errors.New("submissions already frozen")
	ErrNoSubmission     = errors.New("no submission from this member")
)

// Validation errors: whole operation rejected atomically.
var (
	ErrBadLink        = errors.New("not a recognizable media link")
	ErrBadToken       = errors.New("malformed vote token")
	ErrBadEntryID     = errors.New("entry id out of range")
	ErrNegativePoints = errors.New("points must be non-negative")
	ErrBudgetMismatch = errors.New("points must sum to the budget")
	ErrSelfVote       = errors.New("cannot vote for own submission")
)

// Resource problems: operator remediation needed.
var (
	ErrNoAnnounceTarget = errors.New("announce target not configured")
	ErrNoPrompt         = errors.New("no prompt given and queue is empty")
	ErrOutOfRange       = errors.New("index out of range")
)
