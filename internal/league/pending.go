package league

import "sync"

// Intent says how a member's next unprefixed direct message should be read.
type Intent string

const (
	AwaitingLink        Intent = "awaiting_link"
	AwaitingDescription Intent = "awaiting_description"
)

// PendingTracker is the ephemeral per-member submission-flow state. It is
// advisory only: it never blocks the canonical submit path, and it is lost on
// restart by design.
type PendingTracker struct {
	mu sync.RWMutex
	m  map[string]Intent
}

func NewPendingTracker() *PendingTracker {
	return &PendingTracker{m: make(map[string]Intent)}
}

func (p *PendingTracker) Set(memberID string, intent Intent) {
	p.mu.Lock()
	p.m[memberID] = intent
	p.mu.Unlock()
}

func (p *PendingTracker) Get(memberID string) (Intent, bool) {
	p.mu.RLock()
	intent, ok := p.m[memberID]
	p.mu.RUnlock()
	return intent, ok
}

func (p *PendingTracker) Clear(memberID string) {
	p.mu.Lock()
	delete(p.m, memberID)
	p.mu.Unlock()
}

// ClearAll drops pending intents for every listed member, used when a group's
// submissions close.
func (p *PendingTracker) ClearAll(memberIDs []string) {
	p.mu.Lock()
	for _, id := range memberIDs {
		delete(p.m, id)
	}
	p.mu.Unlock()
}
