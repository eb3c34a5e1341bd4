package league

import (
	"math/rand"
	"strings"
)

// Queue operations run on a GroupState already held inside Store.Mutate.

// EnqueuePrompt appends a prompt and returns its 1-based position.
func (g *GroupState) EnqueuePrompt(prompt string) int {
	g.Queue = append(g.Queue, strings.TrimSpace(prompt))
	return len(g.Queue)
}

// RemovePrompt removes the prompt at a 1-based index.
func (g *GroupState) RemovePrompt(index int) (string, error) {
	if index < 1 || index > len(g.Queue) {
		return "", ErrOutOfRange
	}
	removed := g.Queue[index-1]
	g.Queue = append(g.Queue[:index-1], g.Queue[index:]...)
	return removed, nil
}

// DequeuePrompt removes and returns the next prompt: the head in FIFO mode, a
// uniformly random element when shuffle is on.
func (g *GroupState) DequeuePrompt(rng *rand.Rand) (string, error) {
	if len(g.Queue) == 0 {
		return "", ErrNoPrompt
	}
	idx := 0
	if g.QueueShuffle {
		idx = rng.Intn(len(g.Queue))
	}
	prompt := g.Queue[idx]
	g.Queue = append(g.Queue[:idx], g.Queue[idx+1:]...)
	return prompt, nil
}

// ShuffleMode is an explicit shuffle-toggle request.
type ShuffleMode string

const (
	ShuffleOn     ShuffleMode = "on"
	ShuffleOff    ShuffleMode = "off"
	ShuffleToggle ShuffleMode = "toggle"
)

// SetShuffle applies an on/off/toggle request and returns the resulting flag.
func (g *GroupState) SetShuffle(mode ShuffleMode) bool {
	switch mode {
	case ShuffleOn:
		g.QueueShuffle = true
	case ShuffleOff:
		g.QueueShuffle = false
	default:
		g.QueueShuffle = !g.QueueShuffle
	}
	return g.QueueShuffle
}
