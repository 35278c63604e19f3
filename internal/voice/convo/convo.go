// Package convo holds the per-call conversation transcript. The history
// is append-only and chronological; the orchestrator writes it as stages
// complete and the quality scorer reads it.
package convo

import (
	"sync"
	"time"

	"github.com/troikatech/voice-core/pkg/providers"
)

const (
	RoleAgent    = "agent"
	RoleCustomer = "customer"
)

// Turn is one exchange unit, either side of the conversation.
type Turn struct {
	Role              string    `json:"role"`
	Text              string    `json:"text"`
	Timestamp         time.Time `json:"timestamp"`
	Emotion           string    `json:"emotion,omitempty"`
	EmotionConfidence float64   `json:"emotion_confidence,omitempty"`
	Degraded          bool      `json:"degraded,omitempty"`
}

// History is the ordered turn sequence for one call.
type History struct {
	mu    sync.Mutex
	turns []Turn
}

func NewHistory() *History {
	return &History{}
}

// Append adds a turn, stamping the timestamp if the caller left it zero.
func (h *History) Append(turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	h.mu.Lock()
	h.turns = append(h.turns, turn)
	h.mu.Unlock()
}

// Snapshot returns a copy of the turns recorded so far.
func (h *History) Snapshot() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Messages converts the history into the provider message format used
// for reasoning calls.
func (h *History) Messages() []providers.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]providers.Message, 0, len(h.turns))
	for _, t := range h.turns {
		role := "user"
		if t.Role == RoleAgent {
			role = "assistant"
		}
		out = append(out, providers.Message{Role: role, Content: t.Text})
	}
	return out
}
