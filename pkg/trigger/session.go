package trigger

import (
	"time"

	"github.com/google/uuid"

	"github.com/acurth/audioguia/pkg/model"
)

// Session holds the per-tracking-session trigger state. It exists only while
// tracking is active; stopping tracking destroys it, so nothing here survives
// across sessions.
type Session struct {
	ID        string
	StartedAt time.Time

	// triggeredIDs preserves insertion order for the status API; triggeredSet
	// backs the exactly-once check. A point id enters at most once and is
	// never removed while the session lives.
	triggeredIDs []string
	triggeredSet map[string]struct{}

	lastTriggered *model.Point
	lastPosition  *model.Position
	isMoving      bool
}

func newSession() *Session {
	return &Session{
		ID:           uuid.New().String(),
		StartedAt:    time.Now(),
		triggeredSet: make(map[string]struct{}),
	}
}

func (s *Session) triggered(id string) bool {
	_, ok := s.triggeredSet[id]
	return ok
}

// markTriggered records the id. Caller must have checked triggered() first;
// the double check keeps the set duplicate-free regardless.
func (s *Session) markTriggered(p *model.Point) {
	if _, ok := s.triggeredSet[p.ID]; ok {
		return
	}
	s.triggeredSet[p.ID] = struct{}{}
	s.triggeredIDs = append(s.triggeredIDs, p.ID)
	s.lastTriggered = p
}

// Snapshot is a copy of the session state safe to hand to the API layer.
type Snapshot struct {
	ID            string          `json:"id"`
	StartedAt     time.Time       `json:"startedAt"`
	TriggeredIDs  []string        `json:"triggeredPointIds"`
	LastTriggered *model.Point    `json:"lastTriggeredPoint,omitempty"`
	LastPosition  *model.Position `json:"lastPosition,omitempty"`
	IsMoving      bool            `json:"isMoving"`
}

func (s *Session) snapshot() Snapshot {
	ids := make([]string, len(s.triggeredIDs))
	copy(ids, s.triggeredIDs)
	return Snapshot{
		ID:            s.ID,
		StartedAt:     s.StartedAt,
		TriggeredIDs:  ids,
		LastTriggered: s.lastTriggered,
		LastPosition:  s.lastPosition,
		IsMoving:      s.isMoving,
	}
}
