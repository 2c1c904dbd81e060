package session

import "github.com/acurth/audioguia/pkg/model"

// Event types fanned out to API subscribers.
const (
	EvtTrigger  = "point-triggered"
	EvtMotion   = "motion-changed"
	EvtStatus   = "session-status"
	EvtPosition = "position-update"
)

// Event is one session broadcast. Only the fields matching the type are
// set; Moving is a pointer so a false transition still serializes.
type Event struct {
	Type     string          `json:"type"`
	TourID   string          `json:"tourId,omitempty"`
	Point    *model.Point    `json:"point,omitempty"`
	Moving   *bool           `json:"moving,omitempty"`
	Status   string          `json:"status,omitempty"`
	Position *model.Position `json:"position,omitempty"`
}
