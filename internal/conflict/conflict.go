package conflict

import (
	"time"

	"github.com/inkwave/inkwave/sync-engine/internal/feed"
)

// Draft is a locally edited, not yet saved document body. EditStart marks
// when the user began editing and is the fence all incoming updates are
// compared against.
type Draft struct {
	Body      string
	EditStart time.Time
}

// Decision classifies an incoming update against the local draft.
type Decision int

const (
	// ApplyRemote: no draft, or the update predates the edit session.
	// Adopt the update as the new baseline silently.
	ApplyRemote Decision = iota
	// RequireResolution: the update landed after the user started editing.
	// Suspend automatic application and put both versions to the user.
	RequireResolution
)

// Conflict pairs the local draft with the remote update awaiting a decision.
type Conflict struct {
	Local  Draft
	Remote feed.Update
}

// Classify implements the timestamp fence. This is deliberately a heuristic,
// not causal tracking: two users editing before either saves will each see
// the other's save as a conflict, and resolution is always a human choice.
func Classify(draft *Draft, u feed.Update) Decision {
	if draft == nil {
		return ApplyRemote
	}
	if !u.UpdatedAt.After(draft.EditStart) {
		return ApplyRemote
	}
	return RequireResolution
}
