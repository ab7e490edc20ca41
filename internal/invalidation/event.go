// Package invalidation carries the sets of resources that mutations made stale to listeners
// in this process and, through Redis, to other API instances.
package invalidation

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
)

// DefaultChannel is the Redis channel events are published on.
const DefaultChannel = "chapterhouse:invalidate"

// Event announces that the listed resources changed.
type Event struct {
	Origin    string            `json:"origin"`
	ActorID   string            `json:"actor_id,omitempty"`
	Resources []domain.Resource `json:"resources"`
	At        time.Time         `json:"at"`
}

// Publisher forwards events to other instances.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewEvent builds an event from a mutation's affected set.
func NewEvent(origin string, actor domain.UserID, affected domain.Affected, at time.Time) Event {
	return Event{
		Origin:    origin,
		ActorID:   actor.String(),
		Resources: affected.Resources(),
		At:        at.UTC(),
	}
}

// VisibleTo drops what the viewer may not learn about. Reading lists are private to their
// owner, and only the actor sees who acted. The second result is false when nothing is left.
func (e Event) VisibleTo(viewer domain.UserID) (Event, bool) {
	visible := make([]domain.Resource, 0, len(e.Resources))
	for _, resource := range e.Resources {
		if resource.Type == domain.ResourceReadingList && resource.ID != viewer.String() {
			continue
		}
		visible = append(visible, resource)
	}
	if len(visible) == 0 {
		return Event{}, false
	}
	filtered := e
	filtered.Resources = visible
	if e.ActorID != viewer.String() {
		filtered.ActorID = ""
	}
	return filtered, true
}
