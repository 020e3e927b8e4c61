package room

import (
	"encoding/base64"

	"github.com/scanmark/backend/internal/domain"
)

// Event names of the viewer protocol.
const (
	EventJoined           = "joined"
	EventNewUpload        = "new_upload"
	EventEvaluationResult = "evaluation_result"
)

// Dispatcher emits the per-upload event sequence to the owning room:
// first new_upload with the page image, then evaluation_result with the
// score. The two emissions are not atomic with respect to membership
// changes; a viewer that disconnects between them sees only the first.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// PageUploaded announces a freshly stored page image to the session's
// room. The image travels base64-encoded in the "img" field.
func (d *Dispatcher) PageUploaded(sessionID, page string, image []byte) {
	d.registry.Broadcast(sessionID, Event{
		Name: EventNewUpload,
		Data: map[string]any{
			"session_id": sessionID,
			"page":       page,
			"img":        base64.StdEncoding.EncodeToString(image),
		},
	})
}

// PageEvaluated announces the evaluation result for a page to the
// session's room.
func (d *Dispatcher) PageEvaluated(sessionID, page string, eval domain.Evaluation) {
	d.registry.Broadcast(sessionID, Event{
		Name: EventEvaluationResult,
		Data: map[string]any{
			"session_id": sessionID,
			"page":       page,
			"evaluation": eval,
		},
	})
}
