package bus

import "github.com/google/uuid"

// Lifecycle event types published by views and the server.
const (
	ViewCreated     = "view.created"
	ViewDestroyed   = "view.destroyed"
	ViewerAdded     = "viewer.added"
	ViewerRemoved   = "viewer.removed"
	TransportFailed = "transport.failed"
)

// ViewPayload is the data of view.created and view.destroyed.
type ViewPayload struct {
	View  uuid.UUID
	Model string
}

// ViewerPayload is the data of viewer.added, viewer.removed and
// transport.failed. Err is set only for transport failures.
type ViewerPayload struct {
	View   uuid.UUID
	Viewer uuid.UUID
	Err    error
}
