package viewsync

import "github.com/google/uuid"

// Viewer is a connected client that may receive a view's events.
type Viewer interface {
	ID() uuid.UUID
}

// Transport delivers one batch of events to one viewer. Implementations must
// not block the caller.
type Transport interface {
	Send(viewer Viewer, events []Event) error
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func(viewer Viewer, events []Event) error

func (f TransportFunc) Send(viewer Viewer, events []Event) error {
	return f(viewer, events)
}

// Audience is an external primitive that decides who can see a view, such as
// a tracked world entity. A synchronizer bound to an audience mirrors its
// viewer set instead of managing one, and forwards add and remove requests
// to Show and Hide. Both report whether the viewer set changed.
type Audience interface {
	Viewers() []Viewer
	Show(viewer Viewer) (bool, error)
	Hide(viewer Viewer) (bool, error)
}

// FailureHandler observes transport failures.
type FailureHandler func(viewer Viewer, err error)
