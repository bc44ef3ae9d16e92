package wire

import (
	"github.com/pkg/errors"

	"github.com/zeusync/hephaestus/internal/core/viewsync"
)

// Deliverer is a viewer connection that accepts event batches.
type Deliverer interface {
	viewsync.Viewer
	Deliver(events []viewsync.Event) error
}

// Transport routes batches to the connection behind each viewer.
type Transport struct{}

var _ viewsync.Transport = Transport{}

// Send delivers a batch. Batches for a closed connection are dropped: the
// session detaches its views as it ends.
func (Transport) Send(viewer viewsync.Viewer, events []viewsync.Event) error {
	d, ok := viewer.(Deliverer)
	if !ok {
		return errors.Errorf("viewer %s has no connection", viewer.ID())
	}
	if err := d.Deliver(events); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}
