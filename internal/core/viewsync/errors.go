package viewsync

import "errors"

var ErrClosed = errors.New("synchronizer closed")
