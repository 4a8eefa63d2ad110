package statelog

import "errors"

var (
	// ErrConnectionInit wraps failures to establish the store connection.
	ErrConnectionInit = errors.New("statelog: connection init failed")
	// ErrStoreWrite wraps failures to persist a document.
	ErrStoreWrite = errors.New("statelog: store write failed")
	// ErrClosed is returned by a Connector after Close.
	ErrClosed = errors.New("statelog: connector closed")
)
