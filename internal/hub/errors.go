package hub

import "errors"

var (
	ErrHubClosed         = errors.New("hub is closed")
	ErrUnknownConnection = errors.New("connection not registered")
	ErrNilSink           = errors.New("cannot register nil sink")
)
