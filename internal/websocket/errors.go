package websocket

import "errors"

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrInvalidJSON      = errors.New("failed to marshal message to JSON")
	ErrWriteTimeout     = errors.New("write operation timed out")
)
