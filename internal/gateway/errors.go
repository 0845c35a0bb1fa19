package gateway

import "errors"

var (
	ErrMediaUnavailable   = errors.New("media credential issuance failed")
	ErrRateLimited        = errors.New("signaling rate limit exceeded")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedPayload   = errors.New("malformed message payload")
)
