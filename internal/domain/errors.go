package domain

import "errors"

// Sentinel errors for the transport layer. The public client operations are
// best-effort and never return these; they show up in logs and internal branching.
var (
	ErrNotConnected   = errors.New("remote hub is not connected")
	ErrClientClosed   = errors.New("client has been shut down")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrSendQueueFull  = errors.New("send queue full")
)
