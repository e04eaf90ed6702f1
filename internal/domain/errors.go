package domain

import "errors"

var (
	// ErrConnectionSetup is returned when a viewer cannot be registered.
	ErrConnectionSetup = errors.New("connection setup failed")

	// ErrSubscriberClosed is returned when delivering to a subscriber whose transport is gone.
	ErrSubscriberClosed = errors.New("subscriber closed")
	// ErrQueueFull is returned when a subscriber queue is full and no wait is allowed.
	ErrQueueFull = errors.New("subscriber queue full")
	// ErrSendTimeout is returned when a subscriber queue stays full for the whole send timeout.
	ErrSendTimeout = errors.New("subscriber send timed out")

	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamRejected    = errors.New("upstream rejected request")
	ErrUpstreamInterrupted = errors.New("upstream stream interrupted")
	ErrMissingCredential   = errors.New("missing upstream credential")
	ErrChunkDecode         = errors.New("chunk is not valid utf-8")
)
