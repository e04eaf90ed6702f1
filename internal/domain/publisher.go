package domain

import "context"

// Publisher delivers a message to every currently connected viewer.
// Implementations never report per-viewer failures to the caller.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}
