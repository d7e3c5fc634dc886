// Package events defines the transport level events published on the bus.
// Executor lifecycle events live with the executor.
package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when an HTTP request is received.
// Context carries the request context.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the handler completes.
type HTTPFinish struct {
	Request *http.Request
	// View and Display name what was served, empty when no view matched.
	View     string
	Display  string
	Status   int
	Duration time.Duration
}
