package view

import (
	"time"

	"github.com/hanpama/viewexec/internal/display"
)

// Lifecycle events. Each is published on the environment's bus with the
// executor it concerns; subscribers run in registration order and may call
// Executor.Abort from PreBuild or PreExecute.

// PreView is published by PreExecute before the display sets up.
type PreView struct {
	Executor  *Executor
	DisplayID string
	Args      []string
}

type PreBuild struct{ Executor *Executor }

type PostBuild struct {
	Executor *Executor
	Duration time.Duration
}

type PreExecute struct{ Executor *Executor }

type PostExecute struct {
	Executor *Executor
	Duration time.Duration
}

type PreRender struct{ Executor *Executor }

type PostRender struct {
	Executor *Executor
	Output   *display.Output
	Duration time.Duration
}

// QueryCaptureStart and QueryCaptureStop bracket a live preview render.
type QueryCaptureStart struct{ Executor *Executor }

type QueryCaptureStop struct {
	Executor *Executor
	Queries  []string
}

// CacheLookup reports a results or output cache lookup.
type CacheLookup struct {
	Executor *Executor
	Artifact string
	Hit      bool
}
