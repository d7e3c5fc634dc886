package handler

import "github.com/hanpama/viewexec/internal/options"

// BrokenHandler stands in for a configuration whose table, field or plugin
// can no longer be resolved. It is listed but never queried or rendered.
type BrokenHandler struct {
	Base
	// Reason says what failed to resolve.
	Reason string
}

func NewBroken(reason string) *BrokenHandler { return &BrokenHandler{Reason: reason} }

func (h *BrokenHandler) Broken() bool { return true }

func (h *BrokenHandler) DefineOptions() options.Schema { return h.Base.DefineOptions() }

// Access always allows broken handlers so they stay visible for editing.
func (h *BrokenHandler) Access(Account) bool { return true }
