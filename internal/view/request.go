package view

import (
	"net/url"
	"sync"
)

// Request is the request context an executor reads exposed input and
// paging parameters from.
type Request struct {
	Query   url.Values
	Session Session
}

// Session stores remembered exposed input.
type Session interface {
	Get(key string) (map[string]string, bool)
	// Set stores v under key; a nil v forgets it.
	Set(key string, v map[string]string)
}

// MemorySession is a Session held in memory.
type MemorySession struct {
	mu sync.Mutex
	m  map[string]map[string]string
}

func NewMemorySession() *MemorySession {
	return &MemorySession{m: map[string]map[string]string{}}
}

func (s *MemorySession) Get(key string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return copyInput(v), ok
}

func (s *MemorySession) Set(key string, v map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == nil {
		delete(s.m, key)
		return
	}
	s.m[key] = copyInput(v)
}

func copyInput(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ExposedInput returns the input exposed handlers see: input set with
// SetExposedInput, else the request query without paging and routing
// parameters, else what the session remembered.
func (e *Executor) ExposedInput() map[string]string {
	if e.exposedInput != nil {
		return e.exposedInput
	}
	in := map[string]string{}
	for k, vs := range e.request.Query {
		if k == "page" || k == "q" || len(vs) == 0 {
			continue
		}
		in[k] = vs[0]
	}
	if len(in) == 0 && e.request.Session != nil && e.display != nil {
		if m, ok := e.request.Session.Get(e.sessionKey()); ok {
			in = m
		}
	}
	e.exposedInput = in
	return in
}

// SetExposedInput replaces the exposed input.
func (e *Executor) SetExposedInput(in map[string]string) { e.exposedInput = copyInput(in) }

// RememberExposedInput stores in for later requests. Displays sharing the
// default filters share what is remembered.
func (e *Executor) RememberExposedInput(in map[string]string) {
	if e.request.Session == nil || e.display == nil {
		return
	}
	e.request.Session.Set(e.sessionKey(), in)
}

func (e *Executor) sessionKey() string {
	id := e.currentDisplay
	if e.display.IsDefaulted("filters") {
		id = "default"
	}
	return "views:" + e.view.Name + ":" + id
}

// Param returns a request query parameter.
func (e *Executor) Param(name string) string { return e.request.Query.Get(name) }
