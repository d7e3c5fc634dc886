package view

import "sync"

// Stack tracks the executors currently running. The top is the current
// view; attachments push themselves while they run and the previous
// executor is current again once they pop.
type Stack struct {
	mu    sync.Mutex
	items []*Executor
}

func NewStack() *Stack { return &Stack{} }

func (s *Stack) Push(e *Executor) {
	s.mu.Lock()
	s.items = append(s.items, e)
	s.mu.Unlock()
}

// Pop removes e and everything pushed after it.
func (s *Stack) Pop(e *Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i] == e {
			s.items = s.items[:i]
			return
		}
	}
}

// Current returns the executor on top, or nil.
func (s *Stack) Current() *Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1]
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
