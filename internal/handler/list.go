package handler

// List is an ordered set of handlers keyed by id. Insertion order is
// evaluation order.
type List struct {
	order []string
	byID  map[string]Handler
}

func NewList() *List { return &List{byID: map[string]Handler{}} }

// Add appends h, replacing any handler with the same id in place.
func (l *List) Add(h Handler) {
	if _, exists := l.byID[h.ID()]; !exists {
		l.order = append(l.order, h.ID())
	}
	l.byID[h.ID()] = h
}

func (l *List) Get(id string) (Handler, bool) {
	if l == nil {
		return nil, false
	}
	h, ok := l.byID[id]
	return h, ok
}

func (l *List) Remove(id string) {
	if _, ok := l.byID[id]; !ok {
		return
	}
	delete(l.byID, id)
	for i, x := range l.order {
		if x == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.order)
}

func (l *List) IDs() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.order...)
}

// All returns the handlers in order.
func (l *List) All() []Handler {
	if l == nil {
		return nil
	}
	out := make([]Handler, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// Fields returns the field renderers of l in order.
func (l *List) Fields() []FieldRenderer {
	var out []FieldRenderer
	for _, h := range l.All() {
		if f, ok := h.(FieldRenderer); ok {
			out = append(out, f)
		}
	}
	return out
}
