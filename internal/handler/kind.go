package handler

import "fmt"

// Kind is one of the fixed handler kinds. The declaration order is the
// order in which the executor walks kinds; relationships come first so
// their aliases exist before anything references them.
type Kind int

const (
	Relationship Kind = iota
	Field
	Argument
	Sort
	Filter
	Header
	Footer
	Empty
)

var kindInfo = [...]struct {
	name   string
	plural string
	typ    string
}{
	Relationship: {"relationship", "relationships", "relationship"},
	Field:        {"field", "fields", "field"},
	Argument:     {"argument", "arguments", "argument"},
	Sort:         {"sort", "sorts", "sort"},
	Filter:       {"filter", "filters", "filter"},
	Header:       {"header", "header", "area"},
	Footer:       {"footer", "footer", "area"},
	Empty:        {"empty", "empty", "area"},
}

// Kinds returns every kind in evaluation order.
func Kinds() []Kind {
	return []Kind{Relationship, Field, Argument, Sort, Filter, Header, Footer, Empty}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindInfo) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindInfo[k].name
}

// Plural is the key handler lists are stored under in a display.
func (k Kind) Plural() string { return kindInfo[k].plural }

// Type is the registry type; header, footer and empty share "area".
func (k Kind) Type() string { return kindInfo[k].typ }

// IsArea reports whether k is header, footer or empty.
func (k Kind) IsArea() bool { return k == Header || k == Footer || k == Empty }

// ParseKind accepts a kind name or its plural.
func ParseKind(s string) (Kind, bool) {
	for i, info := range kindInfo {
		if s == info.name || s == info.plural {
			return Kind(i), true
		}
	}
	return 0, false
}
