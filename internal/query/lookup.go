package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// Lookup fetches one column for a batch of keys. Field handlers use it
// from their pre-render hook to load related values in one round trip.
type Lookup interface {
	LookupValues(ctx context.Context, table, keyField, valueField string, keys []any) (map[string]any, error)
}

// SQLLookup is the database/sql Lookup.
type SQLLookup struct {
	Runner  Runner
	Dialect Dialect
}

func (l *SQLLookup) LookupValues(ctx context.Context, table, keyField, valueField string, keys []any) (map[string]any, error) {
	out := map[string]any{}
	if len(keys) == 0 {
		return out, nil
	}
	for _, id := range []string{table, keyField, valueField} {
		if !identRe.MatchString(id) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, id)
		}
	}
	r := &renderer{dialect: l.Dialect}
	ph := make([]string, len(keys))
	for i, k := range keys {
		ph[i] = r.bind(k)
	}
	stmt := fmt.Sprintf("SELECT %s AS k, %s AS v FROM %s WHERE %s IN (%s)",
		quote(keyField), quote(valueField), quote(table), quote(keyField), strings.Join(ph, ", "))
	rows, err := ScanRows(ctx, l.Runner, stmt, r.args)
	if err != nil {
		return nil, fmt.Errorf("lookup %s.%s: %w", table, valueField, err)
	}
	for _, row := range rows {
		out[KeyString(row.Values["k"])] = row.Values["v"]
	}
	return out, nil
}

// KeyString normalizes a key value for map lookups.
func KeyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	}
	return fmt.Sprint(v)
}

// Recorder wraps a Runner and keeps every statement it sees while
// recording is on.
type Recorder struct {
	Runner

	mu        sync.Mutex
	recording bool
	stmts     []string
}

func NewRecorder(r Runner) *Recorder { return &Recorder{Runner: r} }

func (r *Recorder) QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	r.mu.Lock()
	if r.recording {
		r.stmts = append(r.stmts, q)
	}
	r.mu.Unlock()
	return r.Runner.QueryContext(ctx, q, args...)
}

// Start begins a new capture, discarding earlier statements.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = true
	r.stmts = nil
}

// Stop ends the capture and returns what was recorded.
func (r *Recorder) Stop() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	out := r.stmts
	r.stmts = nil
	return out
}
