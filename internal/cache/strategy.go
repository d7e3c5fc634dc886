package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/hanpama/viewexec/internal/query"
)

// ErrUnknownStrategy is returned by New for an unregistered cache type.
var ErrUnknownStrategy = errors.New("unknown cache plugin")

// Key identifies one cacheable run of a display.
type Key struct {
	View    string            `json:"view"`
	Display string            `json:"display"`
	Options map[string]any    `json:"options,omitempty"`
	Query   string            `json:"query"`
	Args    []string          `json:"args,omitempty"`
	Exposed map[string]string `json:"exposed,omitempty"`
	Page    int               `json:"page"`
	// Denied lists handler ids removed by access checks, per kind. Actors
	// with different permissions never share an entry.
	Denied map[string][]string `json:"denied,omitempty"`
}

// String is a stable digest of the key.
func (k Key) String() string {
	b, err := json.Marshal(k)
	if err != nil {
		b = []byte(fmt.Sprintf("%#v", k))
	}
	sum := sha256.Sum256(b)
	return k.View + ":" + k.Display + ":" + hex.EncodeToString(sum[:12])
}

// Strategy is a display's cache plugin. Results and output are cached
// independently.
type Strategy interface {
	Type() string
	GetResults(k Key) (*query.Result, bool)
	SetResults(k Key, res *query.Result) error
	GetOutput(k Key) (any, bool)
	SetOutput(k Key, out any) error
}

// Factory builds a strategy from its options.
type Factory func(opts map[string]any, store *Store) (Strategy, error)

var factories = map[string]Factory{
	"none": func(map[string]any, *Store) (Strategy, error) { return None{}, nil },
	"time": newTime,
}

// Register adds a cache plugin.
func Register(typ string, f Factory) { factories[typ] = f }

// Types lists the registered cache plugins.
func Types() []string {
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New returns the strategy typ. An empty type is "none".
func New(typ string, opts map[string]any, store *Store) (Strategy, error) {
	if typ == "" {
		typ = "none"
	}
	f, ok := factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, typ)
	}
	return f(opts, store)
}

// None never caches.
type None struct{}

func (None) Type() string                         { return "none" }
func (None) GetResults(Key) (*query.Result, bool) { return nil, false }
func (None) SetResults(Key, *query.Result) error  { return nil }
func (None) GetOutput(Key) (any, bool)            { return nil, false }
func (None) SetOutput(Key, any) error             { return nil }

// TimeOptions configure the time-based strategy. Lifespans are seconds;
// zero disables that artifact.
type TimeOptions struct {
	ResultsLifespan int `mapstructure:"results_lifespan"`
	OutputLifespan  int `mapstructure:"output_lifespan"`
}

// Time keeps results and output for fixed lifespans.
type Time struct {
	opts  TimeOptions
	store *Store
}

func newTime(raw map[string]any, store *Store) (Strategy, error) {
	opts := TimeOptions{ResultsLifespan: 3600, OutputLifespan: 3600}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode time cache options: %w", err)
	}
	if store == nil {
		if store, err = NewStore(0); err != nil {
			return nil, err
		}
	}
	return &Time{opts: opts, store: store}, nil
}

func (c *Time) Type() string { return "time" }

func (c *Time) Options() TimeOptions { return c.opts }

func (c *Time) GetResults(k Key) (*query.Result, bool) {
	if c.opts.ResultsLifespan <= 0 {
		return nil, false
	}
	v, ok := c.store.Get("results:" + k.String())
	if !ok {
		return nil, false
	}
	res, ok := v.(*query.Result)
	return res, ok
}

func (c *Time) SetResults(k Key, res *query.Result) error {
	if c.opts.ResultsLifespan <= 0 {
		return nil
	}
	return c.store.Set("results:"+k.String(), res, time.Duration(c.opts.ResultsLifespan)*time.Second)
}

func (c *Time) GetOutput(k Key) (any, bool) {
	if c.opts.OutputLifespan <= 0 {
		return nil, false
	}
	return c.store.Get("output:" + k.String())
}

func (c *Time) SetOutput(k Key, out any) error {
	if c.opts.OutputLifespan <= 0 {
		return nil
	}
	return c.store.Set("output:"+k.String(), out, time.Duration(c.opts.OutputLifespan)*time.Second)
}
