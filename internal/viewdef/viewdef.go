// Package viewdef holds the persisted configuration of a view: its base
// table and its displays, each with handler lists and plugin selections.
//
// Definitions are read-only to the executor. Non-default displays inherit
// any option or handler list they do not override from the "default"
// display.
package viewdef

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
)

// DefaultDisplay is the id of the display every view carries first.
const DefaultDisplay = "default"

var (
	// ErrNotFound is returned when a view or display does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned when a definition fails validation.
	ErrInvalid = errors.New("invalid view definition")
	// ErrNoStore is returned by Save on a view not bound to a store.
	ErrNoStore = errors.New("view is not bound to a store")
)

// View is one stored view configuration.
type View struct {
	Name        string     `yaml:"name" json:"name"`
	Label       string     `yaml:"label,omitempty" json:"label,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	BaseTable   string     `yaml:"base_table" json:"base_table"`
	Disabled    bool       `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Displays    []*Display `yaml:"displays" json:"displays"`

	store Store
}

// Display is the configuration of one named presentation.
type Display struct {
	ID       string                     `yaml:"id" json:"id"`
	Plugin   string                     `yaml:"display_plugin" json:"display_plugin"`
	Title    string                     `yaml:"display_title,omitempty" json:"display_title,omitempty"`
	Options  map[string]any             `yaml:"display_options,omitempty" json:"display_options,omitempty"`
	Handlers map[string][]HandlerConfig `yaml:"handlers,omitempty" json:"handlers,omitempty"`
}

// HandlerConfig is one configured handler instance.
type HandlerConfig struct {
	ID      string         `yaml:"id" json:"id"`
	Table   string         `yaml:"table" json:"table"`
	Field   string         `yaml:"field" json:"field"`
	Plugin  string         `yaml:"plugin,omitempty" json:"plugin,omitempty"`
	Options map[string]any `yaml:",inline" json:"options,omitempty"`
}

// PluginSelection names a sub-plugin (style, pager, cache, exposed form)
// and its options.
type PluginSelection struct {
	Type    string         `mapstructure:"type"`
	Options map[string]any `mapstructure:"options"`
}

// Enabled reports whether the view may be executed at all.
func (v *View) Enabled() bool { return !v.Disabled }

// Bind attaches the view to the store Save forwards to.
func (v *View) Bind(s Store) { v.store = s }

// Save persists the view through its store.
func (v *View) Save() error {
	if v.store == nil {
		return ErrNoStore
	}
	return v.store.Save(v)
}

// Display returns the display with the given id.
func (v *View) Display(id string) (*Display, bool) {
	for _, d := range v.Displays {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}

// DisplayIDs returns display ids in stored order.
func (v *View) DisplayIDs() []string {
	out := make([]string, 0, len(v.Displays))
	for _, d := range v.Displays {
		out = append(out, d.ID)
	}
	return out
}

// NewDisplay adds a display using plugin. An empty id is generated from
// the plugin name.
func (v *View) NewDisplay(plugin, title, id string) (*Display, error) {
	if plugin == "" {
		return nil, fmt.Errorf("%w: display plugin is required", ErrInvalid)
	}
	if id == "" {
		id = plugin + "_1"
		for n := 2; ; n++ {
			if _, exists := v.Display(id); !exists {
				break
			}
			id = plugin + "_" + strconv.Itoa(n)
		}
	}
	if _, exists := v.Display(id); exists {
		return nil, fmt.Errorf("%w: display %q already exists", ErrInvalid, id)
	}
	d := &Display{ID: id, Plugin: plugin, Title: title}
	if id == DefaultDisplay {
		v.Displays = append([]*Display{d}, v.Displays...)
	} else {
		v.Displays = append(v.Displays, d)
	}
	return d, nil
}

// IsDefaulted reports whether displayID takes option name from the default
// display.
func (v *View) IsDefaulted(displayID, name string) bool {
	if displayID == DefaultDisplay {
		return false
	}
	d, ok := v.Display(displayID)
	if !ok {
		return true
	}
	if _, own := d.Options[name]; own {
		return false
	}
	if _, own := d.Handlers[name]; own {
		return false
	}
	return true
}

// Option resolves a display option, falling back to the default display.
func (v *View) Option(displayID, name string) (any, bool) {
	if d, ok := v.Display(displayID); ok {
		if val, own := d.Options[name]; own {
			return val, true
		}
	}
	if displayID == DefaultDisplay {
		return nil, false
	}
	if d, ok := v.Display(DefaultDisplay); ok {
		val, own := d.Options[name]
		return val, own
	}
	return nil, false
}

// SetOption stores an option on displayID, or on the default display when
// displayID inherits it.
func (v *View) SetOption(displayID, name string, value any) {
	d := v.owner(displayID, name)
	if d == nil {
		return
	}
	if d.Options == nil {
		d.Options = map[string]any{}
	}
	d.Options[name] = value
}

// Override makes displayID own option name, copying the inherited value.
func (v *View) Override(displayID, name string) {
	if !v.IsDefaulted(displayID, name) {
		return
	}
	d, ok := v.Display(displayID)
	if !ok {
		return
	}
	if list, inherited := v.handlers(DefaultDisplay, name); inherited {
		if d.Handlers == nil {
			d.Handlers = map[string][]HandlerConfig{}
		}
		d.Handlers[name] = append([]HandlerConfig(nil), list...)
		return
	}
	val, _ := v.Option(DefaultDisplay, name)
	if d.Options == nil {
		d.Options = map[string]any{}
	}
	d.Options[name] = val
}

// Plugin decodes a plugin selection option such as "pager" or "style".
func (v *View) Plugin(displayID, name string) (PluginSelection, error) {
	var sel PluginSelection
	raw, ok := v.Option(displayID, name)
	if !ok || raw == nil {
		return sel, nil
	}
	if err := mapstructure.Decode(raw, &sel); err != nil {
		return sel, fmt.Errorf("decode %s option of display %s: %w", name, displayID, err)
	}
	return sel, nil
}

func (v *View) owner(displayID, name string) *Display {
	if v.IsDefaulted(displayID, name) {
		d, _ := v.Display(DefaultDisplay)
		return d
	}
	d, _ := v.Display(displayID)
	return d
}
