package viewdef

import "strconv"

// GenerateItemID returns requested if no item in existing uses it,
// otherwise requested suffixed with "_1", "_2", ... until unique.
func GenerateItemID(requested string, existing []HandlerConfig) string {
	taken := make(map[string]struct{}, len(existing))
	for _, it := range existing {
		taken[it.ID] = struct{}{}
	}
	id := requested
	for count := 1; ; count++ {
		if _, ok := taken[id]; !ok {
			return id
		}
		id = requested + "_" + strconv.Itoa(count)
	}
}

// Items returns the handler configs of type plural ("fields", "filters",
// ...) for displayID, honouring default-display inheritance.
func (v *View) Items(displayID, plural string) []HandlerConfig {
	if d, ok := v.Display(displayID); ok {
		if list, own := d.Handlers[plural]; own {
			return list
		}
	}
	list, _ := v.handlers(DefaultDisplay, plural)
	return list
}

// Item returns one handler config.
func (v *View) Item(displayID, plural, id string) (HandlerConfig, bool) {
	for _, it := range v.Items(displayID, plural) {
		if it.ID == id {
			return it, true
		}
	}
	return HandlerConfig{}, false
}

// AddItem appends a handler config and returns its unique id. An empty id
// is derived from the field name.
func (v *View) AddItem(displayID, plural, table, field string, opts map[string]any, id string) string {
	items := v.Items(displayID, plural)
	if id == "" {
		id = field
	}
	id = GenerateItemID(id, items)
	cfg := HandlerConfig{ID: id, Table: table, Field: field, Options: map[string]any{}}
	for k, val := range opts {
		cfg.Options[k] = val
	}
	if p, ok := opts["plugin"].(string); ok {
		cfg.Plugin = p
		delete(cfg.Options, "plugin")
	}
	next := append(append([]HandlerConfig(nil), items...), cfg)
	v.setItems(displayID, plural, next)
	return id
}

// SetItem replaces the config of item id. A nil item removes it.
func (v *View) SetItem(displayID, plural, id string, item *HandlerConfig) {
	items := v.Items(displayID, plural)
	next := make([]HandlerConfig, 0, len(items)+1)
	replaced := false
	for _, it := range items {
		if it.ID != id {
			next = append(next, it)
			continue
		}
		if item != nil {
			c := *item
			c.ID = id
			next = append(next, c)
		}
		replaced = true
	}
	if !replaced && item != nil {
		c := *item
		c.ID = id
		next = append(next, c)
	}
	v.setItems(displayID, plural, next)
}

// SetItemOption sets a single option on item id.
func (v *View) SetItemOption(displayID, plural, id, option string, value any) {
	item, ok := v.Item(displayID, plural, id)
	if !ok {
		return
	}
	opts := make(map[string]any, len(item.Options)+1)
	for k, val := range item.Options {
		opts[k] = val
	}
	opts[option] = value
	item.Options = opts
	v.SetItem(displayID, plural, id, &item)
}

func (v *View) handlers(displayID, plural string) ([]HandlerConfig, bool) {
	d, ok := v.Display(displayID)
	if !ok {
		return nil, false
	}
	list, own := d.Handlers[plural]
	return list, own
}

func (v *View) setItems(displayID, plural string, items []HandlerConfig) {
	d := v.owner(displayID, plural)
	if d == nil {
		return
	}
	if d.Handlers == nil {
		d.Handlers = map[string][]HandlerConfig{}
	}
	d.Handlers[plural] = items
}
