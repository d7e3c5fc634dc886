package viewdef

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const documentSchema = `{
  "type": "object",
  "required": ["name", "base_table", "displays"],
  "properties": {
    "name": {"type": "string", "pattern": "^[a-z0-9_]+$"},
    "base_table": {"type": "string", "minLength": 1},
    "disabled": {"type": "boolean"},
    "displays": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "display_plugin"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "display_plugin": {"type": "string", "minLength": 1},
          "display_options": {"type": "object"},
          "handlers": {
            "type": "object",
            "additionalProperties": {
              "type": "array",
              "items": {
                "type": "object",
                "required": ["id", "table", "field"],
                "properties": {
                  "id": {"type": "string", "minLength": 1},
                  "table": {"type": "string"},
                  "field": {"type": "string", "minLength": 1}
                }
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		panic(err)
	}
	return s
}()

// Parse validates a YAML document and decodes it into a View.
func Parse(data []byte) (*View, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := ValidateDocument(normalize(raw)); err != nil {
		return nil, err
	}
	var v View
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := Check(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ValidateDocument checks a decoded document against the definition schema.
func ValidateDocument(doc any) error {
	res, err := compiledSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// Check enforces structural rules the schema cannot express: a default
// display exists and comes first. Display ids are unique, and so are
// handler ids within one display and kind.
func Check(v *View) error {
	if v.Name == "" || v.BaseTable == "" {
		return fmt.Errorf("%w: name and base_table are required", ErrInvalid)
	}
	if len(v.Displays) == 0 || v.Displays[0].ID != DefaultDisplay {
		return fmt.Errorf("%w: view %s must start with the %q display", ErrInvalid, v.Name, DefaultDisplay)
	}
	seen := map[string]struct{}{}
	for _, d := range v.Displays {
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate display %q", ErrInvalid, d.ID)
		}
		seen[d.ID] = struct{}{}
		if err := checkHandlerIDs(*d); err != nil {
			return err
		}
	}
	return nil
}

func checkHandlerIDs(d Display) error {
	kinds := make([]string, 0, len(d.Handlers))
	for k := range d.Handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		ids := map[string]struct{}{}
		for _, h := range d.Handlers[k] {
			if _, dup := ids[h.ID]; dup {
				return fmt.Errorf("%w: display %s has duplicate %s handler %q", ErrInvalid, d.ID, k, h.ID)
			}
			ids[h.ID] = struct{}{}
		}
	}
	return nil
}

// normalize converts map[any]any nodes so the document is JSON shaped.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}
