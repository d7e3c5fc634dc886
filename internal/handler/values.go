package handler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		return f, err == nil
	}
	return 0, false
}

// isZero reports whether v is the integer zero or the string "0".
func isZero(v any) bool {
	switch t := v.(type) {
	case int:
		return t == 0
	case int64:
		return t == 0
	case int32:
		return t == 0
	case string:
		return t == "0"
	}
	return false
}

// looseEmpty reports whether v counts as empty for the hide_empty and
// empty_zero options: nil, "", "0", zero numbers, false and empty
// collections.
func looseEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == "" || t == "0"
	case bool:
		return !t
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func sortByLengthDesc(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
}

// StripTags removes markup from s, keeping the tags named in allowed
// (written as "<a><em>").
func StripTags(s, allowed string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	keep := map[string]bool{}
	for _, part := range strings.Split(allowed, ">") {
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "<"))
		if name != "" {
			keep[strings.ToLower(name)] = true
		}
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Raw())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if keep[strings.ToLower(string(name))] {
				b.Write(z.Raw())
			}
		}
	}
}
