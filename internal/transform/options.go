package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidOptions is returned when transform options have the wrong shape.
var ErrInvalidOptions = errors.New("invalid transform options")

// Option keys accepted in events and JSON documents.
const (
	keyPageTitle        = "page_title"
	keyTextReplacements = "text_replacements"
	keyTextReplaces     = "text_replaces"
)

// Replacement is one literal old -> new substitution.
type Replacement struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Replacements is an ordered list of substitutions. In JSON it may be given
// as an object (applied in key order), as a list of {"old","new"} objects,
// or as a list of [old, new] pairs.
type Replacements []Replacement

// UnmarshalJSON decodes replacements keeping the order of declaration.
func (r *Replacements) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}

	switch data[0] {
	case '{':
		out, err := decodeOrderedObject(data)
		if err != nil {
			return err
		}
		*r = out
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
		out := make(Replacements, 0, len(items))
		for i, item := range items {
			rep, err := decodeReplacementItem(item)
			if err != nil {
				return fmt.Errorf("%w: item %d: %v", ErrInvalidOptions, i, err)
			}
			out = append(out, rep)
		}
		*r = out
		return nil
	default:
		return fmt.Errorf("%w: %s must be an object or a list", ErrInvalidOptions, keyTextReplacements)
	}
}

func decodeOrderedObject(data []byte) (Replacements, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	var out Replacements
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
		key, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: replacement for %q must be a string, got %T", ErrInvalidOptions, key, value)
		}
		out = append(out, Replacement{Old: key, New: s})
	}
	return out, nil
}

func decodeReplacementItem(item json.RawMessage) (Replacement, error) {
	var pair []string
	if err := json.Unmarshal(item, &pair); err == nil {
		if len(pair) != 2 {
			return Replacement{}, fmt.Errorf("pair must have exactly 2 elements, got %d", len(pair))
		}
		return Replacement{Old: pair[0], New: pair[1]}, nil
	}

	var rep Replacement
	if err := json.Unmarshal(item, &rep); err != nil {
		return Replacement{}, errors.New("must be an {\"old\",\"new\"} object or an [old, new] pair")
	}
	return rep, nil
}

// Options selects the rewrites applied to a response.
type Options struct {
	PageTitle        string       `json:"page_title,omitempty"`
	TextReplacements Replacements `json:"text_replacements,omitempty"`
}

// UnmarshalJSON accepts "text_replaces" as an alias of "text_replacements".
func (o *Options) UnmarshalJSON(data []byte) error {
	var raw struct {
		PageTitle        *string      `json:"page_title"`
		TextReplacements Replacements `json:"text_replacements"`
		TextReplaces     Replacements `json:"text_replaces"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		if errors.Is(err, ErrInvalidOptions) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	*o = Options{TextReplacements: raw.TextReplacements}
	if raw.PageTitle != nil {
		o.PageTitle = *raw.PageTitle
	}
	if o.TextReplacements == nil {
		o.TextReplacements = raw.TextReplaces
	}
	return nil
}

// IsEmpty reports whether o requests no rewrite at all.
func (o *Options) IsEmpty() bool {
	return o == nil || (o.PageTitle == "" && len(o.TextReplacements) == 0)
}

// ParseOptions converts an untyped options value, as found in a decoded
// event, into Options. A nil value yields nil options. Replacements given as
// a map are applied in sorted key order since a decoded map has lost the
// order of declaration.
func ParseOptions(raw any) (*Options, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case *Options:
		return v, nil
	case Options:
		return &v, nil
	case json.RawMessage:
		return parseOptionsJSON(v)
	case []byte:
		return parseOptionsJSON(v)
	case map[string]any:
		return parseOptionsMap(v)
	default:
		return nil, fmt.Errorf("%w: must be a key-value structure, got %T", ErrInvalidOptions, raw)
	}
}

func parseOptionsJSON(data []byte) (*Options, error) {
	opts := &Options{}
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func parseOptionsMap(m map[string]any) (*Options, error) {
	opts := &Options{}

	if v, ok := m[keyPageTitle]; ok && v != nil {
		title, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidOptions, keyPageTitle, v)
		}
		opts.PageTitle = title
	}

	v, ok := m[keyTextReplacements]
	if !ok || v == nil {
		v = m[keyTextReplaces]
	}
	reps, err := replacementsFromValue(v)
	if err != nil {
		return nil, err
	}
	opts.TextReplacements = reps
	return opts, nil
}

func replacementsFromValue(v any) (Replacements, error) {
	switch r := v.(type) {
	case nil:
		return nil, nil
	case Replacements:
		return r, nil
	case []Replacement:
		return r, nil
	case map[string]string:
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Replacements, 0, len(keys))
		for _, k := range keys {
			out = append(out, Replacement{Old: k, New: r[k]})
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Replacements, 0, len(keys))
		for _, k := range keys {
			s, ok := r[k].(string)
			if !ok {
				return nil, fmt.Errorf("%w: replacement for %q must be a string, got %T", ErrInvalidOptions, k, r[k])
			}
			out = append(out, Replacement{Old: k, New: s})
		}
		return out, nil
	case []any:
		out := make(Replacements, 0, len(r))
		for i, item := range r {
			rep, err := replacementFromItem(item)
			if err != nil {
				return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidOptions, i, err)
			}
			out = append(out, rep)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a mapping or a list, got %T", ErrInvalidOptions, keyTextReplacements, v)
	}
}

func replacementFromItem(item any) (Replacement, error) {
	switch it := item.(type) {
	case []any:
		if len(it) != 2 {
			return Replacement{}, fmt.Errorf("pair must have exactly 2 elements, got %d", len(it))
		}
		old, ok1 := it[0].(string)
		repl, ok2 := it[1].(string)
		if !ok1 || !ok2 {
			return Replacement{}, errors.New("pair elements must be strings")
		}
		return Replacement{Old: old, New: repl}, nil
	case map[string]any:
		old, ok1 := it["old"].(string)
		repl, ok2 := it["new"].(string)
		if !ok1 || !ok2 {
			return Replacement{}, errors.New(`object must have string "old" and "new"`)
		}
		return Replacement{Old: old, New: repl}, nil
	default:
		return Replacement{}, fmt.Errorf("unsupported replacement %T", item)
	}
}
