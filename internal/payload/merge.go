package payload

import "encoding/json"

// Strategy selects how an incoming value is combined with the stored one.
type Strategy string

const (
	// Replace stores the incoming value unchanged.
	Replace Strategy = "replace"
	// Merge unions two objects, incoming keys override stored keys.
	Merge Strategy = "merge"
	// Append concatenates the incoming value onto a stored array.
	Append Strategy = "append"
)

// Valid reports whether s is a known strategy. The empty strategy is valid
// and behaves like Replace.
func (s Strategy) Valid() bool {
	switch s {
	case "", Replace, Merge, Append:
		return true
	}
	return false
}

// Apply combines stored and incoming per strategy. Whenever the strategy
// does not fit the shapes involved the incoming value wins, so Apply never
// fails on well-formed canonical input.
func Apply(strategy Strategy, stored, incoming json.RawMessage) (json.RawMessage, error) {
	switch strategy {
	case Merge:
		if merged, ok, err := MergeObjects(stored, incoming); err != nil || ok {
			return merged, err
		}
	case Append:
		if appended, ok, err := appendArray(stored, incoming); err != nil || ok {
			return appended, err
		}
	}
	return Clone(incoming), nil
}

// MergeObjects returns the shallow union of two JSON objects with keys from
// incoming overriding stored. ok is false when either side is not an object.
func MergeObjects(stored, incoming json.RawMessage) (json.RawMessage, bool, error) {
	base, ok := asObject(stored)
	if !ok {
		return nil, false, nil
	}
	over, ok := asObject(incoming)
	if !ok {
		return nil, false, nil
	}
	for k, v := range over {
		base[k] = v
	}
	out, err := encode(base)
	return out, err == nil, err
}

func appendArray(stored, incoming json.RawMessage) (json.RawMessage, bool, error) {
	v, err := Decode(stored)
	if err != nil {
		return nil, false, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false, nil
	}

	next, err := Decode(incoming)
	if err != nil {
		return nil, false, err
	}
	if more, ok := next.([]any); ok {
		list = append(list, more...)
	} else {
		list = append(list, next)
	}
	out, err := encode(list)
	return out, err == nil, err
}

func asObject(raw json.RawMessage) (map[string]any, bool) {
	v, err := Decode(raw)
	if err != nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}
