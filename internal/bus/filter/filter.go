// Package filter provides message predicates that handlers can attach to
// narrow what they receive beyond the declared message type.
package filter

import (
	"encoding/json"
	"reflect"

	"github.com/tidwall/gjson"
)

// Func is a predicate over a message. Return true to deliver it.
type Func func(message any) bool

// All matches when every filter matches. No filters matches everything.
func All(filters ...Func) Func {
	return func(message any) bool {
		for _, f := range filters {
			if f != nil && !f(message) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one filter matches. No filters matches nothing.
func Any(filters ...Func) Func {
	return func(message any) bool {
		for _, f := range filters {
			if f != nil && f(message) {
				return true
			}
		}
		return false
	}
}

// Not inverts a filter.
func Not(f Func) Func {
	return func(message any) bool {
		return !f(message)
	}
}

// OfType matches messages assignable to T.
func OfType[T any]() Func {
	return func(message any) bool {
		_, ok := message.(T)
		return ok
	}
}

// ExactType matches messages whose dynamic type is exactly t.
func ExactType(t reflect.Type) Func {
	return func(message any) bool {
		return reflect.TypeOf(message) == t
	}
}

// rawJSON extracts a JSON document from messages that carry one.
func rawJSON(message any) (string, bool) {
	switch m := message.(type) {
	case json.RawMessage:
		return string(m), true
	case []byte:
		return string(m), true
	case string:
		return m, true
	default:
		return "", false
	}
}

// JSONPath matches raw JSON messages ([]byte, json.RawMessage or string)
// whose value at path, rendered as a string, equals want.
// Path syntax is gjson's (e.g. "order.items.#", "user.role").
func JSONPath(path, want string) Func {
	return func(message any) bool {
		doc, ok := rawJSON(message)
		if !ok || !gjson.Valid(doc) {
			return false
		}
		res := gjson.Get(doc, path)
		return res.Exists() && res.String() == want
	}
}

// JSONExists matches raw JSON messages that have a value at path.
func JSONExists(path string) Func {
	return func(message any) bool {
		doc, ok := rawJSON(message)
		if !ok || !gjson.Valid(doc) {
			return false
		}
		return gjson.Get(doc, path).Exists()
	}
}
