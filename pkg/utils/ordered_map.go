package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// An OrderedMap is a map that additionally remembers the order in which keys
// were first inserted, so that iterating it (via Entries) is reproducible.
// Several of the higher stages (the Jack symbol table over class fields and
// subroutines, in particular) need this: a Go map iterates in randomized
// order, which would make codegen non-deterministic across runs (see
// spec.md §8.1, "Assembler determinism", which the same property is assumed
// to hold for the VM and Jack stages as well).
type OrderedMap[K comparable, V any] struct {
	index map[K]int
	items []MapEntry[K, V]
}

// A single key/value pair, exposed so that callers can build an OrderedMap
// from an arbitrary (even pre-sorted) slice via NewOrderedMapFromList.
type MapEntry[K comparable, V any] struct {
	Key   K
	Value V
}

// Builds a brand new, empty OrderedMap.
func NewOrderedMap[K comparable, V any]() OrderedMap[K, V] {
	return OrderedMap[K, V]{index: map[K]int{}}
}

// Builds an OrderedMap preserving the order of the given slice of entries.
// Later entries with a duplicate key overwrite earlier ones in place,
// without changing their position (same semantics as repeated Set calls).
func NewOrderedMapFromList[K comparable, V any](entries []MapEntry[K, V]) OrderedMap[K, V] {
	om := NewOrderedMap[K, V]()
	for _, entry := range entries {
		om.Set(entry.Key, entry.Value)
	}
	return om
}

// Inserts or overwrites the value associated to 'key', preserving the
// original insertion position on overwrite.
func (om *OrderedMap[K, V]) Set(key K, value V) {
	if om.index == nil {
		om.index = map[K]int{}
	}

	if pos, found := om.index[key]; found {
		om.items[pos].Value = value
		return
	}

	om.index[key] = len(om.items)
	om.items = append(om.items, MapEntry[K, V]{Key: key, Value: value})
}

// Looks up the value associated to 'key', the second return mirrors the
// Go built-in map "comma ok" idiom.
func (om *OrderedMap[K, V]) Get(key K) (V, bool) {
	if pos, found := om.index[key]; found {
		return om.items[pos].Value, true
	}
	var zero V
	return zero, false
}

// Removes the entry for 'key', if present, shifting following entries back.
func (om *OrderedMap[K, V]) Delete(key K) {
	pos, found := om.index[key]
	if !found {
		return
	}

	om.items = append(om.items[:pos], om.items[pos+1:]...)
	delete(om.index, key)
	for k, idx := range om.index {
		if idx > pos {
			om.index[k] = idx - 1
		}
	}
}

// Returns the number of entries currently stored.
func (om *OrderedMap[K, V]) Size() int { return len(om.items) }

// Returns the values in insertion order, ready to be ranged over.
func (om *OrderedMap[K, V]) Entries() []V {
	values := make([]V, 0, len(om.items))
	for _, entry := range om.items {
		values = append(values, entry.Value)
	}
	return values
}

// Returns the key/value pairs in insertion order.
func (om *OrderedMap[K, V]) Pairs() []MapEntry[K, V] {
	return append([]MapEntry[K, V]{}, om.items...)
}

// MarshalJSON encodes the map as a JSON object, writing entries in insertion
// order. Keys are rendered via fmt.Sprintf("%v", ...), matching what
// UnmarshalJSON expects back (a JSON object with string keys).
func (om OrderedMap[K, V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range om.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fmt.Sprintf("%v", entry.Key))
		if err != nil {
			return nil, fmt.Errorf("unable to marshal ordered map key: %w", err)
		}
		value, err := json.Marshal(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("unable to marshal ordered map value: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the map, preserving the field
// order found in the source document (the stdlib ABI embedded via
// go:embed relies on this to keep subroutine argument positions stable).
func (om *OrderedMap[K, V]) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	if tok, err := decoder.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("expected a JSON object to decode into an ordered map")
	}

	*om = NewOrderedMap[K, V]()
	for decoder.More() {
		keyTok, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("unable to decode ordered map key: %w", err)
		}
		keyStr, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("ordered map keys must be strings, got %T", keyTok)
		}
		key, ok := any(keyStr).(K)
		if !ok {
			return fmt.Errorf("ordered map key type must be (or be convertible from) string")
		}

		var value V
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("unable to decode ordered map value for key '%s': %w", keyStr, err)
		}
		om.Set(key, value)
	}
	return nil
}
