package audit

import (
	"iter"
	"slices"

	"github.com/cockroachdb/errors"
)

// Fields is an ordered, insert-only string mapping. Iteration follows insertion order.
// Entries are added only while a CapturedRequest is being built; the zero value and a
// nil *Fields are empty and safe to read.
type Fields struct {
	keys   []string
	values map[string]string
}

func newFields() *Fields {
	return &Fields{values: make(map[string]string)}
}

// add inserts key. A second insert of the same key fails with ErrDuplicateKey.
func (f *Fields) add(key, value string) error {
	if _, exists := f.values[key]; exists {
		return errors.Wrapf(ErrDuplicateKey, "key %q", key)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.keys = append(f.keys, key)
	f.values[key] = value
	return nil
}

// Get returns the value stored under key.
func (f *Fields) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.values[key]
	return v, ok
}

// Value returns the value stored under key, or "" when absent.
func (f *Fields) Value(key string) string {
	v, _ := f.Get(key)
	return v
}

func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Keys returns a copy of the keys in insertion order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	return slices.Clone(f.keys)
}

// All iterates over the entries in insertion order.
func (f *Fields) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if f == nil {
			return
		}
		for _, k := range f.keys {
			if !yield(k, f.values[k]) {
				return
			}
		}
	}
}

// Without returns a filtered copy that omits the given keys.
func (f *Fields) Without(keys ...string) *Fields {
	out := newFields()
	for k, v := range f.All() {
		if slices.Contains(keys, k) {
			continue
		}
		out.keys = append(out.keys, k)
		out.values[k] = v
	}
	return out
}
