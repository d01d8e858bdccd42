package attr

import (
	"strings"
	"unicode"
)

// Keys consulted by the production rules.
const (
	KeyAs        = "as"
	KeyType      = "type"
	KeyClassName = "class_name"
)

// Pair is one `key => value` fragment with quotes removed from the value.
type Pair struct {
	Key   string
	Value string
}

// Metadata keeps pairs in source order.
type Metadata []Pair

// Get returns the first value stored for key.
func (m Metadata) Get(key string) (string, bool) {
	for _, p := range m {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// As returns the `as` override with leading punctuation removed, so
// `:as => :mail` yields "mail".
func (m Metadata) As() (string, bool) {
	v, ok := m.Get(KeyAs)
	if !ok {
		return "", false
	}
	v = strings.TrimLeftFunc(v, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	return v, v != ""
}

// Type returns the declared field type.
func (m Metadata) Type() (string, bool) {
	v, ok := m.Get(KeyType)
	return v, ok && v != ""
}

// ClassName returns the explicit relation target, possibly namespaced.
func (m Metadata) ClassName() (string, bool) {
	v, ok := m.Get(KeyClassName)
	return v, ok && v != ""
}
