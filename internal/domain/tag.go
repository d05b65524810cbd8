package domain

import (
	"maps"
	"slices"
)

// Tags is the key/value metadata attached to a feature.
type Tags map[string]string

// Clone returns an independent copy. A nil map clones to an empty one.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	maps.Copy(out, t)
	return out
}

// Keys returns the tag keys in sorted order.
func (t Tags) Keys() []string {
	return slices.Sorted(maps.Keys(t))
}

// TagMutation is a partial update of a feature's tags.
// Delete is applied before Set, so a key may be removed and re-added in one mutation.
type TagMutation struct {
	Set    Tags
	Delete []string
}

// IsEmpty reports whether the mutation changes nothing.
func (m TagMutation) IsEmpty() bool {
	return len(m.Set) == 0 && len(m.Delete) == 0
}

// Apply returns current with the mutation applied. current is not modified.
func (m TagMutation) Apply(current Tags) Tags {
	next := current.Clone()
	for _, key := range m.Delete {
		delete(next, key)
	}
	maps.Copy(next, m.Set)
	return next
}
