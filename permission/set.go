package permission

// Set is an immutable-by-value permission set backed by a [Mask64] over the
// vocabulary registry. The zero value is the empty set.
type Set struct {
	mask Mask64
}

// NewSet builds a set from vocabulary members. Values outside the vocabulary
// are ignored; use [ParseList] first to surface them.
func NewSet(perms ...Permission) Set {
	var s Set
	for _, p := range perms {
		s = s.With(p)
	}
	return s
}

// RootSet returns the set that grants every permission.
func RootSet() Set {
	var s Set
	for _, p := range vocabulary {
		s = s.With(p)
	}
	s.mask.Set(rootBit64)
	return s
}

// Has reports whether p is granted. The root bit grants everything in the
// vocabulary.
func (s Set) Has(p Permission) bool {
	bit, ok := defaultRegistry.Bit(string(p))
	if !ok {
		return false
	}
	return s.mask.Has(bit, true)
}

// With returns a copy of s with p added.
func (s Set) With(p Permission) Set {
	if bit, ok := defaultRegistry.Bit(string(p)); ok {
		s.mask.Set(bit)
	}
	return s
}

// Without returns a copy of s with p removed.
func (s Set) Without(p Permission) Set {
	if bit, ok := defaultRegistry.Bit(string(p)); ok {
		s.mask.Clear(bit)
	}
	return s
}

// Union returns s ∪ o.
func (s Set) Union(o Set) Set {
	return Set{mask: s.mask | o.mask}
}

// IsRoot reports whether the root bit is set.
func (s Set) IsRoot() bool {
	return s.mask.Has(rootBit64, false)
}

// Empty reports whether no permission is granted.
func (s Set) Empty() bool {
	return s.mask == 0
}

// Len returns the number of vocabulary permissions granted.
func (s Set) Len() int {
	return len(s.Permissions())
}

// Permissions lists the granted permissions in vocabulary order.
func (s Set) Permissions() []Permission {
	out := make([]Permission, 0, s.mask.Count())
	for _, p := range vocabulary {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Strings is [Set.Permissions] as plain strings, for storage and JSON.
func (s Set) Strings() []string {
	perms := s.Permissions()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// Raw exposes the underlying mask bits.
func (s Set) Raw() uint64 {
	return s.mask.Raw()
}
