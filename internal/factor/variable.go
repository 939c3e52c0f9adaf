package factor

import (
	"fmt"
	"sort"
	"strings"
)

// Var is a named finite-domain dimension of a factor.
type Var struct {
	Name string
	Size int
}

func (v Var) String() string {
	return fmt.Sprintf("%s:%d", v.Name, v.Size)
}

// VarSet is an ordered, duplicate-free collection of variables, sorted by
// name. The sorted order is canonical: two VarSets over the same variables
// compare equal element-wise and produce the same Key.
type VarSet []Var

// NewVarSet builds a VarSet from the given variables.
// Duplicate names must agree on size.
func NewVarSet(vars ...Var) VarSet {
	s := make(VarSet, 0, len(vars))
	for _, v := range vars {
		s = s.Add(v)
	}
	return s
}

// Add returns a VarSet with v included, keeping sorted order.
// Panics if a variable with the same name but a different size is present.
func (s VarSet) Add(v Var) VarSet {
	if v.Size <= 0 {
		panic(fmt.Sprintf("variable %q has invalid domain size %d", v.Name, v.Size))
	}
	i := sort.Search(len(s), func(i int) bool { return s[i].Name >= v.Name })
	if i < len(s) && s[i].Name == v.Name {
		if s[i].Size != v.Size {
			panic(fmt.Sprintf("variable %q declared with conflicting sizes %d and %d", v.Name, s[i].Size, v.Size))
		}
		return s
	}
	out := make(VarSet, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	out = append(out, s[i:]...)
	return out
}

// Contains reports whether a variable with the given name is in the set.
func (s VarSet) Contains(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Lookup returns the variable with the given name.
func (s VarSet) Lookup(name string) (Var, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Name >= name })
	if i < len(s) && s[i].Name == name {
		return s[i], true
	}
	return Var{}, false
}

// SizeOf returns the domain size of the named variable.
// Panics if the variable is not in the set.
func (s VarSet) SizeOf(name string) int {
	v, ok := s.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("variable %q not in set %v", name, s))
	}
	return v.Size
}

// Union returns the set union. Conflicting sizes panic.
func (s VarSet) Union(other VarSet) VarSet {
	out := s
	for _, v := range other {
		out = out.Add(v)
	}
	return out
}

// Intersect returns the variables present in both sets.
func (s VarSet) Intersect(other VarSet) VarSet {
	out := make(VarSet, 0)
	for _, v := range s {
		if other.Contains(v.Name) {
			out = append(out, v)
		}
	}
	return out
}

// Minus returns the variables of s not present in other.
func (s VarSet) Minus(other VarSet) VarSet {
	out := make(VarSet, 0)
	for _, v := range s {
		if !other.Contains(v.Name) {
			out = append(out, v)
		}
	}
	return out
}

// MinusNames returns the variables of s whose names are not listed.
func (s VarSet) MinusNames(names map[string]bool) VarSet {
	out := make(VarSet, 0)
	for _, v := range s {
		if !names[v.Name] {
			out = append(out, v)
		}
	}
	return out
}

// Intersects reports whether the two sets share any variable.
func (s VarSet) Intersects(other VarSet) bool {
	for _, v := range s {
		if other.Contains(v.Name) {
			return true
		}
	}
	return false
}

// Equal reports element-wise equality (names and sizes).
func (s VarSet) Equal(other VarSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Names returns the variable names in canonical order.
func (s VarSet) Names() []string {
	names := make([]string, len(s))
	for i, v := range s {
		names[i] = v.Name
	}
	return names
}

// Key returns a structural identity for the set: the sorted variable
// identities joined into one string. Two sets over the same variables
// always produce the same key, independent of construction order.
func (s VarSet) Key() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

// NumCells returns the product of all domain sizes (1 for the empty set).
func (s VarSet) NumCells() int {
	n := 1
	for _, v := range s {
		n *= v.Size
	}
	return n
}

func (s VarSet) String() string {
	return "{" + s.Key() + "}"
}
