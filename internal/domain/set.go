package domain

import (
	"encoding/json"
	"sort"
)

// UserSet is a set of user IDs. Membership, not multiplicity, is meaningful.
// It serializes as a sorted JSON array.
type UserSet map[string]struct{}

// NewUserSet returns a set holding the given ids. Empty ids are ignored.
func NewUserSet(ids ...string) UserSet {
	s := make(UserSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Has reports whether id is a member.
func (s UserSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id and reports whether the set changed.
func (s UserSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether the set changed.
func (s UserSet) Remove(id string) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// Len returns the number of members.
func (s UserSet) Len() int { return len(s) }

// Sorted returns the members in ascending order. Never nil.
func (s UserSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s UserSet) Clone() UserSet {
	c := make(UserSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// SubsetOf reports whether every member of s is also in other.
func (s UserSet) SubsetOf(other UserSet) bool {
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

func (s UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *UserSet) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewUserSet(ids...)
	return nil
}
