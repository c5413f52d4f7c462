package domain

import "sort"

// TagSet is a set of free-form behavioral tags (hesitation points, risk
// factors). The zero value is not usable; construct with NewTagSet.
type TagSet map[string]struct{}

// NewTagSet builds a set from the given tags.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	s.Add(tags...)
	return s
}

// Add unions tags into the set. Duplicates are ignored.
func (s TagSet) Add(tags ...string) {
	for _, t := range tags {
		if t == "" {
			continue
		}
		s[t] = struct{}{}
	}
}

// Has reports whether tag is in the set.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Values returns the tags in sorted order for deterministic output.
func (s TagSet) Values() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set.
func (s TagSet) Clone() TagSet {
	out := make(TagSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}
