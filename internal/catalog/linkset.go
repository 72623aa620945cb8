package catalog

import (
	"encoding/json"
	"sort"
)

// LinkSet is a set of product-page URLs compared by exact string equality.
type LinkSet map[string]struct{}

// NewLinkSet returns a set holding urls.
func NewLinkSet(urls ...string) LinkSet {
	s := make(LinkSet, len(urls))
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Add inserts url and reports whether it was new.
func (s LinkSet) Add(url string) bool {
	if _, ok := s[url]; ok {
		return false
	}
	s[url] = struct{}{}
	return true
}

// Has reports membership.
func (s LinkSet) Has(url string) bool {
	_, ok := s[url]
	return ok
}

// Len returns the number of links.
func (s LinkSet) Len() int {
	return len(s)
}

// Sorted returns the links in lexical order.
func (s LinkSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a JSON array of strings.
func (s LinkSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON array of strings; duplicates collapse.
func (s *LinkSet) UnmarshalJSON(data []byte) error {
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return err
	}
	*s = NewLinkSet(urls...)
	return nil
}
