// Package pagetest provides an in-memory page.Handle for tests.
package pagetest

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/step-archiver/internal/page"
)

// Document is the canned content served for one URL.
type Document struct {
	// Texts maps a selector to the textContent of its matches.
	Texts map[string][]string
	// Attrs maps a selector to the href (or other attribute) of its matches.
	Attrs map[string][]string
	// Err, when set, is returned by Navigate for this URL.
	Err error
}

// Site is a fake catalog keyed by exact URL.
type Site struct {
	Docs    map[string]Document
	Visits  []string
	current *Document
}

// NewSite creates an empty fake site.
func NewSite() *Site {
	return &Site{Docs: make(map[string]Document)}
}

// Add registers a document for url.
func (s *Site) Add(url string, doc Document) *Site {
	s.Docs[url] = doc
	return s
}

// Navigate loads the document registered for url.
func (s *Site) Navigate(ctx context.Context, url string) error {
	s.Visits = append(s.Visits, url)
	if err := ctx.Err(); err != nil {
		return &page.NavigationError{URL: url, Err: err}
	}
	doc, ok := s.Docs[url]
	if !ok {
		s.current = nil
		return &page.NavigationError{URL: url, Err: errors.New("404 not found")}
	}
	if doc.Err != nil {
		s.current = nil
		return &page.NavigationError{URL: url, Err: doc.Err}
	}
	s.current = &doc
	return nil
}

// Texts returns canned text for selector.
func (s *Site) Texts(_ context.Context, selector string) ([]string, error) {
	if s.current == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	return append([]string(nil), s.current.Texts[selector]...), nil
}

// Attrs returns canned attribute values for selector; the attribute name is ignored.
func (s *Site) Attrs(_ context.Context, selector, _ string) ([]string, error) {
	if s.current == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	return append([]string(nil), s.current.Attrs[selector]...), nil
}

// VisitCount reports how many times url was navigated to.
func (s *Site) VisitCount(url string) int {
	n := 0
	for _, v := range s.Visits {
		if v == url {
			n++
		}
	}
	return n
}
