// Package page defines the rendering collaborator used by the catalog pipeline
// and the query primitives layered on top of it.
package page

import (
	"context"
	"errors"
	"fmt"
)

// ErrElementNotFound reports that an expected page element is absent.
var ErrElementNotFound = errors.New("element not found")

// Querier reads DOM content from the currently loaded document.
type Querier interface {
	// Texts returns the textContent of every element matching selector, in document order.
	Texts(ctx context.Context, selector string) ([]string, error)
	// Attrs returns the named attribute of every element matching selector, in document
	// order. Elements without the attribute yield an empty string.
	Attrs(ctx context.Context, selector, attr string) ([]string, error)
}

// Handle is a single navigable page. Implementations are not safe for concurrent use;
// callers must await each call before issuing the next.
type Handle interface {
	Querier
	// Navigate loads url and waits for DOM readiness.
	Navigate(ctx context.Context, url string) error
}

// NavigationError wraps a failure to load a page.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
