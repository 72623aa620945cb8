// Package static implements page.Handle over plain HTTP responses parsed with goquery.
// It does not execute JavaScript.
package static

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/step-archiver/internal/page"
)

// Getter fetches a URL into memory.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Handle keeps the most recently fetched document.
type Handle struct {
	getter Getter
	logger *zap.Logger
	doc    *goquery.Document
	url    string
}

// New builds a static handle backed by getter.
func New(getter Getter, logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{getter: getter, logger: logger}
}

// Navigate fetches url and parses it as HTML.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	h.doc = nil
	h.url = ""
	body, err := h.getter.Get(ctx, url)
	if err != nil {
		return &page.NavigationError{URL: url, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return &page.NavigationError{URL: url, Err: fmt.Errorf("parse html: %w", err)}
	}
	h.doc = doc
	h.url = url
	h.logger.Debug("static page loaded", zap.String("url", url), zap.Int("bytes", len(body)))
	return nil
}

// Texts returns the text of every element matching selector.
func (h *Handle) Texts(_ context.Context, selector string) ([]string, error) {
	if h.doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	sel := h.doc.Find(selector)
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	return out, nil
}

// Attrs returns attr for every element matching selector; missing attributes yield "".
func (h *Handle) Attrs(_ context.Context, selector, attr string) ([]string, error) {
	if h.doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	sel := h.doc.Find(selector)
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr(attr)
		out = append(out, v)
	})
	return out, nil
}

// URL reports the currently loaded address.
func (h *Handle) URL() string {
	return h.url
}

var _ page.Handle = (*Handle)(nil)
