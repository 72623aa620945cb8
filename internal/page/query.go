package page

import (
	"context"
	"fmt"
	"strings"
)

const hrefAttr = "href"

// ReadText returns the trimmed textContent of the first element matching selector.
// It fails with ErrElementNotFound when nothing matches or the text is empty.
func ReadText(ctx context.Context, q Querier, selector string) (string, error) {
	texts, err := q.Texts(ctx, selector)
	if err != nil {
		return "", fmt.Errorf("query text %q: %w", selector, err)
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("selector %q: %w", selector, ErrElementNotFound)
	}
	text := strings.TrimSpace(texts[0])
	if text == "" {
		return "", fmt.Errorf("selector %q has empty text: %w", selector, ErrElementNotFound)
	}
	return text, nil
}

// ReadTexts returns the trimmed textContent of every element matching selector.
func ReadTexts(ctx context.Context, q Querier, selector string) ([]string, error) {
	texts, err := q.Texts(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("query texts %q: %w", selector, err)
	}
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		out = append(out, strings.TrimSpace(t))
	}
	return out, nil
}

// ReadHref returns the href of the first element matching selector. The boolean is false,
// with a nil error, when nothing matches or the href does not end in ext.
func ReadHref(ctx context.Context, q Querier, selector, ext string) (string, bool, error) {
	hrefs, err := q.Attrs(ctx, selector, hrefAttr)
	if err != nil {
		return "", false, fmt.Errorf("query href %q: %w", selector, err)
	}
	if len(hrefs) == 0 {
		return "", false, nil
	}
	href := strings.TrimSpace(hrefs[0])
	if href == "" || !strings.HasSuffix(href, ext) {
		return "", false, nil
	}
	return href, true, nil
}

// ReadHrefs returns the href of every element matching selector. Missing attributes are
// returned as empty strings so callers can filter them.
func ReadHrefs(ctx context.Context, q Querier, selector string) ([]string, error) {
	hrefs, err := q.Attrs(ctx, selector, hrefAttr)
	if err != nil {
		return nil, fmt.Errorf("query hrefs %q: %w", selector, err)
	}
	return hrefs, nil
}
