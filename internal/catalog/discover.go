package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/step-archiver/internal/metrics"
	"github.com/JakeFAU/step-archiver/internal/page"
)

// DefaultProductLinkSelector matches the anchor inside every product card.
const DefaultProductLinkSelector = "li.product a"

// DiscoverConfig tunes link discovery.
type DiscoverConfig struct {
	ProductLinkSelector string
	// MaxDepth bounds how far below the root discovery descends; 0 means unlimited.
	MaxDepth int
}

// Discoverer expands catalog listing pages into leaf product URLs.
type Discoverer struct {
	page   page.Handle
	cfg    DiscoverConfig
	logger *zap.Logger
}

// NewDiscoverer builds a Discoverer that drives h.
func NewDiscoverer(h page.Handle, cfg DiscoverConfig, logger *zap.Logger) *Discoverer {
	if cfg.ProductLinkSelector == "" {
		cfg.ProductLinkSelector = DefaultProductLinkSelector
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{page: h, cfg: cfg, logger: logger}
}

type frame struct {
	url   string
	depth int
}

// Discover walks the catalog below root depth first and returns every leaf page, i.e.
// every page whose product-card links, after filtering, are empty. A failure on one page
// ends that branch only. The returned set is scoped to this call.
func (d *Discoverer) Discover(ctx context.Context, root string) (LinkSet, error) {
	rootURL, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("parse root %q: %w", root, err)
	}
	if !rootURL.IsAbs() || rootURL.Host == "" {
		return nil, fmt.Errorf("root %q must be an absolute URL", root)
	}

	links := NewLinkSet()
	// visited holds the shallowest depth each page was expanded at.
	visited := make(map[string]int)
	stack := []frame{{url: root}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return links, fmt.Errorf("discover %s: %w", root, err)
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if d.cfg.MaxDepth > 0 && top.depth > d.cfg.MaxDepth {
			d.logger.Warn("Skipping page beyond max depth",
				zap.String("url", top.url),
				zap.Int("depth", top.depth),
			)
			continue
		}
		if !d.shouldExpand(visited, top) {
			continue
		}
		visited[top.url] = top.depth

		children, err := d.childLinks(ctx, top.url, rootURL)
		if err != nil {
			metrics.ObservePage(metrics.PageFailed)
			d.logger.Error("Error getting links", zap.String("url", top.url), zap.Error(err))
			continue
		}

		if len(children) == 0 {
			metrics.ObservePage(metrics.PageLeaf)
			if links.Add(top.url) {
				d.logger.Info("Product page found", zap.String("url", top.url))
			}
			continue
		}

		metrics.ObservePage(metrics.PageListing)
		d.logger.Debug("Listing page expanded",
			zap.String("url", top.url),
			zap.Int("children", len(children)),
			zap.Int("depth", top.depth),
		)
		// Reverse push keeps the first child on top of the stack.
		for i := len(children) - 1; i >= 0; i-- {
			next := frame{url: children[i], depth: top.depth + 1}
			if d.shouldExpand(visited, next) {
				stack = append(stack, next)
			}
		}
	}
	return links, nil
}

// shouldExpand reports whether f has not been expanded yet. With a depth limit a page seen
// deeper is expanded again from a shallower path, since its subtree was cut short.
func (d *Discoverer) shouldExpand(visited map[string]int, f frame) bool {
	depth, seen := visited[f.url]
	if !seen {
		return true
	}
	return d.cfg.MaxDepth > 0 && f.depth < depth
}

func (d *Discoverer) childLinks(ctx context.Context, pageURL string, root *url.URL) ([]string, error) {
	if err := d.page.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	hrefs, err := page.ReadHrefs(ctx, d.page, d.cfg.ProductLinkSelector)
	if err != nil {
		return nil, err
	}
	return FilterCatalogLinks(hrefs, root), nil
}

// FilterCatalogLinks keeps hrefs that are absolute http(s) URLs on root's host, with any
// fragment removed. Relative links, in-page anchors and other domains are dropped.
func FilterCatalogLinks(hrefs []string, root *url.URL) []string {
	out := make([]string, 0, len(hrefs))
	for _, raw := range hrefs {
		href := strings.TrimSpace(raw)
		if href == "" {
			continue
		}
		u, err := url.Parse(href)
		if err != nil || !u.IsAbs() {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if !strings.EqualFold(u.Host, root.Host) {
			continue
		}
		if u.Fragment != "" || strings.HasSuffix(href, "#") {
			u.Fragment = ""
			u.RawFragment = ""
			href = u.String()
		}
		out = append(out, href)
	}
	return out
}
