package catalog

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/step-archiver/internal/page"
)

// Default selectors and extensions for product pages.
const (
	DefaultBreadcrumbSelector  = ".breadcrumbs a"
	DefaultTitleSelector       = ".productView-title"
	DefaultArchiveLinkSelector = ".product-downloadsList-listItem-link.ext-zip"
	DefaultFileExtension       = ".step"
	DefaultArchiveExtension    = ".zip"
)

// ExtractConfig tunes product extraction.
type ExtractConfig struct {
	BreadcrumbSelector  string
	TitleSelector       string
	ArchiveLinkSelector string
	SaveRoot            string
	FileExtension       string
	ArchiveExtension    string
}

func (c ExtractConfig) withDefaults() ExtractConfig {
	if c.BreadcrumbSelector == "" {
		c.BreadcrumbSelector = DefaultBreadcrumbSelector
	}
	if c.TitleSelector == "" {
		c.TitleSelector = DefaultTitleSelector
	}
	if c.ArchiveLinkSelector == "" {
		c.ArchiveLinkSelector = DefaultArchiveLinkSelector
	}
	if c.FileExtension == "" {
		c.FileExtension = DefaultFileExtension
	}
	if c.ArchiveExtension == "" {
		c.ArchiveExtension = DefaultArchiveExtension
	}
	return c
}

// Descriptor is everything needed to materialize one product's archive.
type Descriptor struct {
	ProductURL string
	// Segments are the sanitized breadcrumb labels below SaveRoot.
	Segments    []string
	Destination string
	FileName    string
	ArchiveURL  string
}

// Extractor reads product pages.
type Extractor struct {
	page   page.Handle
	cfg    ExtractConfig
	logger *zap.Logger
}

// NewExtractor builds an Extractor that drives h.
func NewExtractor(h page.Handle, cfg ExtractConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{page: h, cfg: cfg.withDefaults(), logger: logger}
}

// Extract navigates to productURL and derives its Descriptor. ok is false, with a nil
// error, when the page has no downloadable archive.
func (e *Extractor) Extract(ctx context.Context, productURL string) (Descriptor, bool, error) {
	if err := e.page.Navigate(ctx, productURL); err != nil {
		return Descriptor{}, false, err
	}

	labels, err := page.ReadTexts(ctx, e.page, e.cfg.BreadcrumbSelector)
	if err != nil {
		return Descriptor{}, false, err
	}
	segments := SanitizeSegments(labels)
	if len(segments) == 0 {
		return Descriptor{}, false, fmt.Errorf("breadcrumbs %q: %w", e.cfg.BreadcrumbSelector, page.ErrElementNotFound)
	}

	title, err := page.ReadText(ctx, e.page, e.cfg.TitleSelector)
	if err != nil {
		return Descriptor{}, false, err
	}
	fileName := SanitizeFileName(title) + e.cfg.FileExtension

	href, ok, err := page.ReadHref(ctx, e.page, e.cfg.ArchiveLinkSelector, e.cfg.ArchiveExtension)
	if err != nil {
		return Descriptor{}, false, err
	}
	if !ok {
		e.logger.Info("Skipping: no archive found", zap.String("url", productURL))
		return Descriptor{}, false, nil
	}

	archiveURL, err := ResolveArchiveURL(productURL, href)
	if err != nil {
		return Descriptor{}, false, err
	}

	return Descriptor{
		ProductURL:  productURL,
		Segments:    segments,
		Destination: filepath.Join(append([]string{e.cfg.SaveRoot}, segments...)...),
		FileName:    fileName,
		ArchiveURL:  archiveURL,
	}, true, nil
}

// ResolveArchiveURL joins href onto the scheme and host of productURL.
func ResolveArchiveURL(productURL, href string) (string, error) {
	base, err := url.Parse(productURL)
	if err != nil {
		return "", fmt.Errorf("parse product url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse archive href %q: %w", href, err)
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	return origin.ResolveReference(ref).String(), nil
}
