// Package metrics exposes Prometheus collectors for the archive pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page kinds observed during discovery.
const (
	PageListing = "listing"
	PageLeaf    = "leaf"
	PageFailed  = "failed"
)

// Product outcomes observed during the download pass.
const (
	ProductDownloaded     = "downloaded"
	ProductNoArchive      = "no_archive"
	ProductExtractFailed  = "extract_failed"
	ProductDownloadFailed = "download_failed"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_pages_total",
			Help: "Catalog pages visited during discovery, labeled by kind.",
		},
		[]string{"kind"},
	)

	productsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_products_total",
			Help: "Product pages processed, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	archiveBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_bytes_total",
			Help: "Compressed archive bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	archiveEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_entries_written_total",
		Help: "Archive entries written to disk.",
	})

	archiveOverwritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_entry_overwrites_total",
		Help: "Archive entries that replaced an earlier entry from the same archive.",
	})

	linksDiscovered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_links_discovered",
			Help: "Leaf product links found by the latest discovery of each root.",
		},
		[]string{"root"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one discovery visit.
func ObservePage(kind string) {
	pagesTotal.WithLabelValues(kind).Inc()
}

// ObserveProduct counts one product outcome.
func ObserveProduct(productURL, outcome string) {
	productsTotal.WithLabelValues(SanitizeSite(productURL), outcome).Inc()
}

// ObserveArchive records a fetched archive and the entries written from it.
func ObserveArchive(archiveURL string, bytesFetched, entries, overwritten int) {
	if bytesFetched > 0 {
		archiveBytesTotal.WithLabelValues(SanitizeSite(archiveURL)).Add(float64(bytesFetched))
	}
	archiveEntriesTotal.Add(float64(entries))
	archiveOverwritesTotal.Add(float64(overwritten))
}

// SetLinksDiscovered records the size of a root's latest link set.
func SetLinksDiscovered(root string, n int) {
	linksDiscovered.WithLabelValues(root).Set(float64(n))
}
