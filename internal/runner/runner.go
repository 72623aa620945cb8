// Package runner orchestrates discovery and download passes over catalog roots.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/step-archiver/internal/archive"
	"github.com/JakeFAU/step-archiver/internal/catalog"
	"github.com/JakeFAU/step-archiver/internal/metrics"
	"github.com/JakeFAU/step-archiver/internal/storage/postgres"
)

// Discoverer expands a catalog root into its leaf product links.
type Discoverer interface {
	Discover(ctx context.Context, root string) (catalog.LinkSet, error)
}

// Extractor derives the download descriptor of a product page.
type Extractor interface {
	Extract(ctx context.Context, productURL string) (catalog.Descriptor, bool, error)
}

// Materializer fetches an archive and expands it into place.
type Materializer interface {
	Materialize(ctx context.Context, archiveURL, destination, fileName string) (archive.Result, error)
}

// LinkStore persists link sets per root.
type LinkStore interface {
	Save(ctx context.Context, root string, links catalog.LinkSet) (string, error)
	Load(ctx context.Context, root string) (catalog.LinkSet, error)
}

// Recorder receives one manifest row per processed product.
type Recorder interface {
	Record(ctx context.Context, record postgres.ManifestRecord) error
}

// NoopRecorder discards manifest rows.
type NoopRecorder struct{}

// Record does nothing.
func (NoopRecorder) Record(context.Context, postgres.ManifestRecord) error { return nil }

// Options wires a Runner.
type Options struct {
	Discoverer   Discoverer
	Extractor    Extractor
	Materializer Materializer
	Links        LinkStore
	Recorder     Recorder
	Logger       *zap.Logger
	// RunID is stamped on every manifest row.
	RunID string
	Now   func() time.Time
}

// Runner executes discovery and download passes sequentially.
type Runner struct {
	discoverer   Discoverer
	extractor    Extractor
	materializer Materializer
	links        LinkStore
	recorder     Recorder
	logger       *zap.Logger
	runID        string
	now          func() time.Time
}

// New validates opts and builds a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Discoverer == nil || opts.Extractor == nil || opts.Materializer == nil || opts.Links == nil {
		return nil, errors.New("runner requires a discoverer, extractor, materializer and link store")
	}
	if opts.Recorder == nil {
		opts.Recorder = NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		discoverer:   opts.Discoverer,
		extractor:    opts.Extractor,
		materializer: opts.Materializer,
		links:        opts.Links,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		runID:        opts.RunID,
		now:          opts.Now,
	}, nil
}

// DiscoverySummary reports one discovery pass.
type DiscoverySummary struct {
	Root     string
	Links    int
	LinkFile string
	Err      error
}

// DownloadSummary reports one download pass.
type DownloadSummary struct {
	Root        string
	Links       int
	Downloaded  int
	Skipped     int
	Failed      int
	Files       int
	Overwritten int
	Err         error
}

// DiscoverRoot walks root and overwrites its link file with the result.
func (r *Runner) DiscoverRoot(ctx context.Context, root string) DiscoverySummary {
	summary := DiscoverySummary{Root: root}
	started := r.now()

	links, err := r.discoverer.Discover(ctx, root)
	if err != nil && ctx.Err() != nil {
		summary.Err = err
		return summary
	}
	if err != nil {
		r.logger.Error("Discovery failed", zap.String("root", root), zap.Error(err))
		summary.Err = err
		return summary
	}

	name, err := r.links.Save(ctx, root, links)
	if err != nil {
		r.logger.Error("Failed to persist links", zap.String("root", root), zap.Error(err))
		summary.Err = err
		return summary
	}
	summary.Links = links.Len()
	summary.LinkFile = name
	metrics.SetLinksDiscovered(root, links.Len())

	r.logger.Info("Links have been written",
		zap.String("root", root),
		zap.String("file", name),
		zap.Int("links", links.Len()),
		zap.Duration("duration", r.now().Sub(started)),
	)
	return summary
}

// DiscoverAll runs DiscoverRoot for every root. Only cancellation stops the loop.
func (r *Runner) DiscoverAll(ctx context.Context, roots []string) ([]DiscoverySummary, error) {
	out := make([]DiscoverySummary, 0, len(roots))
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("discovery interrupted: %w", err)
		}
		out = append(out, r.DiscoverRoot(ctx, root))
	}
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("discovery interrupted: %w", err)
	}
	return out, nil
}

// DownloadRoot loads the link file for root and materializes every product in it.
// A failure on one product is logged and does not stop the pass.
func (r *Runner) DownloadRoot(ctx context.Context, root string) DownloadSummary {
	summary := DownloadSummary{Root: root}

	links, err := r.links.Load(ctx, root)
	if err != nil {
		r.logger.Error("Failed to load links", zap.String("root", root), zap.Error(err))
		summary.Err = err
		return summary
	}
	summary.Links = links.Len()

	for _, link := range links.Sorted() {
		if err := ctx.Err(); err != nil {
			summary.Err = err
			break
		}
		r.downloadProduct(ctx, root, link, &summary)
	}

	r.logger.Info("Download pass finished",
		zap.String("root", root),
		zap.Int("links", summary.Links),
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("files", summary.Files),
		zap.Int("overwritten", summary.Overwritten),
	)
	return summary
}

func (r *Runner) downloadProduct(ctx context.Context, root, link string, summary *DownloadSummary) {
	rec := postgres.ManifestRecord{RunID: r.runID, Root: root, ProductURL: link}

	desc, ok, err := r.extractor.Extract(ctx, link)
	switch {
	case err != nil:
		summary.Failed++
		rec.Outcome = metrics.ProductExtractFailed
		rec.Error = err.Error()
		r.logger.Error("Error scraping product page (skipping)", zap.String("url", link), zap.Error(err))
	case !ok:
		summary.Skipped++
		rec.Outcome = metrics.ProductNoArchive
	default:
		rec.ArchiveURL = desc.ArchiveURL
		rec.Destination = desc.Destination
		rec.FileName = desc.FileName

		res, mErr := r.materializer.Materialize(ctx, desc.ArchiveURL, desc.Destination, desc.FileName)
		rec.Files = res.Files
		rec.Entries = res.Entries
		rec.Overwritten = res.Overwritten
		rec.Bytes = res.Bytes
		rec.SHA256 = res.SHA256
		if mErr != nil {
			summary.Failed++
			rec.Outcome = metrics.ProductDownloadFailed
			rec.Error = mErr.Error()
			r.logger.Error("Error downloading archive (skipping)",
				zap.String("url", link),
				zap.String("archive_url", desc.ArchiveURL),
				zap.Error(mErr),
			)
			break
		}
		summary.Downloaded++
		summary.Files += len(res.Files)
		summary.Overwritten += res.Overwritten
		rec.Outcome = metrics.ProductDownloaded
		r.logger.Info("Archive extracted",
			zap.String("url", link),
			zap.String("destination", desc.Destination),
			zap.String("file", desc.FileName),
			zap.Int("files", len(res.Files)),
		)
	}

	metrics.ObserveProduct(link, rec.Outcome)
	rec.RecordedAt = r.now().UTC()
	if err := r.recorder.Record(ctx, rec); err != nil {
		r.logger.Warn("Failed to record manifest row", zap.String("url", link), zap.Error(err))
	}
}

// DownloadAll runs DownloadRoot for every root in order.
func (r *Runner) DownloadAll(ctx context.Context, roots []string) ([]DownloadSummary, error) {
	out := make([]DownloadSummary, 0, len(roots))
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("download interrupted: %w", err)
		}
		out = append(out, r.DownloadRoot(ctx, root))
	}
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("download interrupted: %w", err)
	}
	return out, nil
}

// Run discovers every root and then downloads every root.
func (r *Runner) Run(ctx context.Context, roots []string) ([]DownloadSummary, error) {
	if _, err := r.DiscoverAll(ctx, roots); err != nil {
		return nil, err
	}
	return r.DownloadAll(ctx, roots)
}
