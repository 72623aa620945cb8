// Package archive retrieves zip archives and expands them into a product's destination
// directory, renaming every file entry to the product's file name.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/step-archiver/internal/metrics"
)

// Retrieval stages reported by RetrievalError.
const (
	StageFetch      = "fetch"
	StageDecompress = "decompress"
	StageWrite      = "write"
)

// Getter retrieves a whole resource into memory.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// RetrievalError reports a failure fetching, opening or writing an archive.
type RetrievalError struct {
	Stage string
	URL   string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Result summarizes one materialization.
type Result struct {
	// Files are the unique paths written, in the order first written.
	Files []string
	// Entries counts file entries in the archive.
	Entries int
	// Overwritten counts entries that replaced a file written earlier in the same archive.
	Overwritten int
	Bytes       int64
	// SHA256 is the hex digest of the archive as fetched.
	SHA256 string
}

// Materializer expands archives onto the local filesystem.
type Materializer struct {
	getter Getter
	logger *zap.Logger
}

// New builds a Materializer.
func New(getter Getter, logger *zap.Logger) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{getter: getter, logger: logger}
}

// Materialize fetches archiveURL and writes each file entry to
// destination/<entry dir>/fileName. Entries whose directory collapses to the same path
// overwrite each other; the later entry wins.
func (m *Materializer) Materialize(ctx context.Context, archiveURL, destination, fileName string) (Result, error) {
	var result Result
	if err := os.MkdirAll(destination, 0o750); err != nil {
		return result, &RetrievalError{Stage: StageWrite, URL: archiveURL, Err: err}
	}

	data, err := m.getter.Get(ctx, archiveURL)
	if err != nil {
		return result, &RetrievalError{Stage: StageFetch, URL: archiveURL, Err: err}
	}
	result.Bytes = int64(len(data))
	sum := sha256.Sum256(data)
	result.SHA256 = hex.EncodeToString(sum[:])

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return result, &RetrievalError{Stage: StageDecompress, URL: archiveURL, Err: err}
	}

	written := make(map[string]string, len(reader.File))
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		dir, err := entryDir(entry.Name)
		if err != nil {
			return result, &RetrievalError{Stage: StageDecompress, URL: archiveURL, Err: err}
		}
		target := filepath.Join(destination, filepath.FromSlash(dir))
		if err := os.MkdirAll(target, 0o750); err != nil {
			return result, &RetrievalError{Stage: StageWrite, URL: archiveURL, Err: err}
		}
		if entry.FileInfo().IsDir() {
			continue
		}

		result.Entries++
		outPath := filepath.Join(target, fileName)
		if prev, ok := written[outPath]; ok {
			result.Overwritten++
			m.logger.Warn("Archive entry overwrites earlier entry",
				zap.String("url", archiveURL),
				zap.String("path", outPath),
				zap.String("entry", entry.Name),
				zap.String("previous_entry", prev),
			)
		} else {
			result.Files = append(result.Files, outPath)
		}
		written[outPath] = entry.Name

		if err := writeEntry(entry, outPath); err != nil {
			return result, &RetrievalError{Stage: StageWrite, URL: archiveURL, Err: err}
		}
	}

	metrics.ObserveArchive(archiveURL, len(data), result.Entries, result.Overwritten)
	m.logger.Debug("Archive materialized",
		zap.String("url", archiveURL),
		zap.String("destination", destination),
		zap.Int("entries", result.Entries),
		zap.Int64("bytes", result.Bytes),
	)
	return result, nil
}

// entryDir returns the cleaned directory portion of a stored entry name. Names that would
// escape the destination are rejected.
func entryDir(name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", fmt.Errorf("entry %q escapes destination", name)
		}
	}
	if !strings.HasSuffix(slashed, "/") {
		slashed = path.Dir(slashed)
	}
	dir := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	return dir, nil
}

func writeEntry(entry *zip.File, outPath string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", entry.Name, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", outPath, err)
	}
	return nil
}
