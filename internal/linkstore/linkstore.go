// Package linkstore persists the link set discovered below each catalog root.
package linkstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/step-archiver/internal/catalog"
	"github.com/JakeFAU/step-archiver/internal/storage"
)

const fileSuffix = "Links.json"

// FileName derives the link file name from the last non-empty path segment of root,
// e.g. https://example.com/structure/ -> structureLinks.json.
func FileName(root string) (string, error) {
	parts := strings.Split(root, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(parts[i]); seg != "" {
			return seg + fileSuffix, nil
		}
	}
	return "", fmt.Errorf("root %q has no path segment to name its link file", root)
}

// Store reads and writes link files through a storage.Provider.
type Store struct {
	provider storage.Provider
	prefix   string
}

// New builds a Store. Link files are named prefix/<FileName(root)>.
func New(provider storage.Provider, prefix string) *Store {
	return &Store{provider: provider, prefix: strings.Trim(prefix, "/")}
}

// Name returns the object name used for root.
func (s *Store) Name(root string) (string, error) {
	name, err := FileName(root)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return name, nil
	}
	return path.Join(s.prefix, name), nil
}

// Save overwrites the link file for root with links.
func (s *Store) Save(ctx context.Context, root string, links catalog.LinkSet) (string, error) {
	name, err := s.Name(root)
	if err != nil {
		return "", err
	}
	if links == nil {
		links = catalog.NewLinkSet()
	}
	data, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode links for %s: %w", root, err)
	}
	if err := s.provider.Save(ctx, name, data); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return name, nil
}

// Load reads the link file for root. A missing file yields an error wrapping
// storage.ErrNotFound.
func (s *Store) Load(ctx context.Context, root string) (catalog.LinkSet, error) {
	name, err := s.Name(root)
	if err != nil {
		return nil, err
	}
	data, err := s.provider.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	var links catalog.LinkSet
	if err := json.Unmarshal(data, &links); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return links, nil
}
