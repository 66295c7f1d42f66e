package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/stages"
)

// CorpusImageSource loads the figures of a corpus document from disk. A
// document lists its figures as file paths under Meta["figures"], relative
// to the corpus root. Documents without figures audit as clean by absence.
type CorpusImageSource struct {
	root   string
	logger *slog.Logger
}

func NewCorpusImageSource(root string, logger *slog.Logger) *CorpusImageSource {
	if logger == nil {
		logger = slog.Default()
	}

	return &CorpusImageSource{
		root:   root,
		logger: logger.With("module", "corpus_images"),
	}
}

func (s *CorpusImageSource) Images(ctx context.Context, doc models.DocumentRef) ([]stages.ImageRef, error) {
	paths := figurePaths(doc)
	if len(paths) == 0 {
		return nil, nil
	}

	images := make([]stages.ImageRef, 0, len(paths))

	for _, path := range paths {
		data, err := os.ReadFile(filepath.Join(s.root, filepath.Clean(path)))
		if err != nil {
			return nil, fmt.Errorf("failed to read figure %s of %s: %w", path, doc.ID, err)
		}

		images = append(images, stages.ImageRef{
			ID:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Data: data,
		})
	}

	s.logger.DebugContext(ctx, "figures loaded", "document", doc.ID, "count", len(images))

	return images, nil
}

func figurePaths(doc models.DocumentRef) []string {
	raw, ok := doc.Meta["figures"].([]any)
	if !ok {
		return nil
	}

	paths := make([]string, 0, len(raw))

	for _, entry := range raw {
		if path, ok := entry.(string); ok && path != "" {
			paths = append(paths, path)
		}
	}

	return paths
}
