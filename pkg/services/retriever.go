package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/veracitybio/veracity/pkg/models"
)

// CorpusRetriever serves documents from a local corpus directory. Each
// *.json file in the directory is one models.DocumentRef; document text
// lives under Meta["text"]. Remote literature integrations satisfy the same
// stages.Retriever interface out of process.
type CorpusRetriever struct {
	root   string
	logger *slog.Logger
}

func NewCorpusRetriever(root string, logger *slog.Logger) *CorpusRetriever {
	if logger == nil {
		logger = slog.Default()
	}

	return &CorpusRetriever{
		root:   root,
		logger: logger.With("module", "corpus_retriever"),
	}
}

// Fetch returns the corpus documents matching the query. A document matches
// when any query token appears in its title or text; if nothing matches the
// whole corpus is returned so downstream analysis can still judge it.
func (r *CorpusRetriever) Fetch(ctx context.Context, query string) ([]models.DocumentRef, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory %s: %w", r.root, err)
	}

	docs := make([]models.DocumentRef, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(r.root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus document %s: %w", entry.Name(), err)
		}

		var doc models.DocumentRef
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("corpus document %s is not valid JSON: %w", entry.Name(), err)
		}

		if doc.ID == "" {
			doc.ID = strings.TrimSuffix(entry.Name(), ".json")
		}

		if doc.Source == "" {
			doc.Source = "local"
		}

		docs = append(docs, doc)
	}

	matched := filterByQuery(docs, query)
	if len(matched) == 0 {
		matched = docs
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	r.logger.DebugContext(ctx, "corpus fetch",
		"query", query, "corpus_size", len(docs), "matched", len(matched))

	return matched, nil
}

func filterByQuery(docs []models.DocumentRef, query string) []models.DocumentRef {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return docs
	}

	var matched []models.DocumentRef

	for _, doc := range docs {
		haystack := strings.ToLower(doc.Title + " " + DocumentText(doc))

		for _, token := range tokens {
			if strings.Contains(haystack, token) {
				matched = append(matched, doc)

				break
			}
		}
	}

	return matched
}

// DocumentText returns the extracted text carried on a document reference.
func DocumentText(doc models.DocumentRef) string {
	text, _ := doc.Meta["text"].(string)

	return text
}
