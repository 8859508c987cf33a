// Package retrieval wraps a vector store with the cross-collection
// query contract of spec §4.8: fan out to every bound RAGCollection,
// merge by ascending distance, dedupe, and trim to top_k. Grounded on
// original_source's rag/engine/retrieval.py (query_collections) and
// wired to chromem-go as the embedded vector backend, replacing the
// Python code's chromadb HTTP client.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	chromem "github.com/philippgille/chromem-go"
)

// Store owns one chromem-go DB and the collections opened against it.
type Store struct {
	db *chromem.DB
}

// NewInMemoryStore returns a Store backed by an in-memory chromem-go DB.
// Persistence to disk is a deployment concern left to chromem-go's
// NewPersistentDB, not exercised here.
func NewInMemoryStore() *Store {
	return &Store{db: chromem.NewDB()}
}

// Collection identifies one bound RAGCollection source for a query fan-out.
type Collection struct {
	SourceID   string
	SourceName string
	SourceKind string
	Name       string
}

// GetOrCreateCollection opens (creating if absent) the named chromem-go
// collection, mirroring get_collections's client.get_or_create_collection.
func (s *Store) GetOrCreateCollection(name string, embeddingFunc chromem.EmbeddingFunc) (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(name, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("retrieval: get or create collection %s: %w", name, err)
	}
	return col, nil
}

// Match is one retrieved document paired with its merge distance
// (lower is closer) and source metadata, the Go equivalent of the
// (document, metadata) pairs query_collections returns.
type Match struct {
	Document   string
	Distance   float32
	Metadata   map[string]string
	SourceID   string
	SourceName string
	SourceKind string
}

// QueryCollections fans a query out across every bound collection,
// merges the hits by ascending distance, and trims to topK. Mirrors
// retrieval.py's query_collections, translating chromem-go's cosine
// Similarity (higher is closer) into a distance (lower is closer) so
// the merge order matches the original chromadb-distance semantics.
func QueryCollections(ctx context.Context, query string, collections []*Collection, byName map[string]*chromem.Collection, topK int) ([]Match, error) {
	var perCollection []collectionHits
	for _, source := range collections {
		if source == nil || source.Name == "" {
			continue
		}
		col, ok := byName[source.Name]
		if !ok || col == nil {
			continue
		}
		n := topK
		if n <= 0 {
			n = 1
		}
		if docCount := col.Count(); n > docCount {
			n = docCount
		}
		if n <= 0 {
			continue
		}
		results, err := col.Query(ctx, query, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("retrieval: query collection %s: %w", source.Name, err)
		}
		hits := make([]rawHit, 0, len(results))
		for _, r := range results {
			hits = append(hits, rawHit{Content: r.Content, Metadata: r.Metadata, Similarity: r.Similarity})
		}
		perCollection = append(perCollection, collectionHits{source: *source, hits: hits})
	}

	return mergeHits(perCollection, topK), nil
}

// rawHit is the backend-agnostic shape of one vector search result,
// decoupling the merge/dedupe logic below from chromem-go's Result type.
type rawHit struct {
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// collectionHits pairs one collection's raw hits with its source
// metadata, preserving the input collection order for stable merging.
type collectionHits struct {
	source Collection
	hits   []rawHit
}

// mergeHits merges per-collection hits by ascending distance (1 -
// similarity), attaches source_id/source_name/source_kind defaults, and
// trims to topK. This is the pure core of QueryCollections, grounded on
// retrieval.py's query_collections merge/sort/trim sequence.
func mergeHits(perCollection []collectionHits, topK int) []Match {
	var merged []Match
	for _, ch := range perCollection {
		for _, h := range ch.hits {
			if h.Content == "" {
				continue
			}
			meta := h.Metadata
			if meta == nil {
				meta = map[string]string{}
			}
			setDefault(meta, "source_id", ch.source.SourceID)
			setDefault(meta, "source_name", ch.source.SourceName)
			setDefault(meta, "source_kind", ch.source.SourceKind)
			merged = append(merged, Match{
				Document:   h.Content,
				Distance:   1 - h.Similarity,
				Metadata:   meta,
				SourceID:   ch.source.SourceID,
				SourceName: ch.source.SourceName,
				SourceKind: ch.source.SourceKind,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

func setDefault(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok && value != "" {
		m[key] = value
	}
}
