package keyword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/models"
)

// batchSize bounds the number of chunks per bleve batch.
const batchSize = 500

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// chunkDoc is the indexed form of a chunk.
type chunkDoc struct {
	Content    string `json:"content"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so figures and names match exactly.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	numericFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("page", numericFieldMapping)
	docMapping.AddFieldMappingsAt("chunk_index", numericFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates an empty Bleve index at path. An existing index at path is an error;
// indexes are built once into a fresh directory.
func NewBleveIndex(path string) (*BleveIndex, error) {
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// OpenBleveIndex opens an existing index read-only. A missing path is a not-found error;
// an unreadable index is a corrupt-index error.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	const op = "keyword.OpenBleveIndex"
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.New(errs.KindNotFound, op, err)
		}
		return nil, errs.New(errs.KindCorruptIndex, op, err)
	}
	index, err := bleve.OpenUsing(path, map[string]interface{}{"read_only": true})
	if err != nil {
		return nil, errs.New(errs.KindCorruptIndex, op, fmt.Errorf("open Bleve index: %w", err))
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks indexes chunks by their ID in batches.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []*models.Chunk) error {
	batch := b.index.NewBatch()
	for _, ch := range chunks {
		if err := batch.Index(ch.ID, chunkDoc{Content: ch.Content, Page: ch.Page, ChunkIndex: ch.ChunkIndex}); err != nil {
			return fmt.Errorf("index chunk %s: %w", ch.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
	}
	return nil
}

// Search runs a match query over chunk content and returns up to limit results, best first.
// For multi-term queries, chunks matching fewer of the terms are penalized and, when
// opts.PhraseBoost > 1, chunks containing the whole query as a phrase are boosted.
// When opts.FuzzyEnabled is true, fuzzy matching is used for typo tolerance.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 {
		return nil, errs.Newf(errs.KindValidation, "keyword.Search", "limit must be positive, got %d", limit)
	}
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}

	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(terms, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("content")
		q = mq
	}
	req := bleve.NewSearchRequest(q)
	req.Size = reqSize
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	var coverage map[string]int
	if len(terms) > 1 {
		coverage = b.termCoverage(ctx, terms, reqSize, fuzzyEnabled, fuzziness)
	}
	var phrases map[string]bool
	if phraseBoost > 1.0 && len(terms) > 1 {
		phrases = b.phraseMatches(ctx, query, reqSize)
	}

	out := make([]*KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		score := hit.Score
		if len(terms) > 1 {
			// (matched/total)^2 so chunks matching every term rank above partial matches.
			matched := coverage[hit.ID]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(len(terms))
			score *= c * c
		}
		if phrases[hit.ID] {
			score *= phraseBoost
		}
		out = append(out, &KeywordResult{ID: hit.ID, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of fuzzy content queries, one per term.
func buildFuzzyQuery(terms []string, fuzziness int) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField("content")
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// termCoverage counts how many distinct query terms each chunk matches.
func (b *BleveIndex) termCoverage(ctx context.Context, terms []string, reqSize int, fuzzyEnabled bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	seen := make(map[string]bool)
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		var q blevequery.Query
		if fuzzyEnabled {
			q = buildFuzzyQuery([]string{term}, fuzziness)
		} else {
			mq := bleve.NewMatchQuery(term)
			mq.SetField("content")
			q = mq
		}
		req := bleve.NewSearchRequest(q)
		req.Size = reqSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// phraseMatches returns the chunks whose content contains query as a phrase.
func (b *BleveIndex) phraseMatches(ctx context.Context, query string, reqSize int) map[string]bool {
	matches := make(map[string]bool)
	pq := bleve.NewMatchPhraseQuery(query)
	pq.SetField("content")
	req := bleve.NewSearchRequest(pq)
	req.Size = reqSize
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return matches
	}
	for _, hit := range results.Hits {
		matches[hit.ID] = true
	}
	return matches
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
