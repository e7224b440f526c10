package qa

import (
	"sort"

	"github.com/hyperjump/docqa/internal/models"
)

// fusedChunk holds a chunk with its fused keyword and semantic scores.
type fusedChunk struct {
	chunk         *models.Chunk
	score         float64
	keywordScore  float64
	semanticScore float64
}

// normalizeKeywordScores scales keyword scores to [0,1] by the maximum.
func normalizeKeywordScores(results []*models.SearchResult) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	maxScore := 0.0
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.Chunk.ID] = r.Score / maxScore
		} else {
			normalized[r.Chunk.ID] = 0
		}
	}
	return normalized
}

// fuse merges keyword and semantic hits with weights, best first. Cosine scores are used as-is;
// negative similarities count as 0. Ties keep the chunk's position in the document.
func fuse(keywordHits, semanticHits []*models.SearchResult, keywordWeight, semanticWeight float64) []*models.SearchResult {
	byID := make(map[string]*fusedChunk)
	for id, score := range normalizeKeywordScores(keywordHits) {
		byID[id] = &fusedChunk{keywordScore: score}
	}
	for _, r := range keywordHits {
		byID[r.Chunk.ID].chunk = r.Chunk
	}
	for _, r := range semanticHits {
		score := r.Score
		if score < 0 {
			score = 0
		}
		if f, ok := byID[r.Chunk.ID]; ok {
			f.semanticScore = score
		} else {
			byID[r.Chunk.ID] = &fusedChunk{chunk: r.Chunk, semanticScore: score}
		}
	}

	fused := make([]*fusedChunk, 0, len(byID))
	for _, f := range byID {
		f.score = keywordWeight*f.keywordScore + semanticWeight*f.semanticScore
		fused = append(fused, f)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].chunk.ChunkIndex < fused[j].chunk.ChunkIndex
	})

	out := make([]*models.SearchResult, len(fused))
	for i, f := range fused {
		out[i] = &models.SearchResult{Chunk: f.chunk, Score: f.score, Rank: i + 1}
	}
	return out
}
