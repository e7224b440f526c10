package models

// SearchResult is a single retrieval hit. Rank is 1-based; Score is cosine similarity
// for semantic hits and the bleve score for keyword hits.
type SearchResult struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// ChunkSearchResponse is the body of GET /api/v1/chunks/search.
type ChunkSearchResponse struct {
	Query   string          `json:"query"`
	Results []*SearchResult `json:"results"`
	Total   int             `json:"total"`
}
