package models

import "fmt"

// Chunk is one indexed passage of a document
type Chunk struct {
	ID         string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Index      int       `json:"chunk_index"`
	Content    string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

// SearchResult is a chunk returned by a nearest-neighbour search.
// Distance is the cosine distance, lower is closer.
type SearchResult struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float32 `json:"distance"`
}

type PromptResponse struct {
	Query   string   `json:"-"`
	Content string   `json:"response"`
	Sources []string `json:"sources"`
}

// ChunkID builds the deterministic id of the index-th chunk of a document
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}
