package chromemdb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"study-assistant/internal/config"
	"study-assistant/internal/models"
)

// VectorDBManager stores chunk vectors in a chromem-go collection
type VectorDBManager struct {
	mu            sync.RWMutex
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	dimension     int
	dbPath        string
	compress      bool
	encryptionKey string
}

// chunks always arrive with their embedding, so the collection never embeds
// on its own
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("collection has no embedding function, vectors must be supplied")
}

// NewVectorDBManager opens the store described by cfg. dimension is the
// size of every stored vector.
func NewVectorDBManager(cfg *config.VectorConfig, dimension int) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	if dimension <= 0 {
		dimension = config.DefaultDimension
	}

	m := &VectorDBManager{
		db:            db,
		name:          cfg.Collection,
		dimension:     dimension,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
	}
	if _, err := m.getOrCreateCollection(); err != nil {
		return nil, err
	}
	log.Debug().Str("collection", m.name).Int("count", m.Count()).Msg("Vector store ready")
	return m, nil
}

// create or read collection
func (m *VectorDBManager) getOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.mu.Lock()
	m.collection = c
	m.mu.Unlock()
	return c, nil
}

func (m *VectorDBManager) coll() *chromem.Collection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection
}

// Add inserts chunks. An id already present in the batch or the collection
// is rejected before anything is written.
func (m *VectorDBManager) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	c := m.coll()

	seen := make(map[string]bool, len(chunks))
	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		if seen[ch.ID] {
			return fmt.Errorf("duplicate chunk id %s in batch", ch.ID)
		}
		seen[ch.ID] = true
		if _, err := c.GetByID(ctx, ch.ID); err == nil {
			return fmt.Errorf("chunk id %s already indexed", ch.ID)
		}
		if len(ch.Embedding) != m.dimension {
			return fmt.Errorf("chunk %s has dimension %d, want %d", ch.ID, len(ch.Embedding), m.dimension)
		}
		docs = append(docs, chromem.Document{
			ID:        ch.ID,
			Content:   ch.Content,
			Metadata:  chunkMetadata(ch),
			Embedding: ch.Embedding,
		})
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to k chunks nearest to vector, most similar first.
// An empty collection yields no results.
func (m *VectorDBManager) Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	results, err := query(ctx, m.coll(), k, chromem.QueryOptions{QueryEmbedding: vector})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, models.SearchResult{
			Chunk:    resultChunk(r),
			Distance: 1 - r.Similarity,
		})
	}
	return out, nil
}

// Lookup returns every chunk tagged with documentID, ordered by chunk index
func (m *VectorDBManager) Lookup(ctx context.Context, documentID string) ([]models.Chunk, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document id is empty")
	}
	// a filtered query with a fixed probe vector resolves all matching
	// entries, ranking is irrelevant here
	results, err := query(ctx, m.coll(), math.MaxInt, chromem.QueryOptions{
		QueryEmbedding: m.probe(),
		Where:          map[string]string{models.MetaDocumentID: documentID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up chunks of %s: %w", documentID, err)
	}

	chunks := make([]models.Chunk, len(results))
	for i, r := range results {
		chunks[i] = resultChunk(r)
	}
	sortByIndex(chunks)
	return chunks, nil
}

// query asks c for up to limit results. chromem rejects a result count
// above its current size, so when a concurrent delete shrinks the
// collection between Count and the query the count is read again.
func query(ctx context.Context, c *chromem.Collection, limit int, opts chromem.QueryOptions) ([]chromem.Result, error) {
	for {
		n := min(limit, c.Count())
		if n <= 0 {
			return nil, nil
		}
		opts.NResults = n
		results, err := c.QueryWithOptions(ctx, opts)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil || c.Count() >= n {
			return nil, err
		}
	}
}

// Delete removes exactly the given ids
func (m *VectorDBManager) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := m.coll().Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// DeleteBy removes all chunks of documentID: ids are resolved first and
// nothing is deleted when that fails
func (m *VectorDBManager) DeleteBy(ctx context.Context, documentID string) (int, error) {
	chunks, err := m.Lookup(ctx, documentID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	if err := m.Delete(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Count returns the number of indexed chunks
func (m *VectorDBManager) Count() int {
	return m.coll().Count()
}

// snapshot file name used when no path is given
func (m *VectorDBManager) snapshotPath(path string) string {
	if path != "" {
		return path
	}
	path = filepath.Join(m.dbPath, m.name+".chromem")
	if m.compress {
		path += ".gz"
	}
	if m.encryptionKey != "" {
		path += ".enc"
	}
	return path
}

// Export writes the collection to a gob snapshot, encrypted when a key is
// configured. It returns the file written.
func (m *VectorDBManager) Export(path string) (string, error) {
	path = m.snapshotPath(path)
	log.Debug().Str("collection", m.name).Str("file", path).Bool("compress", m.compress).Msg("Exporting collection")

	if err := m.db.ExportToFile(path, m.compress, m.encryptionKey, m.name); err != nil {
		return "", fmt.Errorf("failed to export database: %w", err)
	}
	return path, nil
}

// Import replaces the collection with the one stored in a snapshot
func (m *VectorDBManager) Import(path string) (string, error) {
	path = m.snapshotPath(path)
	log.Debug().Str("collection", m.name).Str("file", path).Msg("Importing collection")

	if err := m.db.ImportFromFile(path, m.encryptionKey, m.name); err != nil {
		return "", fmt.Errorf("failed to import database: %w", err)
	}
	c, err := m.getOrCreateCollection()
	if err != nil {
		return "", err
	}
	// an empty collection comes back without its document map, recreate it
	if c.Count() == 0 {
		if err := m.db.DeleteCollection(m.name); err != nil {
			return "", fmt.Errorf("failed to reset empty collection: %w", err)
		}
		if _, err := m.getOrCreateCollection(); err != nil {
			return "", err
		}
	}
	return path, nil
}

func (m *VectorDBManager) probe() []float32 {
	v := make([]float32, m.dimension)
	v[0] = 1
	return v
}

func sortByIndex(chunks []models.Chunk) {
	slices.SortFunc(chunks, func(a, b models.Chunk) int { return cmp.Compare(a.Index, b.Index) })
}

func chunkMetadata(ch models.Chunk) map[string]string {
	return map[string]string{
		models.MetaFilename:   ch.Filename,
		models.MetaDocumentID: ch.DocumentID,
		models.MetaChunkIndex: strconv.Itoa(ch.Index),
	}
}

func resultChunk(r chromem.Result) models.Chunk {
	idx, _ := strconv.Atoi(r.Metadata[models.MetaChunkIndex])
	return models.Chunk{
		ID:         r.ID,
		DocumentID: r.Metadata[models.MetaDocumentID],
		Filename:   r.Metadata[models.MetaFilename],
		Index:      idx,
		Content:    r.Content,
		Embedding:  r.Embedding,
	}
}
