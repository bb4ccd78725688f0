package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-assistant/internal/chromemdb"
	"study-assistant/internal/config"
	"study-assistant/internal/db"
	"study-assistant/internal/embedding"
	"study-assistant/internal/models"
	"study-assistant/internal/parser"
	"study-assistant/internal/testutil"
)

type stubGenerator struct {
	err         error
	lastContext string
	sessions    []string
}

func (g *stubGenerator) Generate(_ context.Context, contextText, question, sessionID string) (string, error) {
	g.lastContext = contextText
	g.sessions = append(g.sessions, sessionID)
	if g.err != nil {
		return "", g.err
	}
	if contextText == models.NoDocumentsNotice {
		return "I could not find anything relevant in your study material.", nil
	}
	return "Answer to: " + question, nil
}

// faultyIndex fails selected operations of the wrapped index
type faultyIndex struct {
	VectorIndex
	addErr    error
	deleteErr error
	lookupErr error
	// delete the first id before failing
	partialDelete bool
	addCalls      int
}

func (f *faultyIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	f.addCalls++
	if f.addErr != nil && f.addCalls == 1 {
		// the first chunk lands before the failure
		_ = f.VectorIndex.Add(ctx, chunks[:1])
		return f.addErr
	}
	return f.VectorIndex.Add(ctx, chunks)
}

func (f *faultyIndex) Delete(ctx context.Context, ids []string) error {
	if f.deleteErr != nil {
		if f.partialDelete && len(ids) > 0 {
			_ = f.VectorIndex.Delete(ctx, ids[:1])
		}
		return f.deleteErr
	}
	return f.VectorIndex.Delete(ctx, ids)
}

func (f *faultyIndex) Lookup(ctx context.Context, documentID string) ([]models.Chunk, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.VectorIndex.Lookup(ctx, documentID)
}

type faultyCatalog struct {
	Catalog
	createErr error
	deleteErr error
}

func (f *faultyCatalog) Create(ctx context.Context, doc models.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Catalog.Create(ctx, doc)
}

func (f *faultyCatalog) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Catalog.Delete(ctx, id)
}

type harness struct {
	svc       *Service
	index     *faultyIndex
	catalog   *faultyCatalog
	faqs      *db.FAQStore
	generator *stubGenerator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	bunDB, err := db.ConnectDB(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.InitDB(context.Background(), bunDB))

	vectors, err := chromemdb.NewVectorDBManager(&config.VectorConfig{
		Path: t.TempDir(), Collection: "test", InMemory: true,
	}, 128)
	require.NoError(t, err)

	h := &harness{
		index:     &faultyIndex{VectorIndex: vectors},
		catalog:   &faultyCatalog{Catalog: db.NewDocumentStore(bunDB)},
		faqs:      db.NewFAQStore(bunDB),
		generator: &stubGenerator{},
	}
	h.svc = NewService(Components{
		Extractor: parser.NewExtractor([]string{"pdf"}),
		Splitter:  parser.NewSplitter(config.DefaultChunkSize, config.DefaultChunkOverlap),
		Embedder:  embedding.New(embedding.NewHashEmbedder(128), 128, time.Second),
		Index:     h.index,
		Catalog:   h.catalog,
		Messages:  db.NewMessageStore(bunDB),
		FAQs:      h.faqs,
		Generator: h.generator,
	}, config.DefaultTopK)
	return h
}

// three pages of distinct content, well over one chunk in total
func studyGuidePDF() []byte {
	page := func(topic string) string {
		return strings.TrimSpace(strings.Repeat(fmt.Sprintf("%s is covered in this chapter of the study guide. ", topic), 8))
	}
	return testutil.BuildPDF(page("Photosynthesis"), page("Cellular respiration"), page("Protein synthesis"))
}

func TestIngestScenarioA(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	before := h.index.Count()

	doc, err := h.svc.Ingest(ctx, "biology.pdf", studyGuidePDF())
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "biology.pdf", doc.Filename)
	assert.Equal(t, models.FileTypePDF, doc.FileType)
	assert.Greater(t, doc.ChunkCount, 1)
	assert.Equal(t, before+doc.ChunkCount, h.index.Count())

	chunks, err := h.index.Lookup(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, doc.ChunkCount)
	for i, ch := range chunks {
		assert.Equal(t, models.ChunkID(doc.ID, i), ch.ID)
		assert.Equal(t, "biology.pdf", ch.Filename)
	}

	other, err := h.svc.Ingest(ctx, "biology.pdf", studyGuidePDF())
	require.NoError(t, err)
	assert.NotEqual(t, doc.ID, other.ID)
}

func TestIngestThenDeleteRestoresState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx, "keep.pdf", testutil.BuildPDF("Newton's laws describe motion."))
	require.NoError(t, err)

	countBefore := h.index.Count()
	docsBefore, err := h.svc.ListDocuments(ctx)
	require.NoError(t, err)

	doc, err := h.svc.Ingest(ctx, "temp.pdf", studyGuidePDF())
	require.NoError(t, err)
	require.NoError(t, h.svc.DeleteDocument(ctx, doc.ID))

	assert.Equal(t, countBefore, h.index.Count())
	docsAfter, err := h.svc.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, docsBefore, docsAfter)
}

func TestIngestRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx, "notes.docx", []byte("whatever"))
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)

	_, err = h.svc.Ingest(ctx, "broken.pdf", []byte("not a pdf"))
	assert.ErrorIs(t, err, models.ErrExtraction)

	_, err = h.svc.Ingest(ctx, "blank.pdf", testutil.BuildPDF("  "))
	assert.ErrorIs(t, err, models.ErrEmptyContent)

	_, err = h.svc.Ingest(ctx, "", testutil.BuildPDF("text"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	var pe *models.PipelineError
	_, err = h.svc.Ingest(ctx, "broken.pdf", []byte("not a pdf"))
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.StageExtract, pe.Stage)

	assert.Zero(t, h.index.Count())
	stats, err := h.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
}

func TestIngestCatalogFailureRemovesChunks(t *testing.T) {
	h := newHarness(t)
	h.catalog.createErr = errors.New("database is locked")

	_, err := h.svc.Ingest(context.Background(), "biology.pdf", studyGuidePDF())
	assert.ErrorIs(t, err, models.ErrStore)

	var pe *models.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.StageCatalog, pe.Stage)
	assert.Zero(t, h.index.Count())
}

func TestIngestPartialIndexFailureRemovesChunks(t *testing.T) {
	h := newHarness(t)
	h.index.addErr = errors.New("disk full")

	_, err := h.svc.Ingest(context.Background(), "biology.pdf", studyGuidePDF())
	assert.ErrorIs(t, err, models.ErrStore)
	assert.Zero(t, h.index.Count())

	docs, err := h.svc.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDeleteUnknownDocument(t *testing.T) {
	h := newHarness(t)
	err := h.svc.DeleteDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteLookupFailureKeepsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc, err := h.svc.Ingest(ctx, "biology.pdf", studyGuidePDF())
	require.NoError(t, err)
	count := h.index.Count()

	h.index.lookupErr = errors.New("index unavailable")
	err = h.svc.DeleteDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, models.ErrStore)

	assert.Equal(t, count, h.index.Count())
	_, err = h.catalog.Get(ctx, doc.ID)
	assert.NoError(t, err)
}

func TestDeleteIndexFailureKeepsCatalogAndRestoresChunks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc, err := h.svc.Ingest(ctx, "biology.pdf", studyGuidePDF())
	require.NoError(t, err)
	count := h.index.Count()

	h.index.deleteErr = errors.New("i/o error")
	h.index.partialDelete = true
	err = h.svc.DeleteDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, models.ErrStore)

	assert.Equal(t, count, h.index.Count())
	_, err = h.catalog.Get(ctx, doc.ID)
	assert.NoError(t, err)
}

func TestDeleteCatalogFailureRestoresChunks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc, err := h.svc.Ingest(ctx, "biology.pdf", studyGuidePDF())
	require.NoError(t, err)
	count := h.index.Count()

	h.catalog.deleteErr = errors.New("connection reset")
	err = h.svc.DeleteDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, models.ErrStore)

	var pe *models.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.StageCatalog, pe.Stage)

	assert.Equal(t, count, h.index.Count())
	chunks, err := h.index.Lookup(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)

	// retry once the catalog is back
	h.catalog.deleteErr = nil
	require.NoError(t, h.svc.DeleteDocument(ctx, doc.ID))
	assert.Zero(t, h.index.Count())
}

func TestDeleteRemovesOrphanedChunks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.index.Add(ctx, []models.Chunk{{
		ID: models.ChunkID("orphan", 0), DocumentID: "orphan", Filename: "lost.pdf",
		Content: "left over", Embedding: unitVector(128),
	}}))

	require.NoError(t, h.svc.DeleteDocument(ctx, "orphan"))
	assert.Zero(t, h.index.Count())
}

func TestQueryScenarioB(t *testing.T) {
	h := newHarness(t)
	resp, err := h.svc.Query(context.Background(), "What is mitosis?", "session-b")
	require.NoError(t, err)

	assert.Equal(t, []string{}, resp.Sources)
	assert.Equal(t, models.NoDocumentsNotice, h.generator.lastContext)
	assert.Contains(t, resp.Content, "could not find")
}

func TestQueryScenarioC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.SeedFAQs(ctx)
	require.NoError(t, err)

	resp, err := h.svc.Query(ctx, "What is RAG?", "session-c")
	require.NoError(t, err)

	assert.Equal(t, []string{models.FAQSource}, resp.Sources)
	assert.Contains(t, h.generator.lastContext, "Q: What is RAG?")
	assert.Equal(t, []string{"session-c"}, h.generator.sessions)
}

func TestQueryScenarioDAndE(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.SeedFAQs(ctx)
	require.NoError(t, err)

	doc, err := h.svc.Ingest(ctx, "biology.pdf", studyGuidePDF())
	require.NoError(t, err)

	resp, err := h.svc.Query(ctx, "What is photosynthesis?", "session-d")
	require.NoError(t, err)
	assert.Contains(t, resp.Sources, "biology.pdf")
	assert.NotContains(t, resp.Sources, models.FAQSource)
	assert.Contains(t, h.generator.lastContext, "Photosynthesis")
	assert.Contains(t, h.generator.lastContext, "Additional FAQs:")

	require.NoError(t, h.svc.DeleteDocument(ctx, doc.ID))

	resp, err = h.svc.Query(ctx, "What is photosynthesis?", "session-d")
	require.NoError(t, err)
	assert.NotContains(t, resp.Sources, "biology.pdf")
}

func TestQueryScenarioF(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Query(ctx, "first question", "session-f")
	require.NoError(t, err)
	_, err = h.svc.Query(ctx, "second question", "session-f")
	require.NoError(t, err)

	history, err := h.svc.History(ctx, "session-f")
	require.NoError(t, err)
	require.Len(t, history, 4)

	roles := []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant}
	for i, msg := range history {
		assert.Equal(t, roles[i], msg.Role)
		if i > 0 {
			assert.True(t, msg.Timestamp.After(history[i-1].Timestamp), "message %d not after %d", i, i-1)
		}
	}
	assert.Equal(t, "first question", history[0].Content)
	assert.Equal(t, "second question", history[2].Content)
	assert.NotNil(t, history[1].Sources)
}

func TestQueryGenerationFailureRecordsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.generator.err = fmt.Errorf("%w: upstream 500", models.ErrGeneration)

	_, err := h.svc.Query(ctx, "anything", "session-g")
	assert.ErrorIs(t, err, models.ErrGeneration)

	var pe *models.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.StageGenerate, pe.Stage)

	history, err := h.svc.History(ctx, "session-g")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestQueryRejectsBlankInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Query(context.Background(), "   ", "s")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = h.svc.Query(context.Background(), "question", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestQueryWithoutWordsIsInvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Query(ctx, "?!", "session-p")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.NotErrorIs(t, err, models.ErrEmbedding)
	assert.Equal(t, "embed: invalid input: text has no tokens to embed", err.Error())

	history, err := h.svc.History(ctx, "session-p")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestIngestWithoutWordsIsEmptyContent(t *testing.T) {
	h := newHarness(t)
	before := h.index.Count()

	_, err := h.svc.Ingest(context.Background(), "dots.pdf", testutil.BuildPDF("... !!! ---"))
	assert.ErrorIs(t, err, models.ErrEmptyContent)
	assert.NotErrorIs(t, err, models.ErrEmbedding)
	assert.Equal(t, before, h.index.Count())

	docs, err := h.svc.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSeedFAQsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	n, err := h.svc.SeedFAQs(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(models.SeedFAQs), n)
	once, err := h.svc.ListFAQs(ctx)
	require.NoError(t, err)

	n, err = h.svc.SeedFAQs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	twice, err := h.svc.ListFAQs(ctx)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.SeedFAQs(ctx)
	require.NoError(t, err)
	doc, err := h.svc.Ingest(ctx, "biology.pdf", studyGuidePDF())
	require.NoError(t, err)

	stats, err := h.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Documents: 1, Chunks: doc.ChunkCount, FAQs: len(models.SeedFAQs)}, stats)
}

func unitVector(dim int) []float32 {
	v := make([]float32, dim)
	v[0] = 1
	return v
}
