package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/futig/zoning-qa/internal/chunker"
	"github.com/futig/zoning-qa/internal/config"
	"github.com/futig/zoning-qa/internal/embedding"
	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/integration/embedder"
	"github.com/futig/zoning-qa/internal/integration/llm"
	"github.com/futig/zoning-qa/internal/phase"
	pkgRetry "github.com/futig/zoning-qa/internal/pkg/retry"
	"github.com/futig/zoning-qa/internal/pkg/validator"
	"github.com/futig/zoning-qa/internal/repository"
	"github.com/futig/zoning-qa/internal/retriever"
	"github.com/futig/zoning-qa/internal/synthesizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const document13c1 = "Code 13c1 permits residential use up to three stories."

var fastRetry = pkgRetry.RetryConfig{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func phaseConfigs() []entity.RAGConfig {
	return []entity.RAGConfig{
		{
			Phase:               "p1",
			Model:               "mock-llm",
			Temperature:         0.1,
			SimilarityThreshold: 0.2,
			TopK:                5,
			ChunkSize:           400,
			ChunkOverlap:        0,
			Embedding:           entity.EmbeddingSpec{Model: "mock-embed", Dimensions: 1536},
			Optimizations:       []string{"baseline"},
		},
		{
			Phase:               "p2",
			Model:               "mock-llm",
			Temperature:         0.1,
			SimilarityThreshold: 0.2,
			TopK:                5,
			ChunkSize:           20,
			ChunkOverlap:        5,
			Embedding:           entity.EmbeddingSpec{Model: "mock-embed", Dimensions: 1536},
			Optimizations:       []string{"smaller chunks", "overlap"},
		},
	}
}

type env struct {
	uc     *RAGUsecase
	store  *repository.ChunkMemory
	phases *phase.Manager
}

type options struct {
	provider  embedding.Provider
	generator synthesizer.Generator
	store     repository.ChunkRepository
	timeout   time.Duration
}

func newEnv(t *testing.T, opts options) *env {
	t.Helper()
	logger := zap.NewNop()

	phases, err := phase.NewManager(phaseConfigs(), "p1")
	require.NoError(t, err)

	mem := repository.NewChunkMemory()
	var store repository.ChunkRepository = mem
	if opts.store != nil {
		store = opts.store
	}
	if opts.provider == nil {
		opts.provider = embedder.NewMockConnector(logger)
	}
	if opts.generator == nil {
		opts.generator = llm.NewMockConnector(logger)
	}

	uc := NewUsecase(
		store,
		phases,
		embedding.NewClient(opts.provider, embedding.NewMemoryCache(time.Minute, time.Minute, 100), embedding.WithRetry(fastRetry)),
		retriever.New(store),
		synthesizer.New(opts.generator, synthesizer.WithRetry(fastRetry)),
		validator.New(config.LimitsConfig{MaxDocumentBytes: 1 << 20, MaxTitleLength: 200, MaxQuestionLength: 500, MaxTopK: 50}),
		Config{QueryTimeout: opts.timeout, IngestWorkers: 2},
		logger,
	)
	return &env{uc: uc, store: mem, phases: phases}
}

func ingest(t *testing.T, e *env, title, text, phaseName string) *entity.IngestResult {
	t.Helper()
	res, err := e.uc.IngestDocument(context.Background(), &entity.IngestDocumentRequest{
		MunicipalityID: "401",
		DocumentTitle:  title,
		RawText:        text,
		Phase:          phaseName,
	})
	require.NoError(t, err)
	return res
}

func TestEndToEnd_Code13c1(t *testing.T) {
	e := newEnv(t, options{})

	res := ingest(t, e, "Zoning Code", document13c1, "p1")
	assert.Equal(t, 1, res.ChunksCreated)
	assert.Equal(t, "p1", res.Phase)
	assert.NotEmpty(t, res.RunID)

	chunks, err := e.store.Candidates(context.Background(), "401", "p1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, document13c1, chunks[0].ChunkText)

	topK := 5
	resp, err := e.uc.AskQuestion(context.Background(), "401", "What is code 13c1?", entity.AskOptions{Phase: "p1", TopK: &topK})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Zoning Code", resp.Sources[0].DocumentTitle)
	assert.Equal(t, 0, resp.Sources[0].ChunkIndex)
	assert.Greater(t, resp.Sources[0].Similarity, 0.2)
	assert.Contains(t, resp.Answer, "residential")
	assert.Contains(t, resp.Answer, "three stories")
	assert.False(t, resp.Metadata.GenerationFailed)
	assert.Greater(t, resp.Metadata.AvgSimilarity, 0.2)
	assert.NotNil(t, resp.Metadata.TokensUsed)
	assert.Nil(t, resp.Metadata.Debug)
}

func TestPhaseTransition_PhasesNeverMix(t *testing.T) {
	e := newEnv(t, options{})

	ingest(t, e, "Zoning Code", document13c1, "p1")
	before, err := e.store.Candidates(context.Background(), "401", "p1")
	require.NoError(t, err)

	p2 := ingest(t, e, "Zoning Code", document13c1, "p2")
	assert.Greater(t, p2.ChunksCreated, 1)

	after, err := e.store.Candidates(context.Background(), "401", "p1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "p1 chunks untouched by p2 ingestion")

	p1Resp, err := e.uc.AskQuestion(context.Background(), "401", "What is code 13c1?", entity.AskOptions{Phase: "p1"})
	require.NoError(t, err)
	require.Len(t, p1Resp.Sources, 1)
	assert.Equal(t, document13c1, p1Resp.Sources[0].ChunkText)

	p2Chunks, err := e.store.Candidates(context.Background(), "401", "p2")
	require.NoError(t, err)
	p2Texts := map[string]bool{}
	for _, c := range p2Chunks {
		p2Texts[c.ChunkText] = true
		assert.LessOrEqual(t, len([]rune(c.ChunkText)), 20)
	}

	p2Resp, err := e.uc.AskQuestion(context.Background(), "401", "What is code 13c1?", entity.AskOptions{Phase: "p2", Verbose: true})
	require.NoError(t, err)
	require.NotEmpty(t, p2Resp.Sources)
	for _, s := range p2Resp.Sources {
		assert.True(t, p2Texts[s.ChunkText], "source %q is not a p2 chunk", s.ChunkText)
	}
	require.NotNil(t, p2Resp.Metadata.Debug)
	assert.Equal(t, len(p2Chunks), p2Resp.Metadata.Debug.CandidatesConsidered)
	assert.Equal(t, []string{"smaller chunks", "overlap"}, p2Resp.Metadata.Debug.Optimizations)
	assert.Equal(t, "p2", p2Resp.Metadata.Phase)
}

func TestIngestDocument_ReingestIsIdempotent(t *testing.T) {
	e := newEnv(t, options{})
	text := strings.Repeat("Setbacks in district R-2 are twenty feet from the front lot line. ", 20)

	ingest(t, e, "Setbacks", text, "p2")
	first, err := e.store.Candidates(context.Background(), "401", "p2")
	require.NoError(t, err)

	ingest(t, e, "Setbacks", text, "p2")
	second, err := e.store.Candidates(context.Background(), "401", "p2")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIngestDocument_BlankChunksKeepPositions(t *testing.T) {
	e := newEnv(t, options{})
	narrow := phaseConfigs()[1]
	narrow.Phase = "narrow"
	narrow.ChunkSize = 10
	narrow.ChunkOverlap = 2
	require.NoError(t, e.uc.PublishPhase(context.Background(), narrow))

	text := strings.Repeat("A", 10) + strings.Repeat(" ", 16) + strings.Repeat("B", 10)
	want, err := chunker.Split(text, 10, 2)
	require.NoError(t, err)

	res := ingest(t, e, "Spacing", text, "narrow")
	assert.Equal(t, len(want), res.ChunksCreated)

	stored, err := e.store.Candidates(context.Background(), "401", "narrow")
	require.NoError(t, err)
	require.Len(t, stored, len(want))

	pieces := make([]chunker.Chunk, len(stored))
	for i, c := range stored {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, want[i].Text, c.ChunkText)
		pieces[i] = chunker.Chunk{Text: c.ChunkText}
	}
	assert.Equal(t, text, chunker.Join(pieces, 2))
}

func TestIngestDocument_EmbeddingFailureKeepsPriorIndex(t *testing.T) {
	provider := &switchProvider{next: embedder.NewMockConnector(zap.NewNop())}
	e := newEnv(t, options{provider: provider})

	ingest(t, e, "Zoning Code", document13c1, "p1")
	before, err := e.store.Candidates(context.Background(), "401", "p1")
	require.NoError(t, err)

	provider.fail.Store(true)
	_, err = e.uc.IngestDocument(context.Background(), &entity.IngestDocumentRequest{
		MunicipalityID: "401",
		DocumentTitle:  "Zoning Code",
		RawText:        "Completely different replacement text.",
		Phase:          "p1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrIngestion)
	assert.ErrorIs(t, err, entity.ErrEmbedding)

	var ingErr *entity.IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, entity.StageEmbed, ingErr.Stage)
	assert.Equal(t, "Zoning Code", ingErr.Key.DocumentTitle)

	after, err := e.store.Candidates(context.Background(), "401", "p1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIngestDocument_StoreFailure(t *testing.T) {
	e := newEnv(t, options{store: &failingStore{ChunkMemory: repository.NewChunkMemory()}})

	_, err := e.uc.IngestDocument(context.Background(), &entity.IngestDocumentRequest{
		MunicipalityID: "401", DocumentTitle: "Zoning Code", RawText: document13c1,
	})
	var ingErr *entity.IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, entity.StageStore, ingErr.Stage)
	assert.Equal(t, "p1", ingErr.Key.Phase, "empty phase resolves to the active one")
}

func TestIngestDocument_Validation(t *testing.T) {
	e := newEnv(t, options{})
	ingest(t, e, "Zoning Code", document13c1, "p1")

	_, err := e.uc.IngestDocument(context.Background(), &entity.IngestDocumentRequest{
		MunicipalityID: "401", DocumentTitle: "Zoning Code", RawText: "   ",
	})
	assert.ErrorIs(t, err, entity.ErrValidation)

	chunks, err := e.store.Candidates(context.Background(), "401", "p1")
	require.NoError(t, err)
	assert.Len(t, chunks, 1, "empty text never wipes the index")

	_, err = e.uc.IngestDocument(context.Background(), &entity.IngestDocumentRequest{
		MunicipalityID: "401", DocumentTitle: "Zoning Code", RawText: "text", Phase: "p9",
	})
	assert.ErrorIs(t, err, entity.ErrPhaseNotFound)
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestIngestDocuments_WorkerPool(t *testing.T) {
	e := newEnv(t, options{})

	reqs := []*entity.IngestDocumentRequest{
		{MunicipalityID: "401", DocumentTitle: "A", RawText: "Lot coverage may not exceed forty percent."},
		{MunicipalityID: "401", DocumentTitle: "B", RawText: ""},
		{MunicipalityID: "401", DocumentTitle: "C", RawText: "Accessory dwelling units are permitted."},
	}
	outcomes := e.uc.IngestDocuments(context.Background(), reqs)
	require.Len(t, outcomes, 3)

	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 1, outcomes[0].Result.ChunksCreated)
	assert.ErrorIs(t, outcomes[1].Err, entity.ErrValidation)
	assert.Equal(t, "C", outcomes[2].DocumentTitle)
	assert.NoError(t, outcomes[2].Err)

	docs, err := e.uc.ListDocuments(context.Background(), "401", "p1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestAskQuestion_Errors(t *testing.T) {
	e := newEnv(t, options{})
	ingest(t, e, "Zoning Code", document13c1, "p1")

	_, err := e.uc.AskQuestion(context.Background(), "999", "What is code 13c1?", entity.AskOptions{})
	assert.ErrorIs(t, err, entity.ErrUnknownMunicipality)
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = e.uc.AskQuestion(context.Background(), "401", " ", entity.AskOptions{})
	assert.ErrorIs(t, err, entity.ErrMissingField)

	zero := 0
	_, err = e.uc.AskQuestion(context.Background(), "401", "q", entity.AskOptions{TopK: &zero})
	assert.ErrorIs(t, err, entity.ErrInvalidParameter)

	_, err = e.uc.AskQuestion(context.Background(), "401", "q", entity.AskOptions{Phase: "nope"})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestAskQuestion_NoRelevantContext(t *testing.T) {
	gen := &countingGenerator{}
	e := newEnv(t, options{generator: gen})
	ingest(t, e, "Zoning Code", document13c1, "p1")
	// only p1 has chunks; p2 has none for this municipality

	resp, err := e.uc.AskQuestion(context.Background(), "401", "What is code 13c1?", entity.AskOptions{Phase: "p2"})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, synthesizer.InsufficientContextAnswer, resp.Answer)
	assert.Zero(t, resp.Metadata.AvgSimilarity)
	assert.Nil(t, resp.Metadata.TokensUsed)
	assert.Zero(t, gen.calls.Load())
}

func TestAskQuestion_GenerationFailureKeepsSources(t *testing.T) {
	gen := &countingGenerator{err: errors.New("HTTP 401: invalid key")}
	e := newEnv(t, options{generator: gen})
	ingest(t, e, "Zoning Code", document13c1, "p1")

	resp, err := e.uc.AskQuestion(context.Background(), "401", "What is code 13c1?", entity.AskOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Sources)
	assert.Equal(t, synthesizer.GenerationFailedMarker, resp.Answer)
	assert.True(t, resp.Metadata.GenerationFailed)
	assert.Equal(t, "generation error: provider_error", resp.Metadata.GenerationError)
	assert.NotContains(t, resp.Metadata.GenerationError, "invalid key")
}

func TestAskQuestion_Timeout(t *testing.T) {
	gen := &countingGenerator{block: true}
	e := newEnv(t, options{generator: gen, timeout: 30 * time.Millisecond})
	ingest(t, e, "Zoning Code", document13c1, "p1")

	_, err := e.uc.AskQuestion(context.Background(), "401", "What is code 13c1?", entity.AskOptions{})
	assert.ErrorIs(t, err, entity.ErrTimeout)
}

func TestPhaseOperations(t *testing.T) {
	e := newEnv(t, options{})
	ingest(t, e, "Zoning Code", document13c1, "p2")

	phases := e.uc.ListPhases()
	assert.Equal(t, "p1", phases.Active)
	assert.Equal(t, []string{"p1", "p2"}, phases.Phases)

	_, err := e.uc.RetirePhase(context.Background(), "p1")
	assert.ErrorIs(t, err, entity.ErrPhaseActive)

	require.NoError(t, e.uc.ActivatePhase(context.Background(), "p2"))
	cfg, err := e.uc.GetConfig("")
	require.NoError(t, err)
	assert.Equal(t, "p2", cfg.Phase)

	require.NoError(t, e.uc.ActivatePhase(context.Background(), "p1"))
	res, err := e.uc.RetirePhase(context.Background(), "p2")
	require.NoError(t, err)
	assert.Greater(t, res.ChunksDeleted, int64(0))

	chunks, err := e.store.Candidates(context.Background(), "401", "p2")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = e.uc.GetConfig("p2")
	assert.ErrorIs(t, err, entity.ErrPhaseNotFound)

	p3 := phaseConfigs()[1]
	p3.Phase = "p3"
	require.NoError(t, e.uc.PublishPhase(context.Background(), p3))
	assert.ErrorIs(t, e.uc.PublishPhase(context.Background(), p3), entity.ErrPhaseExists)
	assert.Equal(t, "p1", e.uc.ListPhases().Active)
}

func TestPublishPhase_RefusesNameWithChunks(t *testing.T) {
	e := newEnv(t, options{})
	ctx := context.Background()

	// chunks left under p3 by an earlier process whose phases were lost
	require.NoError(t, e.store.ReplaceChunks(ctx, entity.DocumentKey{MunicipalityID: "401", DocumentTitle: "Zoning Code", Phase: "p3"},
		[]entity.DocumentChunk{{ChunkIndex: 0, ChunkText: document13c1, Embedding: []float32{1}}}))

	p3 := phaseConfigs()[1]
	p3.Phase = "p3"
	err := e.uc.PublishPhase(ctx, p3)
	assert.ErrorIs(t, err, entity.ErrPhaseExists)
	assert.ErrorIs(t, err, entity.ErrConfiguration)
	assert.Equal(t, []string{"p1", "p2"}, e.uc.ListPhases().Phases)

	// retiring the unknown name clears the leftovers and frees it
	res, err := e.uc.RetirePhase(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ChunksDeleted)
	require.NoError(t, e.uc.PublishPhase(ctx, p3))

	_, err = e.uc.RetirePhase(ctx, "p9")
	assert.ErrorIs(t, err, entity.ErrPhaseNotFound)
}

func TestRetirePhase_RemovesPhaseBeforeChunks(t *testing.T) {
	store := &orderingStore{ChunkMemory: repository.NewChunkMemory()}
	e := newEnv(t, options{store: store})
	store.phases = e.phases

	ingest(t, e, "Zoning Code", document13c1, "p2")

	res, err := e.uc.RetirePhase(context.Background(), "p2")
	require.NoError(t, err)
	assert.Greater(t, res.ChunksDeleted, int64(0))
	assert.True(t, store.deleted)
	assert.False(t, store.phaseLiveOnDelete, "phase is already gone when its chunks are deleted")
}

func TestRetirePhase_InFlightIngestLeavesNoChunks(t *testing.T) {
	gate := &gateProvider{
		next:    embedder.NewMockConnector(zap.NewNop()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := newEnv(t, options{provider: gate})

	errc := make(chan error, 1)
	go func() {
		_, err := e.uc.IngestDocument(context.Background(), &entity.IngestDocumentRequest{
			MunicipalityID: "401", DocumentTitle: "Zoning Code", RawText: document13c1, Phase: "p2",
		})
		errc <- err
	}()

	<-gate.entered
	_, err := e.uc.RetirePhase(context.Background(), "p2")
	require.NoError(t, err)
	close(gate.release)

	err = <-errc
	assert.ErrorIs(t, err, entity.ErrPhaseNotFound)
	var ingErr *entity.IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, entity.StageStore, ingErr.Stage)

	has, err := e.store.PhaseHasChunks(context.Background(), "p2")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIngestDocument_RepublishedPhaseRejected(t *testing.T) {
	gate := &gateProvider{
		next:    embedder.NewMockConnector(zap.NewNop()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := newEnv(t, options{provider: gate})

	errc := make(chan error, 1)
	go func() {
		_, err := e.uc.IngestDocument(context.Background(), &entity.IngestDocumentRequest{
			MunicipalityID: "401", DocumentTitle: "Zoning Code", RawText: document13c1, Phase: "p2",
		})
		errc <- err
	}()

	<-gate.entered
	_, err := e.uc.RetirePhase(context.Background(), "p2")
	require.NoError(t, err)
	changed := phaseConfigs()[1]
	changed.ChunkSize = 40
	require.NoError(t, e.uc.PublishPhase(context.Background(), changed))
	close(gate.release)

	assert.ErrorIs(t, <-errc, entity.ErrPhaseNotFound)
	chunks, err := e.store.Candidates(context.Background(), "401", "p2")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// orderingStore records whether the phase was still published when its
// chunks were deleted
type orderingStore struct {
	*repository.ChunkMemory
	phases            *phase.Manager
	deleted           bool
	phaseLiveOnDelete bool
}

func (s *orderingStore) DeletePhase(ctx context.Context, name string) (int64, error) {
	_, err := s.phases.GetConfig(name)
	s.deleted = true
	s.phaseLiveOnDelete = err == nil
	return s.ChunkMemory.DeletePhase(ctx, name)
}

// gateProvider blocks its first call until release is closed
type gateProvider struct {
	next    embedding.Provider
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *gateProvider) CreateEmbeddings(ctx context.Context, spec entity.EmbeddingSpec, texts []string) (*entity.EmbeddingBatchResult, error) {
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return p.next.CreateEmbeddings(ctx, spec, texts)
}

// switchProvider starts failing permanently once fail is set
type switchProvider struct {
	next embedding.Provider
	fail atomic.Bool
}

func (p *switchProvider) CreateEmbeddings(ctx context.Context, spec entity.EmbeddingSpec, texts []string) (*entity.EmbeddingBatchResult, error) {
	if p.fail.Load() {
		return nil, errors.New("HTTP 400: bad request")
	}
	return p.next.CreateEmbeddings(ctx, spec, texts)
}

type failingStore struct {
	*repository.ChunkMemory
}

func (s *failingStore) ReplaceChunks(context.Context, entity.DocumentKey, []entity.DocumentChunk) error {
	return errors.New("connection reset by peer")
}

type countingGenerator struct {
	calls atomic.Int32
	err   error
	block bool
}

func (g *countingGenerator) Generate(ctx context.Context, req entity.LLMCompletionRequest) (entity.CompletionResult, error) {
	g.calls.Add(1)
	if g.block {
		<-ctx.Done()
		return entity.CompletionResult{}, ctx.Err()
	}
	if g.err != nil {
		return entity.CompletionResult{}, g.err
	}
	return entity.CompletionOK(entity.LLMCompletion{Text: "ok"}), nil
}
