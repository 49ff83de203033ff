package retrieval

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/sanitize"
)

// ErrEmbeddingFailed wraps failures from the embedding backend.
var ErrEmbeddingFailed = errors.New("embedding failed")

const (
	embedBatchSize = 64
	// Chunks fetched per requested document before per-file dedupe.
	overFetch = 3
)

// SnapshotSource is a FileSource that reports when its snapshot changed.
type SnapshotSource interface {
	FileSource
	LastScan() time.Time
	Root() string
}

// VectorOptions configures a VectorRetriever.
type VectorOptions struct {
	ChunkSize    int
	ChunkOverlap int
	Logger       *logging.Logger
}

// VectorRetriever embeds chunks of every indexed file into an in-memory
// chromem collection and answers by cosine similarity.
type VectorRetriever struct {
	files    SnapshotSource
	embedder embeddings.Embedder
	size     int
	overlap  int
	logger   *logging.Logger

	mu         sync.Mutex
	collection *chromem.Collection
	builtFrom  time.Time
}

// NewVectorRetriever creates a VectorRetriever. The collection is built
// on first use and again whenever the file snapshot changes.
func NewVectorRetriever(files SnapshotSource, embedder embeddings.Embedder, opts VectorOptions) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d)", opts.ChunkSize)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &VectorRetriever{
		files:    files,
		embedder: embedder,
		size:     opts.ChunkSize,
		overlap:  opts.ChunkOverlap,
		logger:   opts.Logger,
	}, nil
}

// EmbedderConfig selects an OpenAI-compatible embeddings endpoint.
type EmbedderConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// NewOpenAIEmbedder builds a langchaingo embedder against an
// OpenAI-compatible endpoint.
func NewOpenAIEmbedder(cfg EmbedderConfig) (embeddings.Embedder, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for local endpoints
		apiKey = "placeholder"
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}

// FindRelevant returns up to topK files ranked by their best chunk.
// Score is similarity × 100; chunks with non-positive similarity are
// dropped.
func (v *VectorRetriever) FindRelevant(ctx context.Context, question string, topK int) ([]Document, error) {
	if topK <= 0 || strings.TrimSpace(question) == "" {
		return []Document{}, nil
	}

	col, err := v.ensure(ctx)
	if err != nil {
		return []Document{}, err
	}
	n := col.Count()
	if n == 0 {
		return []Document{}, nil
	}
	k := topK * overFetch
	if k > n {
		k = n
	}

	results, err := col.Query(ctx, question, k, nil, nil)
	if err != nil {
		return []Document{}, fmt.Errorf("querying collection: %w", err)
	}

	best := make(map[string]Document)
	for _, r := range results {
		if r.Similarity <= 0 {
			continue
		}
		p := r.Metadata["path"]
		doc := Document{
			Content:  r.Content,
			Score:    float64(r.Similarity) * 100,
			FileName: path.Base(p),
			FilePath: p,
			FileType: strings.TrimPrefix(strings.ToLower(path.Ext(p)), "."),
		}
		if cur, ok := best[p]; !ok || doc.Score > cur.Score {
			best[p] = doc
		}
	}

	docs := make([]Document, 0, len(best))
	for _, d := range best {
		docs = append(docs, d)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].FilePath < docs[j].FilePath
	})
	if len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, nil
}

// ensure returns a collection built from the current file snapshot.
func (v *VectorRetriever) ensure(ctx context.Context) (*chromem.Collection, error) {
	files, err := v.files.Files(ctx)
	if err != nil {
		return nil, err
	}
	scanned := v.files.LastScan()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.collection != nil && v.builtFrom.Equal(scanned) {
		return v.collection, nil
	}

	start := time.Now()
	var docs []chromem.Document
	var texts []string
	for _, f := range files {
		for i, chunk := range Chunk(f.Content, v.size, v.overlap) {
			docs = append(docs, chromem.Document{
				ID:       fmt.Sprintf("%s#%d", f.Path, i),
				Content:  chunk,
				Metadata: map[string]string{"path": f.Path},
			})
			texts = append(texts, chunk)
		}
	}

	for lo := 0; lo < len(texts); lo += embedBatchSize {
		hi := lo + embedBatchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		vectors, err := v.embedder.EmbedDocuments(ctx, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		if len(vectors) != hi-lo {
			return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailed, len(vectors), hi-lo)
		}
		for i, vec := range vectors {
			docs[lo+i].Embedding = vec
		}
	}

	db := chromem.NewDB()
	name := sanitize.Identifier(v.files.Root())
	col, err := db.GetOrCreateCollection(name, nil, func(ctx context.Context, text string) ([]float32, error) {
		return v.embedder.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("adding documents: %w", err)
		}
	}

	v.collection = col
	v.builtFrom = scanned
	v.logger.Info(ctx, "vector collection built",
		zap.String("collection", name),
		zap.Int("files", len(files)),
		zap.Int("chunks", len(docs)),
		zap.Duration("duration", time.Since(start)))
	return col, nil
}

// Chunk splits s into windows of size runes that overlap by overlap
// runes. Empty input yields no chunks.
func Chunk(s string, size, overlap int) []string {
	runes := []rune(s)
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

var _ Retriever = (*VectorRetriever)(nil)
