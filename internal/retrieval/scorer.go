// Package retrieval ranks indexed source files against a question and
// renders the winners into an LLM prompt context.
package retrieval

import (
	"context"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragchat/internal/fileindex"
	"github.com/fyrsmithlabs/ragchat/internal/logging"
)

// Scoring weights.
const (
	nameMatchScore  = 10.0
	pathMatchScore  = 5.0
	occurrenceScore = 0.5

	controllerBoost = 1.5
	serviceBoost    = 1.3
	modelBoost      = 1.2
)

// Document is a ranked source file.
type Document struct {
	Content  string
	Score    float64
	FileName string
	FilePath string
	// FileType is the lower-case extension without the dot.
	FileType string
}

// Retriever finds the documents most relevant to a question.
type Retriever interface {
	FindRelevant(ctx context.Context, question string, topK int) ([]Document, error)
}

// FileSource supplies the files to rank.
type FileSource interface {
	Files(ctx context.Context) ([]fileindex.File, error)
}

// Scorer ranks files lexically by keyword matches in name, path and body.
type Scorer struct {
	files  FileSource
	logger *logging.Logger
}

// NewScorer creates a lexical Scorer over files.
func NewScorer(files FileSource, logger *logging.Logger) *Scorer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scorer{files: files, logger: logger}
}

// FindRelevant returns up to topK documents with a positive score, best
// first. Equal scores are ordered by path. The result is never nil.
func (s *Scorer) FindRelevant(ctx context.Context, question string, topK int) ([]Document, error) {
	if topK <= 0 {
		return []Document{}, nil
	}

	files, err := s.files.Files(ctx)
	if err != nil {
		return []Document{}, err
	}

	terms := SearchTerms(question)
	s.logger.Debug(ctx, "search terms", zap.Strings("terms", terms), zap.Int("files", len(files)))
	if len(terms) == 0 {
		return []Document{}, nil
	}

	docs := make([]Document, 0, len(files))
	for _, f := range files {
		score := Score(f, terms)
		if score <= 0 {
			continue
		}
		docs = append(docs, newDocument(f, score))
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

	for _, d := range docs {
		s.logger.Trace(ctx, "relevant file", zap.String("path", d.FilePath), zap.Float64("score", d.Score))
	}
	return docs, nil
}

// Score computes the relevance of f for the given lower-case terms.
func Score(f fileindex.File, terms []string) float64 {
	lowerPath := strings.ToLower(f.Path)
	base := path.Base(lowerPath)
	name := strings.TrimSuffix(base, path.Ext(base))
	content := strings.ToLower(f.Content)

	var score float64
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(name, t) {
			score += nameMatchScore
		}
		if strings.Contains(lowerPath, t) {
			score += pathMatchScore
		}
		score += occurrenceScore * float64(strings.Count(content, t))
	}

	switch {
	case strings.HasSuffix(base, "controller.cs"):
		score *= controllerBoost
	case strings.HasSuffix(base, "service.cs"):
		score *= serviceBoost
	case strings.HasPrefix(lowerPath, "models/") || strings.Contains(lowerPath, "/models/"):
		score *= modelBoost
	}
	return score
}

func newDocument(f fileindex.File, score float64) Document {
	name := path.Base(f.Path)
	return Document{
		Content:  f.Content,
		Score:    score,
		FileName: name,
		FilePath: f.Path,
		FileType: strings.TrimPrefix(strings.ToLower(path.Ext(name)), "."),
	}
}

var _ Retriever = (*Scorer)(nil)
