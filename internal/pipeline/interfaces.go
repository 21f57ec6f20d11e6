package pipeline

import (
	"context"

	"github.com/insightdelivered/statement-processor/internal/models"
)

// Fetcher returns the original bytes of a document, used for AI extraction.
type Fetcher interface {
	FetchOriginal(ctx context.Context, id int) ([]byte, error)
}

// Source lists statement documents and fetches their originals.
type Source interface {
	Fetcher
	List(ctx context.Context) ([]models.Document, error)
}

// AIExtractor extracts a statement from its original document.
// *ai.Extractor is the production implementation.
type AIExtractor interface {
	Extract(ctx context.Context, document []byte) (*models.ParseOutcome, error)
}
