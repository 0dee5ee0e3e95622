package imgvec

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/imgvec/extractor"
)

// ErrEmptyImage is returned when a query image payload is empty.
var ErrEmptyImage = errors.New("empty image payload")

// QueryResult is a ranked result list plus the time the query took.
type QueryResult struct {
	Results []SearchResult
	Took    time.Duration
}

// Service composes a feature extractor with a DB to answer image queries.
// An empty result list is not an error; it only occurs when the index holds
// fewer than k entries or none at all.
type Service struct {
	extractor extractor.Extractor
	db        *DB
}

// NewService creates a query service over the given extractor and DB.
func NewService(e extractor.Extractor, db *DB) *Service {
	return &Service{
		extractor: e,
		db:        db,
	}
}

// SearchByImage embeds the image and returns its k nearest entries.
func (s *Service) SearchByImage(ctx context.Context, image []byte, k int) (*QueryResult, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	if k <= 0 {
		return nil, ErrInvalidK
	}

	start := time.Now()

	vector, err := s.extractor.Embed(ctx, image)
	if err != nil {
		return nil, err
	}

	results, err := s.db.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Results: results,
		Took:    time.Since(start),
	}, nil
}

// SearchByVector returns the k nearest entries to a precomputed embedding.
// Used by callers that already hold a vector, e.g. evaluation runs that must
// not repeat extraction.
func (s *Service) SearchByVector(ctx context.Context, vector []float32, k int) (*QueryResult, error) {
	start := time.Now()

	results, err := s.db.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Results: results,
		Took:    time.Since(start),
	}, nil
}
