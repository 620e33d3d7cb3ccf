package memory

import (
	"time"

	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/repository"
)

const defaultExtractionTimeout = 30 * time.Second

// UseCase consolidates finished chat turns into the long-term memory graph
type UseCase struct {
	repo   repository.Repository
	gemini adapter.Gemini

	extractionTimeout time.Duration
	now               func() time.Time
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithExtractionTimeout bounds the extraction call. Expiry is treated like
// any other step failure: the turn's writes roll back.
func WithExtractionTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.extractionTimeout = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a memory UseCase instance
func New(repo repository.Repository, gemini adapter.Gemini, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:              repo,
		gemini:            gemini,
		extractionTimeout: defaultExtractionTimeout,
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
