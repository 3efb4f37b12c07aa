package catalog

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"

	"swipe-match-backend/internal/models"
)

// ErrNoCandidates is returned when neither the provider nor the fallback pool has anything to offer
var ErrNoCandidates = errors.New("no candidates available")

// Provider searches an external restaurant directory
type Provider interface {
	Search(ctx context.Context, f models.Filters) ([]models.Candidate, error)
}

// Service produces the candidate set for a new session
type Service struct {
	provider Provider
	cache    *Cache
	fallback []models.Candidate

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewService creates a catalog service. provider and cache may be nil.
func NewService(provider Provider, cache *Cache, fallback []models.Candidate, rnd *rand.Rand) *Service {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Service{
		provider: provider,
		cache:    cache,
		fallback: fallback,
		rnd:      rnd,
	}
}

// FetchCandidates returns a shuffled candidate list for the filters. Provider
// failures and empty results fall back to the local pool, filtered when possible.
func (s *Service) FetchCandidates(ctx context.Context, f models.Filters) ([]models.Candidate, error) {
	candidates := s.search(ctx, f)

	if len(candidates) == 0 {
		candidates = Filter(s.fallback, f)
		if len(candidates) == 0 {
			log.Debug().Msg("No fallback candidates match filters, using full pool")
			candidates = append([]models.Candidate(nil), s.fallback...)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	s.shuffle(candidates)
	return candidates, nil
}

func (s *Service) search(ctx context.Context, f models.Filters) []models.Candidate {
	if s.provider == nil {
		return nil
	}

	key := CacheKey(f)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached
		}
	}

	results, err := s.provider.Search(ctx, f)
	if err != nil {
		log.Warn().Err(err).Msg("Candidate search failed, using fallback pool")
		return nil
	}
	if len(results) == 0 {
		log.Info().Msg("Candidate search returned no results, using fallback pool")
		return nil
	}

	if s.cache != nil {
		s.cache.Put(key, results)
	}
	return append([]models.Candidate(nil), results...)
}

func (s *Service) shuffle(c []models.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd.Shuffle(len(c), func(i, j int) { c[i], c[j] = c[j], c[i] })
}
