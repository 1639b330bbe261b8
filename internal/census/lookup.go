package census

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"golang.org/x/sync/errgroup"
)

// matchThreshold is the minimum similarity (0-100) for a census match to be
// trusted with its population and income figures.
const matchThreshold = 75

// warmConcurrency bounds parallel state prefetches against the API.
const warmConcurrency = 4

// Match is the outcome of a place lookup. Below the confidence threshold only
// the best candidate's name and FIPS are reported, never its figures.
type Match struct {
	Population   *int
	MedianIncome *int
	PlaceFIPS    string
	Confidence   float64
	MatchedName  string
}

// Service answers place lookups from the cache, fetching each state from the
// API at most once.
type Service struct {
	client *Client
	cache  *Cache
	log    *slog.Logger

	mu         sync.Mutex
	stateLocks map[string]*sync.Mutex // one lock per state so warm fetches stay parallel
}

func NewService(client *Client, cache *Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{client: client, cache: cache, log: log}
}

// Lookup fuzzy-matches a city against the state's census places.
func (s *Service) Lookup(ctx context.Context, city, state string) (Match, error) {
	city = strings.TrimSpace(city)
	state = strings.ToUpper(strings.TrimSpace(state))
	if city == "" || state == "" {
		return Match{}, nil
	}

	places, err := s.placesFor(ctx, state)
	if err != nil {
		return Match{}, err
	}
	if len(places) == 0 {
		return Match{}, nil
	}

	var best Place
	bestScore := -1.0
	for _, p := range places {
		score := Similarity(city, p.Name)
		if score > bestScore {
			bestScore = score
			best = p
		}
	}

	m := Match{
		Confidence:  bestScore,
		MatchedName: best.Name,
		PlaceFIPS:   best.PlaceFIPS,
	}
	if bestScore >= matchThreshold {
		pop := best.Population
		m.Population = &pop
		m.MedianIncome = best.MedianIncome
	}
	return m, nil
}

// WarmStates prefetches the distinct states ahead of row processing so later
// lookups are cache-only.
func (s *Service) WarmStates(ctx context.Context, states []string) error {
	seen := make(map[string]struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	for _, raw := range states {
		state := strings.ToUpper(strings.TrimSpace(raw))
		if state == "" {
			continue
		}
		if _, ok := stateFIPS[state]; !ok {
			continue
		}
		if _, ok := seen[state]; ok {
			continue
		}
		seen[state] = struct{}{}

		g.Go(func() error {
			if _, err := s.placesFor(gctx, state); err != nil {
				return fmt.Errorf("warm %s: %w", state, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) placesFor(ctx context.Context, state string) ([]Place, error) {
	loaded, err := s.cache.StateLoaded(ctx, state)
	if err != nil {
		return nil, err
	}
	if loaded {
		return s.cache.Places(ctx, state)
	}

	lock := s.stateLock(state)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have filled the cache while we waited on the lock.
	loaded, err = s.cache.StateLoaded(ctx, state)
	if err != nil {
		return nil, err
	}
	if loaded {
		return s.cache.Places(ctx, state)
	}

	places, err := s.client.FetchStatePlaces(ctx, state)
	if err != nil {
		return nil, err
	}
	s.log.Debug("cached census places", "state", state, "places", len(places))
	if err := s.cache.PutState(ctx, state, places); err != nil {
		return nil, err
	}
	return s.cache.Places(ctx, state)
}

func (s *Service) stateLock(state string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocks == nil {
		s.stateLocks = make(map[string]*sync.Mutex)
	}
	l, ok := s.stateLocks[state]
	if !ok {
		l = &sync.Mutex{}
		s.stateLocks[state] = l
	}
	return l
}

// Similarity is a Levenshtein-normalized ratio on [0, 100], case-insensitive.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 100
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return (1 - float64(dist)/float64(longest)) * 100
}
