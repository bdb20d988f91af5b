package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carechart/carechart/internal/domain/audit"
	"github.com/carechart/carechart/internal/platform/cache"
)

const (
	statsCacheKey      = "patients:stats"
	topAllergiesLimit  = 10
	recentActivitySize = 10
)

type AgeStatistics struct {
	AvgAge float64 `json:"avgAge"`
	MinAge int     `json:"minAge"`
	MaxAge int     `json:"maxAge"`
}

// Bucket is one group of a distribution.
type Bucket struct {
	ID    string `json:"_id"`
	Count int64  `json:"count"`
}

type Stats struct {
	TotalPatients      int64          `json:"totalPatients"`
	AgeStatistics      AgeStatistics  `json:"ageStatistics"`
	GenderDistribution []Bucket       `json:"genderDistribution"`
	CommonAllergies    []Bucket       `json:"commonAllergies"`
	RecentActivity     []*audit.Entry `json:"recentActivity"`
}

// Stats returns the aggregate envelope, served from the cache while fresh.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if cached, ok := s.cachedStats(ctx); ok {
		return cached, nil
	}
	gen := s.statsGen.Load()

	st, err := s.patients.Stats(ctx, topAllergiesLimit)
	if err != nil {
		return nil, fmt.Errorf("aggregate patients: %w", err)
	}
	recent, err := s.audit.Recent(ctx, recentActivitySize)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	st.RecentActivity = recent
	if st.GenderDistribution == nil {
		st.GenderDistribution = []Bucket{}
	}
	if st.CommonAllergies == nil {
		st.CommonAllergies = []Bucket{}
	}

	s.storeStats(ctx, st, gen)
	return st, nil
}

func (s *Service) cachedStats(ctx context.Context) (*Stats, bool) {
	raw, err := s.cache.Get(ctx, statsCacheKey)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Msg("stats cache read failed")
		}
		return nil, false
	}
	var st Stats
	if err := json.Unmarshal(raw, &st); err != nil {
		s.logger.Warn().Err(err).Msg("stats cache entry is corrupt")
		return nil, false
	}
	return &st, true
}

// storeStats skips the write when a mutation invalidated the cache after gen
// was read, so an envelope computed before the mutation is not cached. Another
// process can still race this; STATS_CACHE_TTL bounds how long that lasts.
func (s *Service) storeStats(ctx context.Context, st *Stats, gen uint64) {
	if s.statsTTL <= 0 || s.statsGen.Load() != gen {
		return
	}
	raw, err := json.Marshal(st)
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode stats for cache")
		return
	}
	if err := s.cache.Set(ctx, statsCacheKey, raw, s.statsTTL); err != nil {
		s.logger.Warn().Err(err).Msg("stats cache write failed")
	}
}

// invalidateStats drops the cached envelope after a mutation.
func (s *Service) invalidateStats(ctx context.Context) {
	s.statsGen.Add(1)
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("stats cache invalidation failed")
	}
}
