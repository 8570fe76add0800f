package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/model"
)

const subjectCatalogTTL = 5 * time.Minute

// SubjectLister is the part of the store the catalog reads.
type SubjectLister interface {
	ListSubjects(ctx context.Context) ([]model.Subject, error)
}

// SubjectService serves the subject catalog shown when assembling an exam.
// With Redis the list is cached for a few minutes.
type SubjectService struct {
	store SubjectLister
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewSubjectService creates a SubjectService. rdb may be nil.
func NewSubjectService(store SubjectLister, rdb *redis.Client, log zerolog.Logger) *SubjectService {
	return &SubjectService{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "subject_service").Logger(),
	}
}

func (s *SubjectService) GetAll(ctx context.Context) ([]model.Subject, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, config.CacheKey.SubjectCatalogKey()).Bytes()
		switch {
		case err == nil:
			var subjects []model.Subject
			if json.Unmarshal(raw, &subjects) == nil {
				return subjects, nil
			}
		case !errors.Is(err, redis.Nil):
			s.log.Warn().Err(err).Msg("subject catalog cache read failed")
		}
	}

	subjects, err := s.store.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(subjects); err == nil {
			if err := s.rdb.Set(ctx, config.CacheKey.SubjectCatalogKey(), raw, subjectCatalogTTL).Err(); err != nil {
				s.log.Warn().Err(err).Msg("subject catalog cache write failed")
			}
		}
	}
	return subjects, nil
}

// Invalidate drops the cached catalog.
func (s *SubjectService) Invalidate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, config.CacheKey.SubjectCatalogKey()).Err()
}
