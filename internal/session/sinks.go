package session

import (
	"context"
	"fmt"

	"github.com/somalab/autonomic-monitory/internal/record"
)

// cacheSink кладет запись каждого тика в живой кэш сессии
type cacheSink struct {
	cache CacheStore
}

func (s *cacheSink) Consume(ctx context.Context, rec *record.Record) error {
	if err := s.cache.SetLatestRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to cache latest record: %w", err)
	}
	return nil
}

// archiveSink пишет запись каждого тика в долговременное хранилище
type archiveSink struct {
	repository Repository
}

func (s *archiveSink) Consume(ctx context.Context, rec *record.Record) error {
	if err := s.repository.InsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to archive record: %w", err)
	}
	return nil
}
