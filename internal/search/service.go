package search

import (
	"context"
	"log/slog"
)

// Service tries Meilisearch first and falls back to a local searcher.
type Service struct {
	meili    *Meili
	fallback Searcher
	pgfts    *PgFTS
	logger   *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured; pgfts may be nil when the fallback is not Postgres, in
// which case reindexing is unavailable.
func NewService(meili *Meili, fallback Searcher, pgfts *PgFTS, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meili: meili, fallback: fallback, pgfts: pgfts, logger: logger}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.WarnContext(ctx, "meilisearch error, falling back", "error", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.ErrorContext(ctx, "fallback search failed", "board_id", q.BoardID, "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Healthy reports whether any searcher can serve queries.
func (s *Service) Healthy() bool {
	if s.meili != nil && s.meili.Healthy() {
		return true
	}
	return s.fallback != nil && s.fallback.Healthy()
}

// IndexCards pushes cards to Meilisearch (fire-and-forget).
func (s *Service) IndexCards(cards []CardRecord) {
	if s.meili == nil || !s.meili.Healthy() || len(cards) == 0 {
		return
	}
	go func() {
		if err := s.meili.IndexCards(cards); err != nil {
			s.logger.Warn("index cards", "count", len(cards), "error", err)
		}
	}()
}

// DeleteCards removes cards from the index (fire-and-forget).
func (s *Service) DeleteCards(ids []string) {
	if s.meili == nil || !s.meili.Healthy() || len(ids) == 0 {
		return
	}
	go func() {
		if err := s.meili.DeleteCards(ids); err != nil {
			s.logger.Warn("delete cards from index", "count", len(ids), "error", err)
		}
	}()
}

// ReindexAll reloads every card from Postgres into Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "reindex load failed", "error", err)
		return
	}
	if err := s.meili.IndexCards(records); err != nil {
		s.logger.ErrorContext(ctx, "reindex cards", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "search index rebuilt", "cards", len(records))
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
