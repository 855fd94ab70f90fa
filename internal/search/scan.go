package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"kanban/api/internal/store"
)

// Scan matches query terms against a board snapshot. It backs search when
// the service runs on the in-memory store.
type Scan struct {
	store store.Store
}

func NewScan(s store.Store) *Scan {
	return &Scan{store: s}
}

func (s *Scan) Healthy() bool {
	return true
}

// Search returns cards whose title or description contains every term,
// title matches first.
func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}
	snap, err := s.store.Snapshot(ctx, q.BoardID)
	if err != nil {
		return nil, 0, fmt.Errorf("scan board %s: %w", q.BoardID, err)
	}

	type hit struct {
		result Result
		score  int
	}
	var hits []hit
	for _, column := range snap.Columns {
		for _, card := range snap.Cards[column.ID] {
			title := strings.ToLower(card.Title)
			description := strings.ToLower(card.Description)
			score := 0
			matched := true
			for _, term := range terms {
				switch {
				case strings.Contains(title, term):
					score += 2
				case strings.Contains(description, term):
					score++
				default:
					matched = false
				}
			}
			if matched {
				hits = append(hits, hit{
					result: Result{CardID: card.ID, ColumnID: card.ColumnID, Title: card.Title, Snippet: snippet(card.Description, 160)},
					score:  score,
				})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	total := len(hits)
	start := min(q.offset(), total)
	end := min(start+q.limit(), total)
	results := make([]Result, 0, end-start)
	for _, h := range hits[start:end] {
		results = append(results, h.result)
	}
	return results, total, nil
}

func snippet(text string, size int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= size {
		return string(runes)
	}
	return string(runes[:size]) + "…"
}
