package search

import (
	"context"

	"kanban/api/internal/store"
)

// Result is a single card hit returned to the caller.
type Result struct {
	CardID   string `json:"cardId"`
	ColumnID string `json:"columnId"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// Query describes a search inside one board.
type Query struct {
	BoardID string
	Text    string
	Limit   int
	Offset  int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// CardRecord is the data we index for a card.
type CardRecord struct {
	ID          string   `json:"id"`
	BoardID     string   `json:"boardId"`
	ColumnID    string   `json:"columnId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Labels      []string `json:"labels"`
}

func RecordFromCard(card store.Card) CardRecord {
	labels := card.LabelIDs
	if labels == nil {
		labels = []string{}
	}
	return CardRecord{
		ID:          card.ID,
		BoardID:     card.BoardID,
		ColumnID:    card.ColumnID,
		Title:       card.Title,
		Description: card.Description,
		Priority:    string(card.Priority),
		Labels:      labels,
	}
}
