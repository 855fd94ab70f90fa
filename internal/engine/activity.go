package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"kanban/api/internal/store"
	"kanban/api/internal/util"
)

const (
	ActionCardCreated       = "card.created"
	ActionCardUpdated       = "card.updated"
	ActionCardMoved         = "card.moved"
	ActionCardDeleted       = "card.deleted"
	ActionCommentCreated    = "comment.created"
	ActionCommentUpdated    = "comment.updated"
	ActionCommentDeleted    = "comment.deleted"
	ActionAttachmentAdded   = "attachment.added"
	ActionAttachmentUpdated = "attachment.updated"
	ActionAttachmentRemoved = "attachment.removed"
)

// MoveDetails is the payload of a card.moved entry.
type MoveDetails struct {
	FromColumnID    string `json:"fromColumnId"`
	FromColumnTitle string `json:"fromColumnTitle"`
	FromOrder       int    `json:"fromOrder"`
	ToColumnID      string `json:"toColumnId"`
	ToColumnTitle   string `json:"toColumnTitle"`
	ToOrder         int    `json:"toOrder"`
}

// recorder appends activity rows through the transaction that performed the
// mutation, so an aborted transaction leaves no trace.
type recorder struct {
	tx      store.Tx
	boardID string
	actor   string
	now     func() time.Time
	count   int
}

func (r *recorder) record(ctx context.Context, cardID, action string, details any) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode %s details: %w", action, err)
	}
	at := r.now()
	entry := store.ActivityLog{
		ID:        util.NewSortableID(at),
		BoardID:   r.boardID,
		CardID:    cardID,
		Action:    action,
		Details:   payload,
		CreatedAt: at,
	}
	if r.actor != "" {
		actor := r.actor
		entry.ActorID = &actor
	}
	if err := r.tx.InsertActivity(ctx, entry); err != nil {
		return opError("activity", entry.ID, "record", err)
	}
	r.count++
	return nil
}
