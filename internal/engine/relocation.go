package engine

import (
	"context"
	"errors"
	"fmt"

	"kanban/api/internal/ordering"
	"kanban/api/internal/store"
)

// MoveState is the last stage a move reached.
type MoveState string

const (
	MoveReceived   MoveState = "received"
	MoveValidated  MoveState = "validated"
	MoveComputing  MoveState = "computing"
	MovePersisting MoveState = "persisting"
	MoveLogged     MoveState = "logged"
	MoveDone       MoveState = "done"
	MoveFailed     MoveState = "failed"
)

// MoveRequest places a card at Order in TargetColumnID. BoardID scopes the
// request; an empty BoardID accepts whatever board the card is on.
type MoveRequest struct {
	BoardID        string
	CardID         string
	TargetColumnID string
	Order          int
}

type MoveResult struct {
	CardID       string
	BoardID      string
	FromColumnID string
	FromOrder    int
	ToColumnID   string
	ToOrder      int
	Attempts     int
	State        MoveState
}

// Relocator runs the card move protocol. Every attempt rereads both
// sequences, so a retried move never reuses a stale renumbering.
type Relocator struct {
	store store.Store
	opts  Options
}

func NewRelocator(s store.Store, opts Options) *Relocator {
	return &Relocator{store: s, opts: opts.withDefaults()}
}

func (r *Relocator) Move(ctx context.Context, actor string, req MoveRequest) (MoveResult, error) {
	if req.CardID == "" {
		return MoveResult{State: MoveFailed}, validationError("card", "", "move", "cardId is required")
	}
	if req.TargetColumnID == "" {
		return MoveResult{State: MoveFailed}, validationError("card", req.CardID, "move", "targetColumnId is required")
	}
	if req.Order < 0 {
		return MoveResult{State: MoveFailed}, validationError("card", req.CardID, "move", "order must be zero or greater")
	}

	var res MoveResult
	attempts, err := r.opts.Retry.Do(ctx, r.opts.Logger, r.opts.Metrics, func(ctx context.Context, attempt int) error {
		res = MoveResult{CardID: req.CardID, State: MoveReceived}
		return r.attempt(ctx, actor, req, &res)
	})
	res.Attempts = attempts
	r.opts.Metrics.observeMove(attempts, err)
	if err != nil {
		failedIn := res.State
		res.State = MoveFailed
		err = moveError(req.CardID, failedIn, err)
		r.opts.Logger.InfoContext(ctx, "card move failed",
			"card_id", req.CardID,
			"target_column_id", req.TargetColumnID,
			"state", failedIn,
			"attempts", attempts,
			"category", CategoryOf(err),
			"error", err)
		return res, err
	}
	r.opts.Logger.DebugContext(ctx, "card moved",
		"card_id", req.CardID,
		"from_column_id", res.FromColumnID,
		"to_column_id", res.ToColumnID,
		"to_order", res.ToOrder,
		"attempts", attempts)
	return res, nil
}

func moveError(cardID string, state MoveState, err error) error {
	if errors.Is(err, ErrRetriesExhausted) {
		return &Error{Category: CategoryConflict, Entity: "card", ID: cardID, Op: "move", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Category: CategoryInternal, Entity: "card", ID: cardID, Op: string(state), Err: fmt.Errorf("transaction timed out: %w", err)}
	}
	return opError("card", cardID, string(state), err)
}

// attempt is one full read-compute-write cycle in its own transaction.
func (r *Relocator) attempt(ctx context.Context, actor string, req MoveRequest, res *MoveResult) error {
	txCtx, cancel := context.WithTimeout(ctx, r.opts.TxTimeout)
	defer cancel()

	err := r.store.InTx(txCtx, func(tx store.Tx) error {
		card, err := tx.GetCard(txCtx, req.CardID)
		if err != nil {
			return opError("card", req.CardID, "move", err)
		}
		if req.BoardID != "" && card.BoardID != req.BoardID {
			return notFoundError("card", req.CardID, "move")
		}
		if _, err := tx.LockBoard(txCtx, card.BoardID); err != nil {
			return opError("board", card.BoardID, "lock", err)
		}
		target, err := tx.GetColumn(txCtx, req.TargetColumnID)
		if err != nil {
			return opError("column", req.TargetColumnID, "move card to", err)
		}
		if target.BoardID != card.BoardID {
			return validationError("column", target.ID, "move card to", "column belongs to another board")
		}
		source := target
		if card.ColumnID != target.ID {
			if source, err = tx.GetColumn(txCtx, card.ColumnID); err != nil {
				return opError("column", card.ColumnID, "move card from", err)
			}
		}
		res.BoardID = card.BoardID
		res.State = MoveValidated

		res.State = MoveComputing
		src, err := cardIDs(txCtx, tx, source.ID)
		if err != nil {
			return err
		}
		from := ordering.IndexOf(src, card.ID)
		if from < 0 {
			return notFoundError("card", card.ID, "move")
		}
		var positions []store.CardPosition
		to := 0
		if source.ID == target.ID {
			next, err := ordering.Reorder(src, card.ID, req.Order)
			if err != nil {
				return opError("card", card.ID, "move", err)
			}
			to = ordering.IndexOf(next, card.ID)
			positions = renumber(positions, target.ID, next)
		} else {
			dst, err := cardIDs(txCtx, tx, target.ID)
			if err != nil {
				return err
			}
			nextSrc, nextDst, err := ordering.Transfer(src, dst, card.ID, req.Order)
			if err != nil {
				return opError("card", card.ID, "move", err)
			}
			to = ordering.IndexOf(nextDst, card.ID)
			positions = renumber(positions, source.ID, nextSrc)
			positions = renumber(positions, target.ID, nextDst)
		}

		res.State = MovePersisting
		if err := tx.SetCardPositions(txCtx, positions); err != nil {
			return opError("card", card.ID, "move", err)
		}

		rec := &recorder{tx: tx, boardID: card.BoardID, actor: actor, now: r.opts.Now}
		if err := rec.record(txCtx, card.ID, ActionCardMoved, MoveDetails{
			FromColumnID:    source.ID,
			FromColumnTitle: source.Title,
			FromOrder:       from,
			ToColumnID:      target.ID,
			ToColumnTitle:   target.Title,
			ToOrder:         to,
		}); err != nil {
			return err
		}
		res.State = MoveLogged

		res.FromColumnID, res.FromOrder = source.ID, from
		res.ToColumnID, res.ToOrder = target.ID, to
		return nil
	})
	if err != nil {
		return err
	}
	res.State = MoveDone
	return nil
}

func cardIDs(ctx context.Context, tx store.Tx, columnID string) ([]string, error) {
	cards, err := tx.ListCards(ctx, columnID)
	if err != nil {
		return nil, opError("column", columnID, "list cards", err)
	}
	ids := make([]string, len(cards))
	for i, card := range cards {
		ids[i] = card.ID
	}
	return ids, nil
}

// renumber writes every card of seq, moved or not.
func renumber(positions []store.CardPosition, columnID string, seq []string) []store.CardPosition {
	for i, id := range seq {
		positions = append(positions, store.CardPosition{CardID: id, ColumnID: columnID, Order: i})
	}
	return positions
}
