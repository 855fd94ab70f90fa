package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kanban/api/internal/ordering"
	"kanban/api/internal/patch"
	"kanban/api/internal/store"
)

const defaultColumnWidth = 272

// Result lists what a successful Apply touched, for callers that re-read or
// re-index. Moved siblings are not listed.
type Result struct {
	BoardID      string
	BoardChanged bool
	Columns      []string
	Cards        []string
	DeletedCards []string
	Labels       []string
	Comments     []string
	Attachments  []string
	Activity     int
}

// Executor applies a ChangeSet in one transaction. It does not retry: a
// write conflict is reported to the caller as is.
type Executor struct {
	store store.Store
	opts  Options
}

func NewExecutor(s store.Store, opts Options) *Executor {
	return &Executor{store: s, opts: opts.withDefaults()}
}

// Apply writes cs to the board or writes nothing. An empty ChangeSet
// succeeds without opening a transaction.
func (e *Executor) Apply(ctx context.Context, boardID, actor string, cs patch.ChangeSet) (Result, error) {
	if cs.Empty() {
		return Result{BoardID: boardID}, nil
	}

	started := time.Now()
	txCtx, cancel := context.WithTimeout(ctx, e.opts.TxTimeout)
	defer cancel()

	var res Result
	err := e.store.InTx(txCtx, func(tx store.Tx) error {
		a := &applier{
			tx:       tx,
			boardID:  boardID,
			res:      &Result{BoardID: boardID},
			rec:      &recorder{tx: tx, boardID: boardID, actor: actor, now: e.opts.Now},
			cards:    make(map[string][]string),
			cardPos:  make(map[string]int),
			colOrder: make(map[string]int),
		}
		if err := a.run(txCtx, cs); err != nil {
			return err
		}
		a.res.Activity = a.rec.count
		res = *a.res
		return nil
	})
	if err != nil {
		err = txError(txCtx, "apply", err)
		e.opts.Metrics.observePatch(started, err)
		e.opts.Logger.InfoContext(ctx, "board patch rejected",
			"board_id", boardID,
			"category", CategoryOf(err),
			"error", err)
		return Result{}, err
	}
	e.opts.Metrics.observePatch(started, nil)
	e.opts.Logger.DebugContext(ctx, "board patch applied",
		"board_id", boardID,
		"intents", cs.Size(),
		"activity", res.Activity,
		"duration", time.Since(started))
	return res, nil
}

// txError turns a transaction that outlived its deadline into an internal
// failure and attaches an operation to bare store errors.
func txError(txCtx context.Context, op string, err error) error {
	if errors.Is(txCtx.Err(), context.DeadlineExceeded) {
		return &Error{Category: CategoryInternal, Op: op, Err: fmt.Errorf("transaction timed out: %w", err)}
	}
	return opError("", "", op, err)
}

type applier struct {
	tx      store.Tx
	boardID string
	res     *Result
	rec     *recorder

	columns  []string
	colOrder map[string]int
	// cards caches each touched column's card sequence; cardPos holds the
	// order value currently stored for each cached card.
	cards   map[string][]string
	cardPos map[string]int
}

func (a *applier) run(ctx context.Context, cs patch.ChangeSet) error {
	if _, err := a.tx.LockBoard(ctx, a.boardID); err != nil {
		return opError("board", a.boardID, "lock", err)
	}
	if cs.Board != nil && !cs.Board.Empty() {
		if err := a.tx.UpdateBoard(ctx, a.boardID, *cs.Board); err != nil {
			return opError("board", a.boardID, "update", err)
		}
		a.res.BoardChanged = true
	}

	if len(cs.Columns) > 0 {
		if err := a.loadColumns(ctx); err != nil {
			return err
		}
	}
	for _, op := range cs.Columns {
		if err := a.column(ctx, op); err != nil {
			return err
		}
	}
	for _, op := range cs.Cards {
		if err := a.card(ctx, op); err != nil {
			return err
		}
	}
	for _, op := range cs.Labels {
		if err := a.label(ctx, op); err != nil {
			return err
		}
	}
	for _, op := range cs.Comments {
		if err := a.comment(ctx, op); err != nil {
			return err
		}
	}
	for _, op := range cs.Attachments {
		if err := a.attachment(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) loadColumns(ctx context.Context) error {
	columns, err := a.tx.ListColumns(ctx, a.boardID)
	if err != nil {
		return opError("board", a.boardID, "list columns", err)
	}
	a.columns = make([]string, len(columns))
	for i, column := range columns {
		a.columns[i] = column.ID
		a.colOrder[column.ID] = column.Order
	}
	// Heal a sequence that is not dense before building on it.
	return a.writeColumnOrders(ctx)
}

// writeColumnOrders stores the index of every column whose order differs.
func (a *applier) writeColumnOrders(ctx context.Context) error {
	var changed []store.ColumnPosition
	for i, id := range a.columns {
		if current, ok := a.colOrder[id]; !ok || current != i {
			changed = append(changed, store.ColumnPosition{ColumnID: id, Order: i})
			a.colOrder[id] = i
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if err := a.tx.SetColumnOrders(ctx, changed); err != nil {
		return opError("board", a.boardID, "reorder columns", err)
	}
	return nil
}

func (a *applier) boardColumn(ctx context.Context, columnID, op string) (store.Column, error) {
	column, err := a.tx.GetColumn(ctx, columnID)
	if err != nil {
		return store.Column{}, opError("column", columnID, op, err)
	}
	if column.BoardID != a.boardID {
		return store.Column{}, notFoundError("column", columnID, op)
	}
	return column, nil
}

func (a *applier) column(ctx context.Context, op patch.Op[store.ColumnFields]) error {
	switch op.Kind {
	case patch.KindCreate:
		pos := len(a.columns)
		if op.Fields.Order != nil {
			pos = ordering.Clamp(*op.Fields.Order, len(a.columns))
		}
		column := store.Column{ID: op.ID, BoardID: a.boardID, Width: defaultColumnWidth, Order: pos}
		if op.Fields.Title != nil {
			column.Title = *op.Fields.Title
		}
		if op.Fields.Width != nil {
			column.Width = *op.Fields.Width
		}
		if err := a.tx.InsertColumn(ctx, column); err != nil {
			return opError("column", op.ID, "create", err)
		}
		a.columns = ordering.Insert(a.columns, op.ID, pos)
		a.colOrder[op.ID] = pos
		a.res.Columns = append(a.res.Columns, op.ID)
		return a.writeColumnOrders(ctx)

	case patch.KindUpdate:
		if _, err := a.boardColumn(ctx, op.ID, "update"); err != nil {
			return err
		}
		fields := op.Fields
		fields.Order = nil
		if fields.Title != nil || fields.Width != nil {
			if err := a.tx.UpdateColumn(ctx, op.ID, fields); err != nil {
				return opError("column", op.ID, "update", err)
			}
		}
		if op.Fields.Order != nil {
			next, err := ordering.Reorder(a.columns, op.ID, *op.Fields.Order)
			if err != nil {
				return opError("column", op.ID, "reorder", err)
			}
			a.columns = next
			if err := a.writeColumnOrders(ctx); err != nil {
				return err
			}
		}
		a.res.Columns = append(a.res.Columns, op.ID)
		return nil

	case patch.KindDelete:
		if _, err := a.boardColumn(ctx, op.ID, "delete"); err != nil {
			return err
		}
		cards, err := a.tx.ListCards(ctx, op.ID)
		if err != nil {
			return opError("column", op.ID, "delete", err)
		}
		if err := a.tx.DeleteColumn(ctx, op.ID); err != nil {
			return opError("column", op.ID, "delete", err)
		}
		for _, card := range cards {
			a.res.DeletedCards = append(a.res.DeletedCards, card.ID)
			delete(a.cardPos, card.ID)
		}
		delete(a.cards, op.ID)
		rest, _, err := ordering.Remove(a.columns, op.ID)
		if err != nil {
			return opError("column", op.ID, "delete", err)
		}
		a.columns = rest
		delete(a.colOrder, op.ID)
		a.res.Columns = append(a.res.Columns, op.ID)
		return a.writeColumnOrders(ctx)
	}
	return validationError("column", op.ID, string(op.Kind), "unknown intent")
}

// cardSequence returns the cached card order of a column, reading it on
// first use.
func (a *applier) cardSequence(ctx context.Context, columnID string) ([]string, error) {
	if seq, ok := a.cards[columnID]; ok {
		return seq, nil
	}
	cards, err := a.tx.ListCards(ctx, columnID)
	if err != nil {
		return nil, opError("column", columnID, "list cards", err)
	}
	seq := make([]string, len(cards))
	for i, card := range cards {
		seq[i] = card.ID
		a.cardPos[card.ID] = card.Order
	}
	a.cards[columnID] = seq
	return seq, nil
}

// writeCardOrders stores seq as the column's order, writing only rows
// whose column or order changed.
func (a *applier) writeCardOrders(ctx context.Context, columnID string, seq []string, moved string) error {
	var changed []store.CardPosition
	for i, id := range seq {
		if current, ok := a.cardPos[id]; !ok || current != i || id == moved {
			changed = append(changed, store.CardPosition{CardID: id, ColumnID: columnID, Order: i})
			a.cardPos[id] = i
		}
	}
	a.cards[columnID] = seq
	if len(changed) == 0 {
		return nil
	}
	if err := a.tx.SetCardPositions(ctx, changed); err != nil {
		return opError("column", columnID, "reorder cards", err)
	}
	return nil
}

func (a *applier) boardCard(ctx context.Context, cardID, op string) (store.Card, error) {
	card, err := a.tx.GetCard(ctx, cardID)
	if err != nil {
		return store.Card{}, opError("card", cardID, op, err)
	}
	if card.BoardID != a.boardID {
		return store.Card{}, notFoundError("card", cardID, op)
	}
	return card, nil
}

func (a *applier) card(ctx context.Context, op patch.Op[store.CardFields]) error {
	switch op.Kind {
	case patch.KindCreate:
		return a.createCard(ctx, op)
	case patch.KindUpdate:
		return a.updateCard(ctx, op)
	case patch.KindDelete:
		card, err := a.boardCard(ctx, op.ID, "delete")
		if err != nil {
			return err
		}
		seq, err := a.cardSequence(ctx, card.ColumnID)
		if err != nil {
			return err
		}
		if err := a.tx.DeleteCard(ctx, op.ID); err != nil {
			return opError("card", op.ID, "delete", err)
		}
		rest, _, err := ordering.Remove(seq, op.ID)
		if err != nil {
			return opError("card", op.ID, "delete", err)
		}
		delete(a.cardPos, op.ID)
		if err := a.writeCardOrders(ctx, card.ColumnID, rest, ""); err != nil {
			return err
		}
		a.res.DeletedCards = append(a.res.DeletedCards, op.ID)
		return a.rec.record(ctx, op.ID, ActionCardDeleted, map[string]any{
			"title":    card.Title,
			"columnId": card.ColumnID,
		})
	}
	return validationError("card", op.ID, string(op.Kind), "unknown intent")
}

func (a *applier) createCard(ctx context.Context, op patch.Op[store.CardFields]) error {
	f := op.Fields
	if f.ColumnID == nil {
		return validationError("card", op.ID, "create", "columnId is required")
	}
	if _, err := a.boardColumn(ctx, *f.ColumnID, "create card in"); err != nil {
		return err
	}
	seq, err := a.cardSequence(ctx, *f.ColumnID)
	if err != nil {
		return err
	}
	pos := len(seq)
	if f.Order != nil {
		pos = ordering.Clamp(*f.Order, len(seq))
	}

	card := store.Card{
		ID:       op.ID,
		BoardID:  a.boardID,
		ColumnID: *f.ColumnID,
		Priority: store.PriorityMedium,
		Weight:   f.Weight,
		DueDate:  f.DueDate,
		Order:    pos,
	}
	if f.Title != nil {
		card.Title = *f.Title
	}
	if f.Description != nil {
		card.Description = *f.Description
	}
	if f.Priority != nil {
		card.Priority = *f.Priority
	}
	if err := a.tx.InsertCard(ctx, card); err != nil {
		return opError("card", op.ID, "create", err)
	}
	a.cardPos[op.ID] = pos
	if err := a.writeCardOrders(ctx, card.ColumnID, ordering.Insert(seq, op.ID, pos), ""); err != nil {
		return err
	}
	if err := a.cardRelations(ctx, op.ID, f); err != nil {
		return err
	}
	a.res.Cards = append(a.res.Cards, op.ID)
	return a.rec.record(ctx, op.ID, ActionCardCreated, map[string]any{
		"title":    card.Title,
		"columnId": card.ColumnID,
		"order":    pos,
	})
}

func (a *applier) updateCard(ctx context.Context, op patch.Op[store.CardFields]) error {
	f := op.Fields
	card, err := a.boardCard(ctx, op.ID, "update")
	if err != nil {
		return err
	}

	changed := changedCardFields(f)
	if len(changed) == 0 {
		return nil
	}
	if f.HasScalars() {
		scalars := f
		scalars.ColumnID, scalars.Order, scalars.Labels, scalars.Assignees = nil, nil, nil, nil
		if err := a.tx.UpdateCard(ctx, op.ID, scalars); err != nil {
			return opError("card", op.ID, "update", err)
		}
	}

	details := map[string]any{"fields": changed}
	if f.Moves() {
		move, err := a.relocate(ctx, card, f.ColumnID, f.Order)
		if err != nil {
			return err
		}
		if move != nil {
			details["move"] = move
		} else if !f.HasScalars() && f.Labels == nil && f.Assignees == nil {
			// position already satisfied
			return nil
		}
	}
	if err := a.cardRelations(ctx, op.ID, f); err != nil {
		return err
	}
	a.res.Cards = append(a.res.Cards, op.ID)
	return a.rec.record(ctx, op.ID, ActionCardUpdated, details)
}

// relocate moves a card inside the patch transaction with the same
// ordering functions the Relocator uses. It returns nil when the card
// stays where it is.
func (a *applier) relocate(ctx context.Context, card store.Card, columnID *string, order *int) (*MoveDetails, error) {
	target := card.ColumnID
	if columnID != nil {
		target = *columnID
	}
	src, err := a.cardSequence(ctx, card.ColumnID)
	if err != nil {
		return nil, err
	}
	from := ordering.IndexOf(src, card.ID)
	if from < 0 {
		return nil, notFoundError("card", card.ID, "move")
	}

	if target == card.ColumnID {
		if order == nil {
			return nil, nil
		}
		next, err := ordering.Reorder(src, card.ID, *order)
		if err != nil {
			return nil, opError("card", card.ID, "move", err)
		}
		to := ordering.IndexOf(next, card.ID)
		if to == from {
			return nil, nil
		}
		if err := a.writeCardOrders(ctx, target, next, ""); err != nil {
			return nil, err
		}
		return &MoveDetails{FromColumnID: card.ColumnID, FromOrder: from, ToColumnID: target, ToOrder: to}, nil
	}

	if _, err := a.boardColumn(ctx, target, "move card to"); err != nil {
		return nil, err
	}
	dst, err := a.cardSequence(ctx, target)
	if err != nil {
		return nil, err
	}
	pos := len(dst)
	if order != nil {
		pos = *order
	}
	nextSrc, nextDst, err := ordering.Transfer(src, dst, card.ID, pos)
	if err != nil {
		return nil, opError("card", card.ID, "move", err)
	}
	if err := a.writeCardOrders(ctx, card.ColumnID, nextSrc, ""); err != nil {
		return nil, err
	}
	if err := a.writeCardOrders(ctx, target, nextDst, card.ID); err != nil {
		return nil, err
	}
	return &MoveDetails{
		FromColumnID: card.ColumnID,
		FromOrder:    from,
		ToColumnID:   target,
		ToOrder:      ordering.IndexOf(nextDst, card.ID),
	}, nil
}

// cardRelations replaces the label and assignee sets when supplied. Labels
// must live on the card's board and assignees must be board members.
func (a *applier) cardRelations(ctx context.Context, cardID string, f store.CardFields) error {
	if f.Labels != nil {
		for _, labelID := range *f.Labels {
			label, err := a.tx.GetLabel(ctx, labelID)
			if err != nil {
				return opError("label", labelID, "attach", err)
			}
			if label.BoardID != a.boardID {
				return validationError("label", labelID, "attach", "label belongs to another board")
			}
		}
		if err := a.tx.SetCardLabels(ctx, cardID, *f.Labels); err != nil {
			return opError("card", cardID, "set labels", err)
		}
	}
	if f.Assignees != nil {
		for _, userID := range *f.Assignees {
			if _, err := a.tx.GetMembership(ctx, a.boardID, userID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return validationError("assignee", userID, "assign", "user is not a board member")
				}
				return opError("assignee", userID, "assign", err)
			}
		}
		if err := a.tx.SetCardAssignees(ctx, cardID, *f.Assignees); err != nil {
			return opError("card", cardID, "set assignees", err)
		}
	}
	return nil
}

func changedCardFields(f store.CardFields) []string {
	var names []string
	add := func(present bool, name string) {
		if present {
			names = append(names, name)
		}
	}
	add(f.Title != nil, "title")
	add(f.Description != nil, "description")
	add(f.Priority != nil, "priority")
	add(f.Weight != nil || f.ClearWeight, "weight")
	add(f.DueDate != nil || f.ClearDueDate, "dueDate")
	add(f.ColumnID != nil, "columnId")
	add(f.Order != nil, "order")
	add(f.Labels != nil, "labels")
	add(f.Assignees != nil, "assignees")
	return names
}

func (a *applier) label(ctx context.Context, op patch.Op[store.LabelFields]) error {
	switch op.Kind {
	case patch.KindCreate:
		label := store.Label{ID: op.ID, BoardID: a.boardID}
		if op.Fields.Name != nil {
			label.Name = *op.Fields.Name
		}
		if op.Fields.Color != nil {
			label.Color = *op.Fields.Color
		}
		if err := a.tx.InsertLabel(ctx, label); err != nil {
			return labelError(op.ID, "create", err)
		}
	case patch.KindUpdate:
		if err := a.boardLabel(ctx, op.ID, "update"); err != nil {
			return err
		}
		if err := a.tx.UpdateLabel(ctx, op.ID, op.Fields); err != nil {
			return labelError(op.ID, "update", err)
		}
	case patch.KindDelete:
		if err := a.boardLabel(ctx, op.ID, "delete"); err != nil {
			return err
		}
		if _, err := a.tx.DetachLabel(ctx, op.ID); err != nil {
			return opError("label", op.ID, "detach", err)
		}
		if err := a.tx.DeleteLabel(ctx, op.ID); err != nil {
			return opError("label", op.ID, "delete", err)
		}
	default:
		return validationError("label", op.ID, string(op.Kind), "unknown intent")
	}
	a.res.Labels = append(a.res.Labels, op.ID)
	return nil
}

func (a *applier) boardLabel(ctx context.Context, labelID, op string) error {
	label, err := a.tx.GetLabel(ctx, labelID)
	if err != nil {
		return opError("label", labelID, op, err)
	}
	if label.BoardID != a.boardID {
		return notFoundError("label", labelID, op)
	}
	return nil
}

func labelError(labelID, op string, err error) error {
	if errors.Is(err, store.ErrDuplicate) {
		return validationError("label", labelID, op, "label name already used on this board")
	}
	return opError("label", labelID, op, err)
}

func (a *applier) comment(ctx context.Context, op patch.Op[store.CommentFields]) error {
	switch op.Kind {
	case patch.KindCreate:
		if op.Fields.CardID == nil {
			return validationError("comment", op.ID, "create", "cardId is required")
		}
		if _, err := a.boardCard(ctx, *op.Fields.CardID, "comment on"); err != nil {
			return err
		}
		comment := store.Comment{ID: op.ID, CardID: *op.Fields.CardID, AuthorID: a.rec.actor}
		if op.Fields.Content != nil {
			comment.Content = *op.Fields.Content
		}
		if err := a.tx.InsertComment(ctx, comment); err != nil {
			return opError("comment", op.ID, "create", err)
		}
		a.res.Comments = append(a.res.Comments, op.ID)
		return a.rec.record(ctx, comment.CardID, ActionCommentCreated, map[string]any{"commentId": op.ID})

	case patch.KindUpdate, patch.KindDelete:
		comment, err := a.tx.GetComment(ctx, op.ID)
		if err != nil {
			return opError("comment", op.ID, string(op.Kind), err)
		}
		if _, err := a.boardCard(ctx, comment.CardID, string(op.Kind)+" comment on"); err != nil {
			return notFoundError("comment", op.ID, string(op.Kind))
		}
		action := ActionCommentDeleted
		if op.Kind == patch.KindUpdate {
			action = ActionCommentUpdated
			if err := a.tx.UpdateComment(ctx, op.ID, store.CommentFields{Content: op.Fields.Content}); err != nil {
				return opError("comment", op.ID, "update", err)
			}
		} else if err := a.tx.DeleteComment(ctx, op.ID); err != nil {
			return opError("comment", op.ID, "delete", err)
		}
		a.res.Comments = append(a.res.Comments, op.ID)
		return a.rec.record(ctx, comment.CardID, action, map[string]any{"commentId": op.ID})
	}
	return validationError("comment", op.ID, string(op.Kind), "unknown intent")
}

func (a *applier) attachment(ctx context.Context, op patch.Op[store.AttachmentFields]) error {
	switch op.Kind {
	case patch.KindCreate:
		f := op.Fields
		if f.CardID == nil {
			return validationError("attachment", op.ID, "create", "cardId is required")
		}
		if _, err := a.boardCard(ctx, *f.CardID, "attach to"); err != nil {
			return err
		}
		attachment := store.Attachment{ID: op.ID, CardID: *f.CardID, Type: "link"}
		if f.Name != nil {
			attachment.Name = *f.Name
		}
		if f.URL != nil {
			attachment.URL = *f.URL
		}
		if f.Type != nil {
			attachment.Type = *f.Type
		}
		if err := a.tx.InsertAttachment(ctx, attachment); err != nil {
			return opError("attachment", op.ID, "create", err)
		}
		a.res.Attachments = append(a.res.Attachments, op.ID)
		return a.rec.record(ctx, attachment.CardID, ActionAttachmentAdded, map[string]any{
			"attachmentId": op.ID,
			"name":         attachment.Name,
			"type":         attachment.Type,
		})

	case patch.KindUpdate, patch.KindDelete:
		attachment, err := a.tx.GetAttachment(ctx, op.ID)
		if err != nil {
			return opError("attachment", op.ID, string(op.Kind), err)
		}
		if _, err := a.boardCard(ctx, attachment.CardID, string(op.Kind)+" attachment on"); err != nil {
			return notFoundError("attachment", op.ID, string(op.Kind))
		}
		action := ActionAttachmentRemoved
		if op.Kind == patch.KindUpdate {
			action = ActionAttachmentUpdated
			fields := op.Fields
			fields.CardID = nil
			if err := a.tx.UpdateAttachment(ctx, op.ID, fields); err != nil {
				return opError("attachment", op.ID, "update", err)
			}
		} else if err := a.tx.DeleteAttachment(ctx, op.ID); err != nil {
			return opError("attachment", op.ID, "delete", err)
		}
		a.res.Attachments = append(a.res.Attachments, op.ID)
		return a.rec.record(ctx, attachment.CardID, action, map[string]any{
			"attachmentId": op.ID,
			"name":         attachment.Name,
		})
	}
	return validationError("attachment", op.ID, string(op.Kind), "unknown intent")
}
