package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MemoryStore keeps the whole dataset in process. Transactions run one at a
// time against a private copy of the state which replaces the live state on
// commit, so an aborted transaction leaves nothing behind.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type memState struct {
	users       map[string]User
	boards      map[string]Board
	memberships map[string]Membership
	columns     map[string]Column
	cards       map[string]Card
	labels      map[string]Label
	comments    map[string]Comment
	attachments map[string]Attachment
	activity    []ActivityLog
}

func newMemState() *memState {
	return &memState{
		users:       make(map[string]User),
		boards:      make(map[string]Board),
		memberships: make(map[string]Membership),
		columns:     make(map[string]Column),
		cards:       make(map[string]Card),
		labels:      make(map[string]Label),
		comments:    make(map[string]Comment),
		attachments: make(map[string]Attachment),
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.boards {
		out.boards[k] = v
	}
	for k, v := range s.memberships {
		out.memberships[k] = v
	}
	for k, v := range s.columns {
		out.columns[k] = v
	}
	for k, v := range s.cards {
		v.LabelIDs = append([]string(nil), v.LabelIDs...)
		v.AssigneeIDs = append([]string(nil), v.AssigneeIDs...)
		out.cards[k] = v
	}
	for k, v := range s.labels {
		out.labels[k] = v
	}
	for k, v := range s.comments {
		out.comments[k] = v
	}
	for k, v := range s.attachments {
		out.attachments[k] = v
	}
	out.activity = append([]ActivityLog(nil), s.activity...)
	return out
}

// checkOrders mirrors the deferred unique constraints on sort order that
// Postgres evaluates at commit.
func (s *memState) checkOrders() error {
	columnSlots := make(map[string]string)
	for _, column := range s.columns {
		key := fmt.Sprintf("%s/%d", column.BoardID, column.Order)
		if other, ok := columnSlots[key]; ok {
			return fmt.Errorf("columns %s and %s share order %d: %w", other, column.ID, column.Order, ErrDuplicate)
		}
		columnSlots[key] = column.ID
	}
	cardSlots := make(map[string]string)
	for _, card := range s.cards {
		key := fmt.Sprintf("%s/%d", card.ColumnID, card.Order)
		if other, ok := cardSlots[key]; ok {
			return fmt.Errorf("cards %s and %s share order %d: %w", other, card.ID, card.Order, ErrDuplicate)
		}
		cardSlots[key] = card.ID
	}
	return nil
}

func membershipKey(boardID, userID string) string {
	return boardID + "\x00" + userID
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// AddUser registers a user outside any transaction.
func (m *MemoryStore) AddUser(user User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now()
	}
	m.state.users[user.ID] = user
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	work := m.state.clone()
	if err := fn(&memTx{state: work, now: m.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	if err := work.checkOrders(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	m.state = work
	return nil
}

func (m *MemoryStore) Snapshot(ctx context.Context, boardID string) (BoardSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	board, ok := m.state.boards[boardID]
	if !ok {
		return BoardSnapshot{}, fmt.Errorf("read board %s: %w", boardID, ErrNotFound)
	}
	snap := BoardSnapshot{Board: board, Cards: make(map[string][]Card)}
	tx := &memTx{state: m.state, now: m.now}
	snap.Columns, _ = tx.ListColumns(ctx, boardID)
	for _, column := range snap.Columns {
		cards, _ := tx.ListCards(ctx, column.ID)
		if len(cards) > 0 {
			snap.Cards[column.ID] = cards
		}
	}
	for _, label := range m.state.labels {
		if label.BoardID == boardID {
			snap.Labels = append(snap.Labels, label)
		}
	}
	sort.Slice(snap.Labels, func(i, j int) bool { return snap.Labels[i].Name < snap.Labels[j].Name })
	for _, membership := range m.state.memberships {
		if membership.BoardID == boardID {
			snap.Memberships = append(snap.Memberships, membership)
		}
	}
	sort.Slice(snap.Memberships, func(i, j int) bool {
		a, b := snap.Memberships[i], snap.Memberships[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.UserID < b.UserID
	})
	return snap, nil
}

func (m *MemoryStore) ListActivity(_ context.Context, filter ActivityFilter) ([]ActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items := make([]ActivityLog, 0)
	for i := len(m.state.activity) - 1; i >= 0 && len(items) < limit; i-- {
		entry := m.state.activity[i]
		if entry.BoardID != filter.BoardID {
			continue
		}
		if filter.CardID != "" && entry.CardID != filter.CardID {
			continue
		}
		if filter.Before != "" && entry.ID >= filter.Before {
			continue
		}
		items = append(items, entry)
	}
	return items, nil
}

func (m *MemoryStore) ListCardsByIDs(_ context.Context, cardIDs []string) ([]Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]Card, 0, len(cardIDs))
	for _, id := range cardIDs {
		if card, ok := m.state.cards[id]; ok {
			items = append(items, card)
		}
	}
	return items, nil
}

type memTx struct {
	state *memState
	now   func() time.Time
}

func (t *memTx) EnsureUser(_ context.Context, user User) error {
	if _, ok := t.state.users[user.ID]; ok {
		return nil
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = t.now()
	}
	t.state.users[user.ID] = user
	return nil
}

func (t *memTx) InsertBoard(_ context.Context, board Board) error {
	if _, ok := t.state.boards[board.ID]; ok {
		return fmt.Errorf("insert board %s: %w", board.ID, ErrDuplicate)
	}
	if _, ok := t.state.users[board.OwnerID]; !ok {
		return fmt.Errorf("insert board owner %s: %w", board.OwnerID, ErrNotFound)
	}
	if board.Theme == "" {
		board.Theme = ThemeLight
	}
	board.CreatedAt = t.now()
	board.UpdatedAt = board.CreatedAt
	t.state.boards[board.ID] = board
	return nil
}

func (t *memTx) LockBoard(_ context.Context, boardID string) (Board, error) {
	board, ok := t.state.boards[boardID]
	if !ok {
		return Board{}, fmt.Errorf("lock board %s: %w", boardID, ErrNotFound)
	}
	return board, nil
}

func (t *memTx) UpdateBoard(_ context.Context, boardID string, fields BoardFields) error {
	board, ok := t.state.boards[boardID]
	if !ok {
		return fmt.Errorf("update board %s: %w", boardID, ErrNotFound)
	}
	if fields.Empty() {
		return nil
	}
	if fields.Title != nil {
		board.Title = *fields.Title
	}
	if fields.Theme != nil {
		board.Theme = *fields.Theme
	}
	if fields.IsPublic != nil {
		board.IsPublic = *fields.IsPublic
	}
	board.UpdatedAt = t.now()
	t.state.boards[boardID] = board
	return nil
}

func (t *memTx) InsertMembership(_ context.Context, membership Membership) error {
	if _, ok := t.state.boards[membership.BoardID]; !ok {
		return fmt.Errorf("insert membership board %s: %w", membership.BoardID, ErrNotFound)
	}
	if _, ok := t.state.users[membership.UserID]; !ok {
		return fmt.Errorf("insert membership user %s: %w", membership.UserID, ErrNotFound)
	}
	key := membershipKey(membership.BoardID, membership.UserID)
	if existing, ok := t.state.memberships[key]; ok {
		membership.CreatedAt = existing.CreatedAt
	} else {
		membership.CreatedAt = t.now()
	}
	t.state.memberships[key] = membership
	return nil
}

func (t *memTx) GetMembership(_ context.Context, boardID, userID string) (Membership, error) {
	membership, ok := t.state.memberships[membershipKey(boardID, userID)]
	if !ok {
		return Membership{}, fmt.Errorf("get membership: %w", ErrNotFound)
	}
	return membership, nil
}

func (t *memTx) ListColumns(_ context.Context, boardID string) ([]Column, error) {
	items := make([]Column, 0)
	for _, column := range t.state.columns {
		if column.BoardID == boardID {
			items = append(items, column)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (t *memTx) GetColumn(_ context.Context, columnID string) (Column, error) {
	column, ok := t.state.columns[columnID]
	if !ok {
		return Column{}, fmt.Errorf("get column %s: %w", columnID, ErrNotFound)
	}
	return column, nil
}

func (t *memTx) InsertColumn(_ context.Context, column Column) error {
	if _, ok := t.state.columns[column.ID]; ok {
		return fmt.Errorf("insert column %s: %w", column.ID, ErrDuplicate)
	}
	if _, ok := t.state.boards[column.BoardID]; !ok {
		return fmt.Errorf("insert column board %s: %w", column.BoardID, ErrNotFound)
	}
	column.CreatedAt = t.now()
	column.UpdatedAt = column.CreatedAt
	t.state.columns[column.ID] = column
	return nil
}

func (t *memTx) UpdateColumn(_ context.Context, columnID string, fields ColumnFields) error {
	column, ok := t.state.columns[columnID]
	if !ok {
		return fmt.Errorf("update column %s: %w", columnID, ErrNotFound)
	}
	if fields.Title != nil {
		column.Title = *fields.Title
	}
	if fields.Width != nil {
		column.Width = *fields.Width
	}
	if fields.Order != nil {
		column.Order = *fields.Order
	}
	column.UpdatedAt = t.now()
	t.state.columns[columnID] = column
	return nil
}

func (t *memTx) DeleteColumn(ctx context.Context, columnID string) error {
	if _, ok := t.state.columns[columnID]; !ok {
		return fmt.Errorf("delete column %s: %w", columnID, ErrNotFound)
	}
	for id, card := range t.state.cards {
		if card.ColumnID == columnID {
			if err := t.DeleteCard(ctx, id); err != nil {
				return err
			}
		}
	}
	delete(t.state.columns, columnID)
	return nil
}

func (t *memTx) SetColumnOrders(_ context.Context, positions []ColumnPosition) error {
	for _, p := range positions {
		column, ok := t.state.columns[p.ColumnID]
		if !ok {
			return fmt.Errorf("set column %s order: %w", p.ColumnID, ErrNotFound)
		}
		column.Order = p.Order
		column.UpdatedAt = t.now()
		t.state.columns[p.ColumnID] = column
	}
	return nil
}

func (t *memTx) ListCards(_ context.Context, columnID string) ([]Card, error) {
	items := make([]Card, 0)
	for _, card := range t.state.cards {
		if card.ColumnID == columnID {
			card.LabelIDs = append([]string(nil), card.LabelIDs...)
			card.AssigneeIDs = append([]string(nil), card.AssigneeIDs...)
			items = append(items, card)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (t *memTx) GetCard(_ context.Context, cardID string) (Card, error) {
	card, ok := t.state.cards[cardID]
	if !ok {
		return Card{}, fmt.Errorf("get card %s: %w", cardID, ErrNotFound)
	}
	card.LabelIDs = append([]string(nil), card.LabelIDs...)
	card.AssigneeIDs = append([]string(nil), card.AssigneeIDs...)
	return card, nil
}

// columnOnBoard enforces the composite (column, board) reference cards carry.
func (t *memTx) columnOnBoard(columnID, boardID string) error {
	column, ok := t.state.columns[columnID]
	if !ok || column.BoardID != boardID {
		return fmt.Errorf("column %s on board %s: %w", columnID, boardID, ErrNotFound)
	}
	return nil
}

func (t *memTx) InsertCard(_ context.Context, card Card) error {
	if _, ok := t.state.cards[card.ID]; ok {
		return fmt.Errorf("insert card %s: %w", card.ID, ErrDuplicate)
	}
	if err := t.columnOnBoard(card.ColumnID, card.BoardID); err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	if card.Priority == "" {
		card.Priority = PriorityMedium
	}
	card.LabelIDs = nil
	card.AssigneeIDs = nil
	card.CreatedAt = t.now()
	card.UpdatedAt = card.CreatedAt
	t.state.cards[card.ID] = card
	return nil
}

func (t *memTx) UpdateCard(_ context.Context, cardID string, fields CardFields) error {
	card, ok := t.state.cards[cardID]
	if !ok {
		return fmt.Errorf("update card %s: %w", cardID, ErrNotFound)
	}
	if fields.Title != nil {
		card.Title = *fields.Title
	}
	if fields.Description != nil {
		card.Description = *fields.Description
	}
	if fields.Priority != nil {
		card.Priority = *fields.Priority
	}
	if fields.ClearWeight {
		card.Weight = nil
	} else if fields.Weight != nil {
		w := *fields.Weight
		card.Weight = &w
	}
	if fields.ClearDueDate {
		card.DueDate = nil
	} else if fields.DueDate != nil {
		d := *fields.DueDate
		card.DueDate = &d
	}
	if fields.ColumnID != nil {
		if err := t.columnOnBoard(*fields.ColumnID, card.BoardID); err != nil {
			return fmt.Errorf("update card %s: %w", cardID, err)
		}
		card.ColumnID = *fields.ColumnID
	}
	if fields.Order != nil {
		card.Order = *fields.Order
	}
	card.UpdatedAt = t.now()
	t.state.cards[cardID] = card
	return nil
}

func (t *memTx) DeleteCard(_ context.Context, cardID string) error {
	if _, ok := t.state.cards[cardID]; !ok {
		return fmt.Errorf("delete card %s: %w", cardID, ErrNotFound)
	}
	for id, comment := range t.state.comments {
		if comment.CardID == cardID {
			delete(t.state.comments, id)
		}
	}
	for id, attachment := range t.state.attachments {
		if attachment.CardID == cardID {
			delete(t.state.attachments, id)
		}
	}
	delete(t.state.cards, cardID)
	return nil
}

func (t *memTx) SetCardPositions(_ context.Context, positions []CardPosition) error {
	for _, p := range positions {
		card, ok := t.state.cards[p.CardID]
		if !ok {
			return fmt.Errorf("set card %s position: %w", p.CardID, ErrNotFound)
		}
		if err := t.columnOnBoard(p.ColumnID, card.BoardID); err != nil {
			return fmt.Errorf("set card %s position: %w", p.CardID, err)
		}
		card.ColumnID = p.ColumnID
		card.Order = p.Order
		card.UpdatedAt = t.now()
		t.state.cards[p.CardID] = card
	}
	return nil
}

func (t *memTx) SetCardLabels(_ context.Context, cardID string, labelIDs []string) error {
	card, ok := t.state.cards[cardID]
	if !ok {
		return fmt.Errorf("set card %s labels: %w", cardID, ErrNotFound)
	}
	set := make([]string, 0, len(labelIDs))
	seen := make(map[string]bool)
	for _, labelID := range labelIDs {
		label, ok := t.state.labels[labelID]
		if !ok || label.BoardID != card.BoardID {
			return fmt.Errorf("attach label %s: %w", labelID, ErrNotFound)
		}
		if !seen[labelID] {
			seen[labelID] = true
			set = append(set, labelID)
		}
	}
	sort.Strings(set)
	card.LabelIDs = set
	t.state.cards[cardID] = card
	return nil
}

func (t *memTx) SetCardAssignees(_ context.Context, cardID string, userIDs []string) error {
	card, ok := t.state.cards[cardID]
	if !ok {
		return fmt.Errorf("set card %s assignees: %w", cardID, ErrNotFound)
	}
	set := make([]string, 0, len(userIDs))
	seen := make(map[string]bool)
	for _, userID := range userIDs {
		if _, ok := t.state.users[userID]; !ok {
			return fmt.Errorf("assign user %s: %w", userID, ErrNotFound)
		}
		if !seen[userID] {
			seen[userID] = true
			set = append(set, userID)
		}
	}
	sort.Strings(set)
	card.AssigneeIDs = set
	t.state.cards[cardID] = card
	return nil
}

func (t *memTx) GetLabel(_ context.Context, labelID string) (Label, error) {
	label, ok := t.state.labels[labelID]
	if !ok {
		return Label{}, fmt.Errorf("get label %s: %w", labelID, ErrNotFound)
	}
	return label, nil
}

func (t *memTx) labelNameTaken(boardID, name, exceptID string) bool {
	for _, label := range t.state.labels {
		if label.BoardID == boardID && label.ID != exceptID && label.Name == name {
			return true
		}
	}
	return false
}

func (t *memTx) InsertLabel(_ context.Context, label Label) error {
	if _, ok := t.state.labels[label.ID]; ok {
		return fmt.Errorf("insert label %s: %w", label.ID, ErrDuplicate)
	}
	if _, ok := t.state.boards[label.BoardID]; !ok {
		return fmt.Errorf("insert label board %s: %w", label.BoardID, ErrNotFound)
	}
	if t.labelNameTaken(label.BoardID, label.Name, "") {
		return fmt.Errorf("insert label name %q: %w", label.Name, ErrDuplicate)
	}
	label.CreatedAt = t.now()
	t.state.labels[label.ID] = label
	return nil
}

func (t *memTx) UpdateLabel(_ context.Context, labelID string, fields LabelFields) error {
	label, ok := t.state.labels[labelID]
	if !ok {
		return fmt.Errorf("update label %s: %w", labelID, ErrNotFound)
	}
	if fields.Name != nil {
		if t.labelNameTaken(label.BoardID, *fields.Name, labelID) {
			return fmt.Errorf("update label name %q: %w", *fields.Name, ErrDuplicate)
		}
		label.Name = *fields.Name
	}
	if fields.Color != nil {
		label.Color = *fields.Color
	}
	t.state.labels[labelID] = label
	return nil
}

func (t *memTx) DetachLabel(_ context.Context, labelID string) (int64, error) {
	var detached int64
	for id, card := range t.state.cards {
		kept := card.LabelIDs[:0:0]
		for _, l := range card.LabelIDs {
			if l != labelID {
				kept = append(kept, l)
			}
		}
		if len(kept) != len(card.LabelIDs) {
			detached += int64(len(card.LabelIDs) - len(kept))
			card.LabelIDs = kept
			t.state.cards[id] = card
		}
	}
	return detached, nil
}

// DeleteLabel refuses to orphan card associations, like the foreign key on
// card_labels does.
func (t *memTx) DeleteLabel(_ context.Context, labelID string) error {
	if _, ok := t.state.labels[labelID]; !ok {
		return fmt.Errorf("delete label %s: %w", labelID, ErrNotFound)
	}
	for _, card := range t.state.cards {
		for _, l := range card.LabelIDs {
			if l == labelID {
				return fmt.Errorf("delete label %s: still attached to card %s", labelID, card.ID)
			}
		}
	}
	delete(t.state.labels, labelID)
	return nil
}

func (t *memTx) GetComment(_ context.Context, commentID string) (Comment, error) {
	comment, ok := t.state.comments[commentID]
	if !ok {
		return Comment{}, fmt.Errorf("get comment %s: %w", commentID, ErrNotFound)
	}
	return comment, nil
}

func (t *memTx) InsertComment(_ context.Context, comment Comment) error {
	if _, ok := t.state.comments[comment.ID]; ok {
		return fmt.Errorf("insert comment %s: %w", comment.ID, ErrDuplicate)
	}
	if _, ok := t.state.cards[comment.CardID]; !ok {
		return fmt.Errorf("insert comment card %s: %w", comment.CardID, ErrNotFound)
	}
	comment.CreatedAt = t.now()
	comment.UpdatedAt = comment.CreatedAt
	t.state.comments[comment.ID] = comment
	return nil
}

func (t *memTx) UpdateComment(_ context.Context, commentID string, fields CommentFields) error {
	comment, ok := t.state.comments[commentID]
	if !ok {
		return fmt.Errorf("update comment %s: %w", commentID, ErrNotFound)
	}
	if fields.Content != nil {
		comment.Content = *fields.Content
	}
	comment.UpdatedAt = t.now()
	t.state.comments[commentID] = comment
	return nil
}

func (t *memTx) DeleteComment(_ context.Context, commentID string) error {
	if _, ok := t.state.comments[commentID]; !ok {
		return fmt.Errorf("delete comment %s: %w", commentID, ErrNotFound)
	}
	delete(t.state.comments, commentID)
	return nil
}

func (t *memTx) GetAttachment(_ context.Context, attachmentID string) (Attachment, error) {
	attachment, ok := t.state.attachments[attachmentID]
	if !ok {
		return Attachment{}, fmt.Errorf("get attachment %s: %w", attachmentID, ErrNotFound)
	}
	return attachment, nil
}

func (t *memTx) InsertAttachment(_ context.Context, attachment Attachment) error {
	if _, ok := t.state.attachments[attachment.ID]; ok {
		return fmt.Errorf("insert attachment %s: %w", attachment.ID, ErrDuplicate)
	}
	if _, ok := t.state.cards[attachment.CardID]; !ok {
		return fmt.Errorf("insert attachment card %s: %w", attachment.CardID, ErrNotFound)
	}
	if attachment.Type == "" {
		attachment.Type = "link"
	}
	attachment.CreatedAt = t.now()
	t.state.attachments[attachment.ID] = attachment
	return nil
}

func (t *memTx) UpdateAttachment(_ context.Context, attachmentID string, fields AttachmentFields) error {
	attachment, ok := t.state.attachments[attachmentID]
	if !ok {
		return fmt.Errorf("update attachment %s: %w", attachmentID, ErrNotFound)
	}
	if fields.Name != nil {
		attachment.Name = *fields.Name
	}
	if fields.URL != nil {
		attachment.URL = *fields.URL
	}
	if fields.Type != nil {
		attachment.Type = *fields.Type
	}
	t.state.attachments[attachmentID] = attachment
	return nil
}

func (t *memTx) DeleteAttachment(_ context.Context, attachmentID string) error {
	if _, ok := t.state.attachments[attachmentID]; !ok {
		return fmt.Errorf("delete attachment %s: %w", attachmentID, ErrNotFound)
	}
	delete(t.state.attachments, attachmentID)
	return nil
}

func (t *memTx) InsertActivity(_ context.Context, entry ActivityLog) error {
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage(`{}`)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	t.state.activity = append(t.state.activity, entry)
	return nil
}
