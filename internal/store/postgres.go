package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a SERIALIZABLE transaction. The transaction commits
// only when fn returns nil; serialization failures surface as
// ErrWriteConflict.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

// Snapshot reads a whole board in one read-only transaction.
func (s *PostgresStore) Snapshot(ctx context.Context, boardID string) (BoardSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return BoardSnapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := BoardSnapshot{Cards: make(map[string][]Card)}
	err = tx.QueryRowContext(ctx, `
		SELECT id, title, theme, is_public, owner_id, created_at, updated_at
		FROM boards
		WHERE id=$1
	`, boardID).Scan(&snap.Board.ID, &snap.Board.Title, &snap.Board.Theme, &snap.Board.IsPublic, &snap.Board.OwnerID, &snap.Board.CreatedAt, &snap.Board.UpdatedAt)
	if err != nil {
		return BoardSnapshot{}, fmt.Errorf("read board: %w", classify(err))
	}

	pgt := &pgTx{tx: tx}
	if snap.Columns, err = pgt.ListColumns(ctx, boardID); err != nil {
		return BoardSnapshot{}, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE board_id=$1
		ORDER BY column_id, sort_order, id
	`, boardID)
	if err != nil {
		return BoardSnapshot{}, fmt.Errorf("list board cards: %w", err)
	}
	byID := make(map[string]*Card)
	var order []string
	cards, err := scanCards(rows)
	if err != nil {
		return BoardSnapshot{}, err
	}
	for i := range cards {
		byID[cards[i].ID] = &cards[i]
		order = append(order, cards[i].ID)
	}

	if err := scanPairs(ctx, tx, `SELECT card_id, label_id FROM card_labels WHERE board_id=$1 ORDER BY label_id`, boardID, func(cardID, labelID string) {
		if card := byID[cardID]; card != nil {
			card.LabelIDs = append(card.LabelIDs, labelID)
		}
	}); err != nil {
		return BoardSnapshot{}, fmt.Errorf("list card labels: %w", err)
	}
	if err := scanPairs(ctx, tx, `
		SELECT ca.card_id, ca.user_id
		FROM card_assignees ca
		JOIN cards c ON c.id = ca.card_id
		WHERE c.board_id=$1
		ORDER BY ca.user_id
	`, boardID, func(cardID, userID string) {
		if card := byID[cardID]; card != nil {
			card.AssigneeIDs = append(card.AssigneeIDs, userID)
		}
	}); err != nil {
		return BoardSnapshot{}, fmt.Errorf("list card assignees: %w", err)
	}
	for _, id := range order {
		card := byID[id]
		snap.Cards[card.ColumnID] = append(snap.Cards[card.ColumnID], *card)
	}

	labelRows, err := tx.QueryContext(ctx, `
		SELECT id, board_id, name, color, created_at
		FROM labels
		WHERE board_id=$1
		ORDER BY name
	`, boardID)
	if err != nil {
		return BoardSnapshot{}, fmt.Errorf("list labels: %w", err)
	}
	defer labelRows.Close()
	for labelRows.Next() {
		var item Label
		if err := labelRows.Scan(&item.ID, &item.BoardID, &item.Name, &item.Color, &item.CreatedAt); err != nil {
			return BoardSnapshot{}, fmt.Errorf("scan label: %w", err)
		}
		snap.Labels = append(snap.Labels, item)
	}
	if err := labelRows.Err(); err != nil {
		return BoardSnapshot{}, fmt.Errorf("iterate labels: %w", err)
	}

	memberRows, err := tx.QueryContext(ctx, `
		SELECT board_id, user_id, role, created_at
		FROM board_memberships
		WHERE board_id=$1
		ORDER BY created_at, user_id
	`, boardID)
	if err != nil {
		return BoardSnapshot{}, fmt.Errorf("list memberships: %w", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var item Membership
		if err := memberRows.Scan(&item.BoardID, &item.UserID, &item.Role, &item.CreatedAt); err != nil {
			return BoardSnapshot{}, fmt.Errorf("scan membership: %w", err)
		}
		snap.Memberships = append(snap.Memberships, item)
	}
	if err := memberRows.Err(); err != nil {
		return BoardSnapshot{}, fmt.Errorf("iterate memberships: %w", err)
	}

	return snap, nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, card_id, actor_id, action, details, created_at
		FROM activity_logs
		WHERE board_id=$1
		  AND ($2 = '' OR card_id = $2)
		  AND ($3 = '' OR id < $3)
		ORDER BY id DESC
		LIMIT $4
	`, filter.BoardID, filter.CardID, filter.Before, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityLog, 0)
	for rows.Next() {
		var item ActivityLog
		var actorID sql.NullString
		var details []byte
		if err := rows.Scan(&item.ID, &item.BoardID, &item.CardID, &actorID, &item.Action, &details, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if actorID.Valid {
			item.ActorID = &actorID.String
		}
		item.Details = json.RawMessage(details)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

// ListCardsByIDs reads cards regardless of board; missing ids are skipped.
func (s *PostgresStore) ListCardsByIDs(ctx context.Context, cardIDs []string) ([]Card, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE id = ANY($1)
		ORDER BY column_id, sort_order
	`, cardIDs)
	if err != nil {
		return nil, fmt.Errorf("list cards by id: %w", err)
	}
	return scanCards(rows)
}

const cardColumns = `id, board_id, column_id, title, description, priority, weight, due_date, sort_order, created_at, updated_at`

func scanCards(rows *sql.Rows) ([]Card, error) {
	defer rows.Close()
	items := make([]Card, 0)
	for rows.Next() {
		var item Card
		var weight sql.NullFloat64
		var due sql.NullTime
		if err := rows.Scan(&item.ID, &item.BoardID, &item.ColumnID, &item.Title, &item.Description, &item.Priority, &weight, &due, &item.Order, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		if weight.Valid {
			w := weight.Float64
			item.Weight = &w
		}
		if due.Valid {
			d := due.Time
			item.DueDate = &d
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return items, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanPairs(ctx context.Context, q queryer, query, arg string, fn func(a, b string)) error {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return err
		}
		fn(a, b)
	}
	return rows.Err()
}

// pgTx implements Tx on top of a database/sql transaction.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) EnsureUser(ctx context.Context, user User) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (id) DO NOTHING
	`, user.ID, user.DisplayName, user.Email)
	if err != nil {
		return fmt.Errorf("ensure user: %w", classify(err))
	}
	return nil
}

func (t *pgTx) InsertBoard(ctx context.Context, board Board) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO boards (id, title, theme, is_public, owner_id)
		VALUES ($1, $2, $3, $4, $5)
	`, board.ID, board.Title, board.Theme, board.IsPublic, board.OwnerID)
	if err != nil {
		return fmt.Errorf("insert board: %w", classify(err))
	}
	return nil
}

func (t *pgTx) LockBoard(ctx context.Context, boardID string) (Board, error) {
	var item Board
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, title, theme, is_public, owner_id, created_at, updated_at
		FROM boards
		WHERE id=$1
		FOR UPDATE
	`, boardID).Scan(&item.ID, &item.Title, &item.Theme, &item.IsPublic, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Board{}, fmt.Errorf("lock board: %w", classify(err))
	}
	return item, nil
}

func (t *pgTx) UpdateBoard(ctx context.Context, boardID string, fields BoardFields) error {
	var b updateBuilder
	if fields.Title != nil {
		b.set("title", *fields.Title)
	}
	if fields.Theme != nil {
		b.set("theme", string(*fields.Theme))
	}
	if fields.IsPublic != nil {
		b.set("is_public", *fields.IsPublic)
	}
	return b.exec(ctx, t.tx, "boards", boardID)
}

func (t *pgTx) InsertMembership(ctx context.Context, membership Membership) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO board_memberships (board_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (board_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, membership.BoardID, membership.UserID, membership.Role)
	if err != nil {
		return fmt.Errorf("insert membership: %w", classify(err))
	}
	return nil
}

func (t *pgTx) GetMembership(ctx context.Context, boardID, userID string) (Membership, error) {
	var item Membership
	err := t.tx.QueryRowContext(ctx, `
		SELECT board_id, user_id, role, created_at
		FROM board_memberships
		WHERE board_id=$1 AND user_id=$2
	`, boardID, userID).Scan(&item.BoardID, &item.UserID, &item.Role, &item.CreatedAt)
	if err != nil {
		return Membership{}, fmt.Errorf("get membership: %w", classify(err))
	}
	return item, nil
}

func (t *pgTx) ListColumns(ctx context.Context, boardID string) ([]Column, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, board_id, title, width, sort_order, created_at, updated_at
		FROM board_columns
		WHERE board_id=$1
		ORDER BY sort_order, id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", classify(err))
	}
	defer rows.Close()

	items := make([]Column, 0)
	for rows.Next() {
		var item Column
		if err := rows.Scan(&item.ID, &item.BoardID, &item.Title, &item.Width, &item.Order, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", classify(err))
	}
	return items, nil
}

func (t *pgTx) GetColumn(ctx context.Context, columnID string) (Column, error) {
	var item Column
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, board_id, title, width, sort_order, created_at, updated_at
		FROM board_columns
		WHERE id=$1
	`, columnID).Scan(&item.ID, &item.BoardID, &item.Title, &item.Width, &item.Order, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Column{}, fmt.Errorf("get column: %w", classify(err))
	}
	return item, nil
}

func (t *pgTx) InsertColumn(ctx context.Context, column Column) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO board_columns (id, board_id, title, width, sort_order)
		VALUES ($1, $2, $3, $4, $5)
	`, column.ID, column.BoardID, column.Title, column.Width, column.Order)
	if err != nil {
		return fmt.Errorf("insert column: %w", classify(err))
	}
	return nil
}

func (t *pgTx) UpdateColumn(ctx context.Context, columnID string, fields ColumnFields) error {
	var b updateBuilder
	if fields.Title != nil {
		b.set("title", *fields.Title)
	}
	if fields.Width != nil {
		b.set("width", *fields.Width)
	}
	if fields.Order != nil {
		b.set("sort_order", *fields.Order)
	}
	return b.exec(ctx, t.tx, "board_columns", columnID)
}

func (t *pgTx) DeleteColumn(ctx context.Context, columnID string) error {
	return deleteByID(ctx, t.tx, "board_columns", columnID)
}

func (t *pgTx) SetColumnOrders(ctx context.Context, positions []ColumnPosition) error {
	for _, p := range positions {
		if err := expectOne(t.tx.ExecContext(ctx, `
			UPDATE board_columns SET sort_order=$2, updated_at=NOW() WHERE id=$1
		`, p.ColumnID, p.Order)); err != nil {
			return fmt.Errorf("set column %s order: %w", p.ColumnID, err)
		}
	}
	return nil
}

func (t *pgTx) ListCards(ctx context.Context, columnID string) ([]Card, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE column_id=$1
		ORDER BY sort_order, id
	`, columnID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", classify(err))
	}
	cards, err := scanCards(rows)
	if err != nil {
		return nil, classify(err)
	}
	return cards, nil
}

func (t *pgTx) GetCard(ctx context.Context, cardID string) (Card, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id=$1`, cardID)
	if err != nil {
		return Card{}, fmt.Errorf("get card: %w", classify(err))
	}
	cards, err := scanCards(rows)
	if err != nil {
		return Card{}, fmt.Errorf("get card: %w", classify(err))
	}
	if len(cards) == 0 {
		return Card{}, fmt.Errorf("get card %s: %w", cardID, ErrNotFound)
	}
	return cards[0], nil
}

func (t *pgTx) InsertCard(ctx context.Context, card Card) error {
	priority := card.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cards (id, board_id, column_id, title, description, priority, weight, due_date, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, card.ID, card.BoardID, card.ColumnID, card.Title, card.Description, priority, card.Weight, card.DueDate, card.Order)
	if err != nil {
		return fmt.Errorf("insert card: %w", classify(err))
	}
	return nil
}

func (t *pgTx) UpdateCard(ctx context.Context, cardID string, fields CardFields) error {
	var b updateBuilder
	if fields.Title != nil {
		b.set("title", *fields.Title)
	}
	if fields.Description != nil {
		b.set("description", *fields.Description)
	}
	if fields.Priority != nil {
		b.set("priority", string(*fields.Priority))
	}
	if fields.ClearWeight {
		b.set("weight", nil)
	} else if fields.Weight != nil {
		b.set("weight", *fields.Weight)
	}
	if fields.ClearDueDate {
		b.set("due_date", nil)
	} else if fields.DueDate != nil {
		b.set("due_date", *fields.DueDate)
	}
	if fields.ColumnID != nil {
		b.set("column_id", *fields.ColumnID)
	}
	if fields.Order != nil {
		b.set("sort_order", *fields.Order)
	}
	return b.exec(ctx, t.tx, "cards", cardID)
}

func (t *pgTx) DeleteCard(ctx context.Context, cardID string) error {
	return deleteByID(ctx, t.tx, "cards", cardID)
}

func (t *pgTx) SetCardPositions(ctx context.Context, positions []CardPosition) error {
	for _, p := range positions {
		if err := expectOne(t.tx.ExecContext(ctx, `
			UPDATE cards SET column_id=$2, sort_order=$3, updated_at=NOW() WHERE id=$1
		`, p.CardID, p.ColumnID, p.Order)); err != nil {
			return fmt.Errorf("set card %s position: %w", p.CardID, err)
		}
	}
	return nil
}

func (t *pgTx) SetCardLabels(ctx context.Context, cardID string, labelIDs []string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM card_labels WHERE card_id=$1`, cardID); err != nil {
		return fmt.Errorf("clear card labels: %w", classify(err))
	}
	for _, labelID := range labelIDs {
		if err := expectOne(t.tx.ExecContext(ctx, `
			INSERT INTO card_labels (card_id, label_id, board_id)
			SELECT id, $2, board_id FROM cards WHERE id=$1
			ON CONFLICT DO NOTHING
		`, cardID, labelID)); err != nil {
			return fmt.Errorf("attach label %s: %w", labelID, err)
		}
	}
	return nil
}

func (t *pgTx) SetCardAssignees(ctx context.Context, cardID string, userIDs []string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM card_assignees WHERE card_id=$1`, cardID); err != nil {
		return fmt.Errorf("clear card assignees: %w", classify(err))
	}
	for _, userID := range userIDs {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO card_assignees (card_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, cardID, userID); err != nil {
			return fmt.Errorf("assign user %s: %w", userID, classify(err))
		}
	}
	return nil
}

func (t *pgTx) GetLabel(ctx context.Context, labelID string) (Label, error) {
	var item Label
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, board_id, name, color, created_at
		FROM labels
		WHERE id=$1
	`, labelID).Scan(&item.ID, &item.BoardID, &item.Name, &item.Color, &item.CreatedAt)
	if err != nil {
		return Label{}, fmt.Errorf("get label: %w", classify(err))
	}
	return item, nil
}

func (t *pgTx) InsertLabel(ctx context.Context, label Label) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO labels (id, board_id, name, color)
		VALUES ($1, $2, $3, $4)
	`, label.ID, label.BoardID, label.Name, label.Color)
	if err != nil {
		return fmt.Errorf("insert label: %w", classify(err))
	}
	return nil
}

func (t *pgTx) UpdateLabel(ctx context.Context, labelID string, fields LabelFields) error {
	var b updateBuilder
	if fields.Name != nil {
		b.set("name", *fields.Name)
	}
	if fields.Color != nil {
		b.set("color", *fields.Color)
	}
	b.noTimestamp = true
	return b.exec(ctx, t.tx, "labels", labelID)
}

func (t *pgTx) DetachLabel(ctx context.Context, labelID string) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM card_labels WHERE label_id=$1`, labelID)
	if err != nil {
		return 0, fmt.Errorf("detach label: %w", classify(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("detach label rows: %w", err)
	}
	return affected, nil
}

func (t *pgTx) DeleteLabel(ctx context.Context, labelID string) error {
	return deleteByID(ctx, t.tx, "labels", labelID)
}

func (t *pgTx) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	var authorID sql.NullString
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, card_id, author_id, content, created_at, updated_at
		FROM comments
		WHERE id=$1
	`, commentID).Scan(&item.ID, &item.CardID, &authorID, &item.Content, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("get comment: %w", classify(err))
	}
	item.AuthorID = authorID.String
	return item, nil
}

func (t *pgTx) InsertComment(ctx context.Context, comment Comment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO comments (id, card_id, author_id, content)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, comment.ID, comment.CardID, comment.AuthorID, comment.Content)
	if err != nil {
		return fmt.Errorf("insert comment: %w", classify(err))
	}
	return nil
}

func (t *pgTx) UpdateComment(ctx context.Context, commentID string, fields CommentFields) error {
	var b updateBuilder
	if fields.Content != nil {
		b.set("content", *fields.Content)
	}
	return b.exec(ctx, t.tx, "comments", commentID)
}

func (t *pgTx) DeleteComment(ctx context.Context, commentID string) error {
	return deleteByID(ctx, t.tx, "comments", commentID)
}

func (t *pgTx) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var item Attachment
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, card_id, name, url, type, created_at
		FROM attachments
		WHERE id=$1
	`, attachmentID).Scan(&item.ID, &item.CardID, &item.Name, &item.URL, &item.Type, &item.CreatedAt)
	if err != nil {
		return Attachment{}, fmt.Errorf("get attachment: %w", classify(err))
	}
	return item, nil
}

func (t *pgTx) InsertAttachment(ctx context.Context, attachment Attachment) error {
	kind := attachment.Type
	if kind == "" {
		kind = "link"
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO attachments (id, card_id, name, url, type)
		VALUES ($1, $2, $3, $4, $5)
	`, attachment.ID, attachment.CardID, attachment.Name, attachment.URL, kind)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", classify(err))
	}
	return nil
}

func (t *pgTx) UpdateAttachment(ctx context.Context, attachmentID string, fields AttachmentFields) error {
	var b updateBuilder
	if fields.Name != nil {
		b.set("name", *fields.Name)
	}
	if fields.URL != nil {
		b.set("url", *fields.URL)
	}
	if fields.Type != nil {
		b.set("type", *fields.Type)
	}
	b.noTimestamp = true
	return b.exec(ctx, t.tx, "attachments", attachmentID)
}

func (t *pgTx) DeleteAttachment(ctx context.Context, attachmentID string) error {
	return deleteByID(ctx, t.tx, "attachments", attachmentID)
}

func (t *pgTx) InsertActivity(ctx context.Context, entry ActivityLog) error {
	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity_logs (id, board_id, card_id, actor_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, entry.ID, entry.BoardID, entry.CardID, entry.ActorID, entry.Action, string(details), createdAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", classify(err))
	}
	return nil
}

// updateBuilder assembles a partial UPDATE touching only supplied columns.
type updateBuilder struct {
	sets        []string
	args        []any
	noTimestamp bool
}

func (b *updateBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s=$%d", column, len(b.args)))
}

func (b *updateBuilder) statement(table, id string) (string, []any) {
	sets := append([]string(nil), b.sets...)
	if !b.noTimestamp {
		sets = append(sets, "updated_at=NOW()")
	}
	args := append(append([]any(nil), b.args...), id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id=$%d", table, strings.Join(sets, ", "), len(args)), args
}

func (b *updateBuilder) exec(ctx context.Context, tx *sql.Tx, table, id string) error {
	if len(b.sets) == 0 {
		return nil
	}
	query, args := b.statement(table, id)
	if err := expectOne(tx.ExecContext(ctx, query, args...)); err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	return nil
}

func deleteByID(ctx context.Context, tx *sql.Tx, table, id string) error {
	if err := expectOne(tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id=$1", table), id)); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// expectOne turns "no row affected" into ErrNotFound.
func expectOne(result sql.Result, err error) error {
	if err != nil {
		return classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
