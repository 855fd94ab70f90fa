package store

import "context"

// Store is implemented by PostgresStore and MemoryStore.
type Store interface {
	// InTx runs fn in one atomic unit of work. It commits only when fn
	// returns nil.
	InTx(ctx context.Context, fn func(Tx) error) error
	Snapshot(ctx context.Context, boardID string) (BoardSnapshot, error)
	ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityLog, error)
	ListCardsByIDs(ctx context.Context, cardIDs []string) ([]Card, error)
	Ping(ctx context.Context) error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Tx is the set of writes and locked reads available inside one atomic
// unit of work. Implementations must make either all or none of the calls
// made through a Tx visible.
type Tx interface {
	EnsureUser(ctx context.Context, user User) error

	InsertBoard(ctx context.Context, board Board) error
	LockBoard(ctx context.Context, boardID string) (Board, error)
	UpdateBoard(ctx context.Context, boardID string, fields BoardFields) error

	InsertMembership(ctx context.Context, membership Membership) error
	GetMembership(ctx context.Context, boardID, userID string) (Membership, error)

	ListColumns(ctx context.Context, boardID string) ([]Column, error)
	GetColumn(ctx context.Context, columnID string) (Column, error)
	InsertColumn(ctx context.Context, column Column) error
	UpdateColumn(ctx context.Context, columnID string, fields ColumnFields) error
	DeleteColumn(ctx context.Context, columnID string) error
	SetColumnOrders(ctx context.Context, positions []ColumnPosition) error

	ListCards(ctx context.Context, columnID string) ([]Card, error)
	GetCard(ctx context.Context, cardID string) (Card, error)
	InsertCard(ctx context.Context, card Card) error
	UpdateCard(ctx context.Context, cardID string, fields CardFields) error
	DeleteCard(ctx context.Context, cardID string) error
	SetCardPositions(ctx context.Context, positions []CardPosition) error
	SetCardLabels(ctx context.Context, cardID string, labelIDs []string) error
	SetCardAssignees(ctx context.Context, cardID string, userIDs []string) error

	GetLabel(ctx context.Context, labelID string) (Label, error)
	InsertLabel(ctx context.Context, label Label) error
	UpdateLabel(ctx context.Context, labelID string, fields LabelFields) error
	DetachLabel(ctx context.Context, labelID string) (int64, error)
	DeleteLabel(ctx context.Context, labelID string) error

	GetComment(ctx context.Context, commentID string) (Comment, error)
	InsertComment(ctx context.Context, comment Comment) error
	UpdateComment(ctx context.Context, commentID string, fields CommentFields) error
	DeleteComment(ctx context.Context, commentID string) error

	GetAttachment(ctx context.Context, attachmentID string) (Attachment, error)
	InsertAttachment(ctx context.Context, attachment Attachment) error
	UpdateAttachment(ctx context.Context, attachmentID string, fields AttachmentFields) error
	DeleteAttachment(ctx context.Context, attachmentID string) error

	InsertActivity(ctx context.Context, entry ActivityLog) error
}

// ActivityFilter narrows an activity feed read. Before is an exclusive
// activity id cursor.
type ActivityFilter struct {
	BoardID string
	CardID  string
	Before  string
	Limit   int
}
