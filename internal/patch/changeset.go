package patch

import "kanban/api/internal/store"

type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Op is one intent against a single entity. Delete intents carry no fields.
type Op[F any] struct {
	Kind   Kind
	ID     string
	Fields F
}

// ChangeSet is the format-independent result of normalizing a patch. The
// executor applies the lists in field order.
type ChangeSet struct {
	Board       *store.BoardFields
	Columns     []Op[store.ColumnFields]
	Cards       []Op[store.CardFields]
	Labels      []Op[store.LabelFields]
	Comments    []Op[store.CommentFields]
	Attachments []Op[store.AttachmentFields]
}

func (c ChangeSet) Empty() bool {
	return (c.Board == nil || c.Board.Empty()) &&
		len(c.Columns) == 0 &&
		len(c.Cards) == 0 &&
		len(c.Labels) == 0 &&
		len(c.Comments) == 0 &&
		len(c.Attachments) == 0
}

// Size counts intents, board fields included as one.
func (c ChangeSet) Size() int {
	n := len(c.Columns) + len(c.Cards) + len(c.Labels) + len(c.Comments) + len(c.Attachments)
	if c.Board != nil && !c.Board.Empty() {
		n++
	}
	return n
}
