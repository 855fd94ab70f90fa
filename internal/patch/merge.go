package patch

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"kanban/api/internal/store"
)

type mergeDocument struct {
	Title       *string           `json:"title"`
	Theme       *string           `json:"theme"`
	IsPublic    *bool             `json:"isPublic"`
	Columns     []json.RawMessage `json:"columns"`
	Cards       []json.RawMessage `json:"cards"`
	Labels      []json.RawMessage `json:"labels"`
	Comments    []json.RawMessage `json:"comments"`
	Attachments []json.RawMessage `json:"attachments"`
}

type entryFlags struct {
	ID     *string `json:"id"`
	New    bool    `json:"_new"`
	Delete bool    `json:"_delete"`
}

type columnEntry struct {
	entryFlags
	Title *string  `json:"title"`
	Width *float64 `json:"width"`
	Order *int     `json:"order"`
}

type cardEntry struct {
	entryFlags
	ColumnID    *string   `json:"columnId"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Priority    *string   `json:"priority"`
	Weight      *float64  `json:"weight"`
	DueDate     *string   `json:"dueDate"`
	Order       *int      `json:"order"`
	Labels      *[]string `json:"labels"`
	Assignees   *[]string `json:"assignees"`
}

type labelEntry struct {
	entryFlags
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

type commentEntry struct {
	entryFlags
	CardID  *string `json:"cardId"`
	Content *string `json:"content"`
}

type attachmentEntry struct {
	entryFlags
	CardID *string `json:"cardId"`
	Name   *string `json:"name"`
	URL    *string `json:"url"`
	Type   *string `json:"type"`
}

// merge turns a merge object into intents. Absent keys produce nothing;
// present fields produce updates carrying only those fields.
func (n *normalizer) merge(raw []byte) (ChangeSet, error) {
	if err := validateMerge(raw); err != nil {
		return ChangeSet{}, err
	}
	var doc mergeDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ChangeSet{}, invalid("", "merge object could not be decoded: "+err.Error())
	}

	var cs ChangeSet
	board := store.BoardFields{Title: doc.Title, IsPublic: doc.IsPublic}
	if doc.Theme != nil {
		theme := store.Theme(*doc.Theme)
		board.Theme = &theme
	}
	if !board.Empty() {
		cs.Board = &board
	}

	for i, item := range doc.Columns {
		path := fmt.Sprintf("/columns/%d", i)
		var e columnEntry
		if !n.decodeEntry(path, item, &e) {
			continue
		}
		op, ok := n.intent(path, e.entryFlags)
		if !ok {
			continue
		}
		var fields store.ColumnFields
		if op.Kind != KindDelete {
			fields = store.ColumnFields{Title: e.Title, Width: e.Width, Order: e.Order}
			if op.Kind == KindCreate {
				n.require(path, "title", e.Title != nil)
			} else if e.Title == nil && e.Width == nil && e.Order == nil {
				continue
			}
		}
		cs.Columns = append(cs.Columns, Op[store.ColumnFields]{Kind: op.Kind, ID: op.ID, Fields: fields})
	}

	for i, item := range doc.Cards {
		path := fmt.Sprintf("/cards/%d", i)
		var e cardEntry
		if !n.decodeEntry(path, item, &e) {
			continue
		}
		op, ok := n.intent(path, e.entryFlags)
		if !ok {
			continue
		}
		if op.Kind != KindDelete {
			fields, ok := n.cardFields(path, item, e)
			if !ok {
				continue
			}
			if op.Kind == KindCreate {
				n.require(path, "title", e.Title != nil)
				n.require(path, "columnId", e.ColumnID != nil)
			} else if !fields.HasScalars() && !fields.Moves() && fields.Labels == nil && fields.Assignees == nil {
				continue
			}
			cs.Cards = append(cs.Cards, Op[store.CardFields]{Kind: op.Kind, ID: op.ID, Fields: fields})
			continue
		}
		cs.Cards = append(cs.Cards, Op[store.CardFields]{Kind: op.Kind, ID: op.ID})
	}

	for i, item := range doc.Labels {
		path := fmt.Sprintf("/labels/%d", i)
		var e labelEntry
		if !n.decodeEntry(path, item, &e) {
			continue
		}
		op, ok := n.intent(path, e.entryFlags)
		if !ok {
			continue
		}
		var fields store.LabelFields
		if op.Kind != KindDelete {
			fields = store.LabelFields{Name: e.Name, Color: normalizeColor(e.Color)}
			if op.Kind == KindCreate {
				n.require(path, "name", e.Name != nil)
				n.require(path, "color", e.Color != nil)
			} else if e.Name == nil && e.Color == nil {
				continue
			}
		}
		cs.Labels = append(cs.Labels, Op[store.LabelFields]{Kind: op.Kind, ID: op.ID, Fields: fields})
	}

	for i, item := range doc.Comments {
		path := fmt.Sprintf("/comments/%d", i)
		var e commentEntry
		if !n.decodeEntry(path, item, &e) {
			continue
		}
		op, ok := n.intent(path, e.entryFlags)
		if !ok {
			continue
		}
		var fields store.CommentFields
		if op.Kind != KindDelete {
			fields = store.CommentFields{CardID: e.CardID, Content: e.Content}
			if op.Kind == KindCreate {
				n.require(path, "cardId", e.CardID != nil)
				n.require(path, "content", e.Content != nil)
			} else {
				if e.CardID != nil {
					n.verr.add(path+"/cardId", "cannot be changed")
					continue
				}
				if e.Content == nil {
					continue
				}
			}
		}
		cs.Comments = append(cs.Comments, Op[store.CommentFields]{Kind: op.Kind, ID: op.ID, Fields: fields})
	}

	for i, item := range doc.Attachments {
		path := fmt.Sprintf("/attachments/%d", i)
		var e attachmentEntry
		if !n.decodeEntry(path, item, &e) {
			continue
		}
		op, ok := n.intent(path, e.entryFlags)
		if !ok {
			continue
		}
		var fields store.AttachmentFields
		if op.Kind != KindDelete {
			fields = store.AttachmentFields{CardID: e.CardID, Name: e.Name, URL: e.URL, Type: e.Type}
			if op.Kind == KindCreate {
				n.require(path, "cardId", e.CardID != nil)
				n.require(path, "name", e.Name != nil)
				n.require(path, "url", e.URL != nil)
				if fields.Type == nil {
					link := "link"
					fields.Type = &link
				}
			} else {
				if e.CardID != nil {
					n.verr.add(path+"/cardId", "cannot be changed")
					continue
				}
				if e.Name == nil && e.URL == nil && e.Type == nil {
					continue
				}
			}
		}
		cs.Attachments = append(cs.Attachments, Op[store.AttachmentFields]{Kind: op.Kind, ID: op.ID, Fields: fields})
	}

	return cs, nil
}

func (n *normalizer) decodeEntry(path string, raw json.RawMessage, into any) bool {
	if err := json.Unmarshal(raw, into); err != nil {
		n.verr.add(path, "could not be decoded: "+err.Error())
		return false
	}
	return true
}

type resolved struct {
	Kind Kind
	ID   string
}

// intent resolves the entry flags: _delete deletes, a missing id creates
// with a generated id, _new creates with the client id, anything else
// updates.
func (n *normalizer) intent(path string, f entryFlags) (resolved, bool) {
	switch {
	case f.Delete && f.New:
		n.verr.add(path, "_new and _delete cannot be combined")
		return resolved{}, false
	case f.Delete:
		if f.ID == nil {
			n.verr.add(path+"/id", "required to delete")
			return resolved{}, false
		}
		return resolved{Kind: KindDelete, ID: *f.ID}, true
	case f.ID == nil:
		if f.New {
			n.verr.add(path+"/id", "required with _new")
			return resolved{}, false
		}
		return resolved{Kind: KindCreate, ID: n.newID()}, true
	case f.New:
		return resolved{Kind: KindCreate, ID: *f.ID}, true
	default:
		return resolved{Kind: KindUpdate, ID: *f.ID}, true
	}
}

func (n *normalizer) require(path, field string, present bool) {
	if !present {
		n.verr.add(path+"/"+field, "required")
	}
}

// cardFields maps a card entry. JSON null on weight or dueDate clears the
// value; the schema has already rejected null everywhere else.
func (n *normalizer) cardFields(path string, raw json.RawMessage, e cardEntry) (store.CardFields, bool) {
	fields := store.CardFields{
		Title:       e.Title,
		Description: e.Description,
		Weight:      e.Weight,
		ColumnID:    e.ColumnID,
		Order:       e.Order,
		Labels:      e.Labels,
		Assignees:   e.Assignees,
	}
	if e.Priority != nil {
		priority := store.Priority(*e.Priority)
		fields.Priority = &priority
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(raw, &present); err != nil {
		n.verr.add(path, "could not be decoded: "+err.Error())
		return store.CardFields{}, false
	}
	if isNull(present["weight"]) {
		fields.ClearWeight = true
	}
	if isNull(present["dueDate"]) {
		fields.ClearDueDate = true
	} else if e.DueDate != nil {
		due, err := time.Parse(time.RFC3339, *e.DueDate)
		if err != nil {
			n.verr.add(path+"/dueDate", "must be an RFC 3339 date-time")
			return store.CardFields{}, false
		}
		due = due.UTC()
		fields.DueDate = &due
	}
	if fields.Labels != nil {
		labels := dedupe(*fields.Labels)
		fields.Labels = &labels
	}
	if fields.Assignees != nil {
		assignees := dedupe(*fields.Assignees)
		fields.Assignees = &assignees
	}
	return fields, true
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func normalizeColor(color *string) *string {
	if color == nil {
		return nil
	}
	normalized := "#" + strings.ToLower(strings.TrimPrefix(*color, "#"))
	return &normalized
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
