package store

import (
	"time"

	"github.com/goccy/go-json"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

type Board struct {
	ID        string
	Title     string
	Theme     Theme
	IsPublic  bool
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Column struct {
	ID        string
	BoardID   string
	Title     string
	Width     float64
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Card struct {
	ID          string
	BoardID     string
	ColumnID    string
	Title       string
	Description string
	Priority    Priority
	Weight      *float64
	DueDate     *time.Time
	Order       int
	LabelIDs    []string
	AssigneeIDs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Label struct {
	ID        string
	BoardID   string
	Name      string
	Color     string
	CreatedAt time.Time
}

type Comment struct {
	ID        string
	CardID    string
	AuthorID  string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Attachment struct {
	ID        string
	CardID    string
	Name      string
	URL       string
	Type      string
	CreatedAt time.Time
}

type Membership struct {
	BoardID   string
	UserID    string
	Role      Role
	CreatedAt time.Time
}

// ActivityLog rows are append-only; nothing updates or deletes them.
type ActivityLog struct {
	ID        string
	BoardID   string
	CardID    string
	ActorID   *string
	Action    string
	Details   json.RawMessage
	CreatedAt time.Time
}

// BoardSnapshot is a consistent read of one board. Columns are ordered by
// Order and Cards maps a column id to its cards ordered by Order.
type BoardSnapshot struct {
	Board       Board
	Columns     []Column
	Cards       map[string][]Card
	Labels      []Label
	Memberships []Membership
}

// ColumnIndex returns the column at a zero-based position, if any.
func (s BoardSnapshot) ColumnIndex(index int) (Column, bool) {
	if index < 0 || index >= len(s.Columns) {
		return Column{}, false
	}
	return s.Columns[index], true
}

func (s BoardSnapshot) MemberRole(userID string) (Role, bool) {
	for _, m := range s.Memberships {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

// Partial update field sets. A nil pointer means "leave unchanged".

type BoardFields struct {
	Title    *string
	Theme    *Theme
	IsPublic *bool
}

func (f BoardFields) Empty() bool {
	return f.Title == nil && f.Theme == nil && f.IsPublic == nil
}

type ColumnFields struct {
	Title *string
	Width *float64
	Order *int
}

type CardFields struct {
	Title        *string
	Description  *string
	Priority     *Priority
	Weight       *float64
	ClearWeight  bool
	DueDate      *time.Time
	ClearDueDate bool
	ColumnID     *string
	Order        *int
	Labels       *[]string
	Assignees    *[]string
}

// HasScalars reports whether any column of the cards row itself changes,
// as opposed to its position or its label/assignee sets.
func (f CardFields) HasScalars() bool {
	return f.Title != nil || f.Description != nil || f.Priority != nil ||
		f.Weight != nil || f.ClearWeight || f.DueDate != nil || f.ClearDueDate
}

func (f CardFields) Moves() bool {
	return f.ColumnID != nil || f.Order != nil
}

type LabelFields struct {
	Name  *string
	Color *string
}

type CommentFields struct {
	CardID  *string
	Content *string
}

type AttachmentFields struct {
	CardID *string
	Name   *string
	URL    *string
	Type   *string
}

// CardPosition is one row of a renumbering write.
type CardPosition struct {
	CardID   string
	ColumnID string
	Order    int
}

type ColumnPosition struct {
	ColumnID string
	Order    int
}
