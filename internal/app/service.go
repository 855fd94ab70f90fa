package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"kanban/api/internal/engine"
	"kanban/api/internal/patch"
	"kanban/api/internal/rbac"
	"kanban/api/internal/search"
	"kanban/api/internal/store"
	"kanban/api/internal/util"
)

const defaultColumnWidth = 272

type CreateBoardInput struct {
	Title    string   `json:"title"`
	Theme    string   `json:"theme"`
	IsPublic bool     `json:"isPublic"`
	Columns  []string `json:"columns"`
}

type MoveCardInput struct {
	CardID         string `json:"cardId"`
	TargetColumnID string `json:"targetColumnId"`
	Order          *int   `json:"order"`
}

type AddMemberInput struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type ActivityFilterInput struct {
	CardID string
	Before string
	Limit  int
}

type Service struct {
	store  store.Store
	engine *engine.Engine
	search *search.Service
	logger *slog.Logger
}

// New wires the board service. searchService may be nil, in which case
// search returns no results and nothing is indexed.
func New(dataStore store.Store, eng *engine.Engine, searchService *search.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: dataStore, engine: eng, search: searchService, logger: logger}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// authorize reads the board and checks that actor may perform action on it.
func (s *Service) authorize(ctx context.Context, actor Actor, boardID string, action rbac.Action) (store.BoardSnapshot, error) {
	snap, err := s.store.Snapshot(ctx, boardID)
	if errors.Is(err, store.ErrNotFound) {
		return store.BoardSnapshot{}, errBoardMissing
	}
	if err != nil {
		return store.BoardSnapshot{}, fmt.Errorf("read board %s: %w", boardID, err)
	}
	role, _ := snap.MemberRole(actor.UserID)
	if !rbac.Can(rbac.Normalize(string(role)), snap.Board.IsPublic, action) {
		return store.BoardSnapshot{}, errForbidden
	}
	return snap, nil
}

func (s *Service) CreateBoard(ctx context.Context, actor Actor, input CreateBoardInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_FAILED", "title is required", nil)
	}
	theme := store.Theme(strings.ToLower(strings.TrimSpace(input.Theme)))
	switch theme {
	case "":
		theme = store.ThemeLight
	case store.ThemeLight, store.ThemeDark:
	default:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_FAILED", "theme must be light or dark", nil)
	}
	columns := make([]string, 0, len(input.Columns))
	for i, column := range input.Columns {
		column = strings.TrimSpace(column)
		if column == "" {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_FAILED", fmt.Sprintf("column %d needs a title", i), nil)
		}
		columns = append(columns, column)
	}

	boardID := util.NewID("")
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.EnsureUser(ctx, store.User{ID: actor.UserID, DisplayName: actor.DisplayName, Email: actor.Email}); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		if err := tx.InsertBoard(ctx, store.Board{ID: boardID, Title: title, Theme: theme, IsPublic: input.IsPublic, OwnerID: actor.UserID}); err != nil {
			return fmt.Errorf("insert board: %w", err)
		}
		if err := tx.InsertMembership(ctx, store.Membership{BoardID: boardID, UserID: actor.UserID, Role: store.RoleOwner}); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		for i, column := range columns {
			if err := tx.InsertColumn(ctx, store.Column{ID: util.NewID(""), BoardID: boardID, Title: column, Width: defaultColumnWidth, Order: i}); err != nil {
				return fmt.Errorf("insert column: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	s.logger.InfoContext(ctx, "board created", "board_id", boardID, "owner_id", actor.UserID)

	snap, err := s.store.Snapshot(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("read new board: %w", err)
	}
	return boardView(snap), nil
}

func (s *Service) GetBoard(ctx context.Context, actor Actor, boardID string) (map[string]any, error) {
	snap, err := s.authorize(ctx, actor, boardID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return boardView(snap), nil
}

// PatchBoard normalizes raw against the current board and applies it in one
// transaction. The response carries the board as committed.
func (s *Service) PatchBoard(ctx context.Context, actor Actor, boardID string, raw []byte) (map[string]any, error) {
	snap, err := s.authorize(ctx, actor, boardID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	payload, err := patch.Decode(raw)
	if err != nil {
		return nil, engineError(err)
	}
	changes, err := patch.Normalize(payload, snap)
	if err != nil {
		return nil, engineError(err)
	}
	result, err := s.engine.Apply(ctx, boardID, actor.UserID, changes)
	if err != nil {
		return nil, engineError(err)
	}
	s.reindex(ctx, result.Cards, result.DeletedCards)

	if changes.Empty() {
		return map[string]any{"board": boardView(snap), "applied": appliedView(result)}, nil
	}
	fresh, err := s.store.Snapshot(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("read patched board: %w", err)
	}
	return map[string]any{"board": boardView(fresh), "applied": appliedView(result)}, nil
}

func (s *Service) MoveCard(ctx context.Context, actor Actor, boardID string, input MoveCardInput) (map[string]any, error) {
	if _, err := s.authorize(ctx, actor, boardID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if input.Order == nil {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_FAILED", "order is required", nil)
	}
	result, err := s.engine.Move(ctx, actor.UserID, engine.MoveRequest{
		BoardID:        boardID,
		CardID:         strings.TrimSpace(input.CardID),
		TargetColumnID: strings.TrimSpace(input.TargetColumnID),
		Order:          *input.Order,
	})
	if err != nil {
		return nil, engineError(err)
	}
	s.reindex(ctx, []string{result.CardID}, nil)

	return map[string]any{
		"cardId":       result.CardID,
		"fromColumnId": result.FromColumnID,
		"fromOrder":    result.FromOrder,
		"toColumnId":   result.ToColumnID,
		"toOrder":      result.ToOrder,
		"attempts":     result.Attempts,
	}, nil
}

func (s *Service) ListActivity(ctx context.Context, actor Actor, boardID string, filter ActivityFilterInput) (map[string]any, error) {
	if _, err := s.authorize(ctx, actor, boardID, rbac.ActionRead); err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := s.store.ListActivity(ctx, store.ActivityFilter{
		BoardID: boardID,
		CardID:  filter.CardID,
		Before:  filter.Before,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"id":        entry.ID,
			"cardId":    entry.CardID,
			"actorId":   entry.ActorID,
			"action":    entry.Action,
			"details":   entry.Details,
			"createdAt": entry.CreatedAt,
		})
	}
	response := map[string]any{"items": items}
	if len(entries) == limit {
		response["nextBefore"] = entries[len(entries)-1].ID
	}
	return response, nil
}

func (s *Service) SearchCards(ctx context.Context, actor Actor, boardID string, q search.Query) (search.Response, error) {
	if _, err := s.authorize(ctx, actor, boardID, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	q.BoardID = boardID
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return search.Response{}, domainError(http.StatusBadRequest, "VALIDATION_FAILED", "q is required", nil)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(ctx, q), nil
}

// AddMember grants a user member access. Only the owner may do this.
func (s *Service) AddMember(ctx context.Context, actor Actor, boardID string, input AddMemberInput) (map[string]any, error) {
	if _, err := s.authorize(ctx, actor, boardID, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_FAILED", "userId is required", nil)
	}
	if userID == actor.UserID {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_FAILED", "owner is already a member", nil)
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.EnsureUser(ctx, store.User{ID: userID, DisplayName: strings.TrimSpace(input.DisplayName), Email: strings.TrimSpace(input.Email)}); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		return tx.InsertMembership(ctx, store.Membership{BoardID: boardID, UserID: userID, Role: store.RoleMember})
	})
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}

	snap, err := s.store.Snapshot(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("read board members: %w", err)
	}
	return map[string]any{"members": membersView(snap.Memberships)}, nil
}

// reindex pushes changed cards to the search index after commit. Failures
// only cost search freshness, so they are logged and dropped.
func (s *Service) reindex(ctx context.Context, changed, deleted []string) {
	if s.search == nil {
		return
	}
	s.search.DeleteCards(deleted)
	if len(changed) == 0 {
		return
	}
	cards, err := s.store.ListCardsByIDs(ctx, changed)
	if err != nil {
		s.logger.WarnContext(ctx, "load cards for indexing", "error", err)
		return
	}
	records := make([]search.CardRecord, 0, len(cards))
	for _, card := range cards {
		records = append(records, search.RecordFromCard(card))
	}
	s.search.IndexCards(records)
}
