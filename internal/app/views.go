package app

import (
	"kanban/api/internal/engine"
	"kanban/api/internal/store"
)

func boardView(snap store.BoardSnapshot) map[string]any {
	columns := make([]map[string]any, 0, len(snap.Columns))
	for _, column := range snap.Columns {
		cards := make([]map[string]any, 0, len(snap.Cards[column.ID]))
		for _, card := range snap.Cards[column.ID] {
			cards = append(cards, cardView(card))
		}
		columns = append(columns, map[string]any{
			"id":    column.ID,
			"title": column.Title,
			"width": column.Width,
			"order": column.Order,
			"cards": cards,
		})
	}

	labels := make([]map[string]any, 0, len(snap.Labels))
	for _, label := range snap.Labels {
		labels = append(labels, map[string]any{
			"id":    label.ID,
			"name":  label.Name,
			"color": label.Color,
		})
	}

	return map[string]any{
		"id":        snap.Board.ID,
		"title":     snap.Board.Title,
		"theme":     snap.Board.Theme,
		"isPublic":  snap.Board.IsPublic,
		"ownerId":   snap.Board.OwnerID,
		"createdAt": snap.Board.CreatedAt,
		"updatedAt": snap.Board.UpdatedAt,
		"columns":   columns,
		"labels":    labels,
		"members":   membersView(snap.Memberships),
	}
}

func cardView(card store.Card) map[string]any {
	return map[string]any{
		"id":          card.ID,
		"columnId":    card.ColumnID,
		"title":       card.Title,
		"description": card.Description,
		"priority":    card.Priority,
		"weight":      card.Weight,
		"dueDate":     card.DueDate,
		"order":       card.Order,
		"labels":      nonNilStrings(card.LabelIDs),
		"assignees":   nonNilStrings(card.AssigneeIDs),
		"updatedAt":   card.UpdatedAt,
	}
}

func membersView(memberships []store.Membership) []map[string]any {
	members := make([]map[string]any, 0, len(memberships))
	for _, m := range memberships {
		members = append(members, map[string]any{
			"userId": m.UserID,
			"role":   m.Role,
		})
	}
	return members
}

func appliedView(result engine.Result) map[string]any {
	return map[string]any{
		"boardChanged": result.BoardChanged,
		"columns":      nonNilStrings(result.Columns),
		"cards":        nonNilStrings(result.Cards),
		"deletedCards": nonNilStrings(result.DeletedCards),
		"labels":       nonNilStrings(result.Labels),
		"comments":     nonNilStrings(result.Comments),
		"attachments":  nonNilStrings(result.Attachments),
		"activity":     result.Activity,
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
