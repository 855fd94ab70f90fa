package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeededMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	s.AddUser(User{ID: "u1", DisplayName: "Ada"})
	ctx := context.Background()
	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertBoard(ctx, Board{ID: "b1", Title: "Roadmap", OwnerID: "u1"}); err != nil {
			return err
		}
		if err := tx.InsertMembership(ctx, Membership{BoardID: "b1", UserID: "u1", Role: RoleOwner}); err != nil {
			return err
		}
		if err := tx.InsertColumn(ctx, Column{ID: "c1", BoardID: "b1", Title: "Todo", Width: 272, Order: 0}); err != nil {
			return err
		}
		if err := tx.InsertCard(ctx, Card{ID: "k1", BoardID: "b1", ColumnID: "c1", Title: "First", Order: 0}); err != nil {
			return err
		}
		return tx.InsertLabel(ctx, Label{ID: "l1", BoardID: "b1", Name: "bug", Color: "#ff0000"})
	})
	require.NoError(t, err)
	return s
}

func TestMemoryStoreRollsBackFailedTx(t *testing.T) {
	s := newSeededMemoryStore(t)
	ctx := context.Background()

	failure := errors.New("abort")
	err := s.InTx(ctx, func(tx Tx) error {
		title := "Renamed"
		if err := tx.UpdateBoard(ctx, "b1", BoardFields{Title: &title}); err != nil {
			return err
		}
		if err := tx.InsertActivity(ctx, ActivityLog{ID: "a1", BoardID: "b1", CardID: "k1", Action: "card.updated"}); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)

	snap, err := s.Snapshot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", snap.Board.Title)

	items, err := s.ListActivity(ctx, ActivityFilter{BoardID: "b1"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryStoreRejectsDuplicateOrderAtCommit(t *testing.T) {
	s := newSeededMemoryStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.InsertCard(ctx, Card{ID: "k2", BoardID: "b1", ColumnID: "c1", Title: "Second", Order: 0})
	})
	require.ErrorIs(t, err, ErrDuplicate)

	// Shifting first keeps the slot free.
	err = s.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertCard(ctx, Card{ID: "k2", BoardID: "b1", ColumnID: "c1", Title: "Second", Order: 0}); err != nil {
			return err
		}
		return tx.SetCardPositions(ctx, []CardPosition{{CardID: "k1", ColumnID: "c1", Order: 1}})
	})
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, snap.Cards["c1"], 2)
	assert.Equal(t, "k2", snap.Cards["c1"][0].ID)
	assert.Equal(t, "k1", snap.Cards["c1"][1].ID)
}

func TestMemoryStoreLabelMustBelongToCardBoard(t *testing.T) {
	s := newSeededMemoryStore(t)
	ctx := context.Background()
	s.AddUser(User{ID: "u2"})

	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertBoard(ctx, Board{ID: "b2", Title: "Other", OwnerID: "u2"}); err != nil {
			return err
		}
		if err := tx.InsertLabel(ctx, Label{ID: "l2", BoardID: "b2", Name: "bug", Color: "00ff00"}); err != nil {
			return err
		}
		return tx.SetCardLabels(ctx, "k1", []string{"l2"})
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDeleteLabelNeedsDetach(t *testing.T) {
	s := newSeededMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		return tx.SetCardLabels(ctx, "k1", []string{"l1", "l1"})
	}))

	err := s.InTx(ctx, func(tx Tx) error { return tx.DeleteLabel(ctx, "l1") })
	require.Error(t, err)

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		detached, err := tx.DetachLabel(ctx, "l1")
		if err != nil {
			return err
		}
		assert.EqualValues(t, 1, detached)
		return tx.DeleteLabel(ctx, "l1")
	}))

	snap, err := s.Snapshot(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, snap.Labels)
	assert.Empty(t, snap.Cards["c1"][0].LabelIDs)
}

func TestMemoryStoreDeleteColumnCascadesCards(t *testing.T) {
	s := newSeededMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertComment(ctx, Comment{ID: "m1", CardID: "k1", AuthorID: "u1", Content: "hi"}); err != nil {
			return err
		}
		return tx.DeleteColumn(ctx, "c1")
	}))

	cards, err := s.ListCardsByIDs(ctx, []string{"k1"})
	require.NoError(t, err)
	assert.Empty(t, cards)

	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.GetComment(ctx, "m1")
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListActivityNewestFirst(t *testing.T) {
	s := newSeededMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		for _, entry := range []ActivityLog{
			{ID: "01A", BoardID: "b1", CardID: "k1", Action: "card.created"},
			{ID: "01B", BoardID: "b1", CardID: "k9", Action: "card.created"},
			{ID: "01C", BoardID: "b1", CardID: "k1", Action: "card.moved"},
		} {
			if err := tx.InsertActivity(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	}))

	items, err := s.ListActivity(ctx, ActivityFilter{BoardID: "b1", CardID: "k1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "01C", items[0].ID)
	assert.Equal(t, "01A", items[1].ID)

	items, err = s.ListActivity(ctx, ActivityFilter{BoardID: "b1", Before: "01C", Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "01B", items[0].ID)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := newSeededMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.InTx(ctx, func(tx Tx) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
