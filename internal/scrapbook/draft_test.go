package scrapbook

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDraft_LocalEdits(t *testing.T) {
	h := newHarness(t, u1)

	require.NoError(t, h.store.NewDraft("Summer"))

	a, err := h.store.AddItem(context.Background(), models.Item{Type: models.ItemTypeText, Content: "one"})
	require.NoError(t, err)
	b, err := h.store.AddItem(context.Background(), models.Item{Type: models.ItemTypeImage, Content: "file:///b.jpg"})
	require.NoError(t, err)

	assert.True(t, a.IsTemporary())
	assert.True(t, strings.HasPrefix(b.ID, models.TempIDPrefix))
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, u1.ID, a.CreatedBy)

	require.NoError(t, h.store.RemoveItem(context.Background(), a.ID))
	require.NoError(t, h.store.SetTitle(context.Background(), "Summer 24"))

	snap := h.store.Snapshot()
	assert.Equal(t, ModeDraft, snap.Mode)
	assert.Equal(t, "Summer 24", snap.Scrapbook.Title)
	require.Len(t, snap.Scrapbook.Items, 1)
	assert.Equal(t, b.ID, snap.Scrapbook.Items[0].ID)
	assert.Empty(t, snap.Timeline)

	// nothing reaches the server or the room
	assert.Empty(t, h.room.history())
	assert.Empty(t, h.room.emitted())
	h.backend.AssertNotCalled(t, "AddItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestDraft_CollaboratorsNeedSavedScrapbook(t *testing.T) {
	h := newHarness(t, u1)
	require.NoError(t, h.store.NewDraft("Summer"))

	_, err := h.store.AddCollaborator(context.Background(), "ben")
	assert.ErrorIs(t, err, ErrDraft)
	assert.ErrorIs(t, h.store.RemoveCollaborator(context.Background(), "u2"), ErrDraft)
}

func TestDraft_Save(t *testing.T) {
	h := newHarness(t, u1)
	require.NoError(t, h.store.NewDraft("Summer"))
	ctx := context.Background()

	_, err := h.store.AddItem(ctx, models.Item{Type: models.ItemTypeText, Content: "one"})
	require.NoError(t, err)
	_, err = h.store.AddItem(ctx, models.Item{Type: models.ItemTypeText, Content: "two"})
	require.NoError(t, err)

	created := &models.Scrapbook{ID: "s7", Title: "Summer", Owner: u1}
	h.backend.On("CreateScrapbook", mock.Anything, "Summer").Return(created, nil)

	var order []string
	for i, content := range []string{"one", "two"} {
		req := dto.AddItemRequest{Type: models.ItemTypeText, Content: content}
		id := []string{"i1", "i2"}[i]
		h.backend.On("AddItem", mock.Anything, "s7", req).
			Run(func(mock.Arguments) { order = append(order, content) }).
			Return(&dto.AddItemResponse{NewItem: models.Item{ID: id, Type: req.Type, Content: content}}, nil).Once()
	}

	persisted := &models.Scrapbook{
		ID:    "s7",
		Title: "Summer",
		Owner: u1,
		Items: []models.Item{{ID: "i1", Type: models.ItemTypeText, Content: "one"}, {ID: "i2", Type: models.ItemTypeText, Content: "two"}},
	}
	h.backend.On("GetScrapbook", mock.Anything, "s7").Return(persisted, nil)
	h.backend.On("GetTimeline", mock.Anything, "s7").Return([]models.TimelineEntry{}, nil)

	sb, err := h.store.SaveDraft(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s7", sb.ID)
	assert.Equal(t, []string{"one", "two"}, order)

	snap := h.store.Snapshot()
	assert.Equal(t, ModePersisted, snap.Mode)
	assert.Equal(t, "s7", snap.Scrapbook.ID)
	assert.Len(t, snap.Scrapbook.Items, 2)
	assert.Equal(t, []string{"s7"}, listIDs(snap.Scrapbooks))
	assert.Contains(t, h.room.history(), "attach:s7")
	h.backend.AssertExpectations(t)
}

func TestDraft_SavePartialFailure(t *testing.T) {
	h := newHarness(t, u1)
	require.NoError(t, h.store.NewDraft("Summer"))
	ctx := context.Background()

	_, err := h.store.AddItem(ctx, models.Item{Type: models.ItemTypeText, Content: "one"})
	require.NoError(t, err)

	created := &models.Scrapbook{ID: "s7", Title: "Summer", Owner: u1}
	h.backend.On("CreateScrapbook", mock.Anything, "Summer").Return(created, nil)
	h.backend.On("AddItem", mock.Anything, "s7", mock.Anything).
		Return(nil, apierr.Network("addItem", errors.New("connection reset")))
	h.backend.On("GetScrapbook", mock.Anything, "s7").Return(created, nil)
	h.backend.On("GetTimeline", mock.Anything, "s7").Return([]models.TimelineEntry{}, nil)

	sb, err := h.store.SaveDraft(ctx)

	assert.ErrorIs(t, err, apierr.ErrNetwork)
	require.NotNil(t, sb)
	snap := h.store.Snapshot()
	assert.Equal(t, ModePersisted, snap.Mode)
	assert.Contains(t, snap.Err, "0 of 1 items saved")
}

func TestDraft_SaveRequiresDraft(t *testing.T) {
	h := newHarness(t, u1)

	_, err := h.store.SaveDraft(context.Background())
	assert.ErrorIs(t, err, ErrNoScrapbook)

	require.NoError(t, h.store.NewDraft("  "))
	_, err = h.store.SaveDraft(context.Background())
	assert.ErrorIs(t, err, apierr.ErrValidation)
	h.backend.AssertNotCalled(t, "CreateScrapbook", mock.Anything, mock.Anything)
}

func TestDraft_ReplacesOpenScrapbook(t *testing.T) {
	h := newHarness(t, u1)
	h.open(t, tripScrapbook())

	require.NoError(t, h.store.NewDraft("New"))

	assert.Equal(t, "leave", h.room.history()[len(h.room.history())-1])
	snap := h.store.Snapshot()
	assert.Equal(t, ModeDraft, snap.Mode)
	assert.Empty(t, snap.Timeline)
}
