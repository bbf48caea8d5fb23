package services

import (
	"context"
	"testing"
	"time"

	"wager-settlement/internal/models"
	"wager-settlement/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDrafts(h *harness) *DraftService {
	ds := NewDraftService(session.NewMemoryStore(), h.wagers, time.Hour, zap.NewNop())
	ds.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return ds
}

func TestDraftService_FullFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ds := newTestDrafts(h)

	draft, err := ds.Start(ctx, 21, "")
	require.NoError(t, err)
	assert.Equal(t, StepCategory, draft.Step)

	answers := []struct {
		input string
		next  DraftStep
	}{
		{"/UFC", StepName},
		{"Main event", StepDescription},
		{"Who wins the main event on Saturday?", StepSide1},
		{"Red corner", StepSide2},
		{"Blue corner", StepImage},
		{"/no", StepEndTime},
		{"3-7-26 10pm", StepReview},
	}
	for _, a := range answers {
		draft, err = ds.Input(ctx, 21, a.input)
		require.NoError(t, err, a.input)
		assert.Equal(t, a.next, draft.Step)
	}

	assert.Equal(t, models.CategoryUFC, draft.Category)
	assert.Nil(t, draft.ImageURL)
	require.NotNil(t, draft.EndTime)
	// 10pm Eastern Standard Time
	assert.Equal(t, time.Date(2026, 3, 8, 3, 0, 0, 0, time.UTC), *draft.EndTime)

	_, err = ds.Input(ctx, 21, "anything")
	assert.ErrorIs(t, err, ErrInvalidDraft)

	wager, err := ds.Confirm(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, int64(21), wager.CreatorID)
	assert.Equal(t, "Red corner", wager.Side1Label)
	assert.Equal(t, models.VisibilityPublic, wager.Visibility)

	_, err = ds.Get(ctx, 21)
	assert.ErrorIs(t, err, ErrInvalidDraft)
}

func TestDraftService_InvalidInputKeepsStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ds := newTestDrafts(h)

	_, err := ds.Start(ctx, 22, models.VisibilityPrivate)
	require.NoError(t, err)

	_, err = ds.Input(ctx, 22, "Chess")
	assert.ErrorIs(t, err, ErrInvalidDraft)

	draft, err := ds.Get(ctx, 22)
	require.NoError(t, err)
	assert.Equal(t, StepCategory, draft.Step)

	_, err = ds.Confirm(ctx, 22)
	assert.ErrorIs(t, err, ErrInvalidDraft)

	require.NoError(t, ds.Cancel(ctx, 22))
	_, err = ds.Input(ctx, 22, "/NBA")
	assert.ErrorIs(t, err, ErrInvalidDraft)
}

func TestDraftService_ParseEndTime(t *testing.T) {
	h := newHarness(t)
	ds := newTestDrafts(h)

	got, err := ds.ParseEndTime("2026-06-01T18:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC), got)

	// daylight saving time is in effect in June
	got, err = ds.ParseEndTime("6-1-26 2:30PM")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC), got)

	_, err = ds.ParseEndTime("1-1-26 10am")
	assert.ErrorIs(t, err, ErrInvalidDraft)

	_, err = ds.ParseEndTime("next friday")
	assert.ErrorIs(t, err, ErrInvalidDraft)
}
