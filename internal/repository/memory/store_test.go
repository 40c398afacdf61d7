package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"settlement/internal/model"
)

func TestRunInTxRollsBackOnError(t *testing.T) {
	repos := New()
	ctx := context.Background()

	tab, err := repos.Tabs.GetOrCreate(ctx, "table-1")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repos.Store.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := repos.Tabs.IncrementItem(txCtx, tab.ID, "coffee", nil, 1)
		require.NoError(t, err)
		_, err = repos.Counters.Next(txCtx, model.CounterOrderNumber)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	reloaded, err := repos.Tabs.FindBySlug(ctx, "table-1")
	require.NoError(t, err)
	assert.Empty(t, reloaded.Items)

	next, err := repos.Counters.Next(ctx, model.CounterOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestIncrementItemMergesSameVariations(t *testing.T) {
	repos := New()
	ctx := context.Background()
	tab, err := repos.Tabs.GetOrCreate(ctx, "bar")
	require.NoError(t, err)

	_, err = repos.Tabs.IncrementItem(ctx, tab.ID, "latte", model.Variations{"milk": "oat", "size": "L"}, 1)
	require.NoError(t, err)
	_, err = repos.Tabs.IncrementItem(ctx, tab.ID, "latte", model.Variations{"size": "L", "milk": "oat"}, 1)
	require.NoError(t, err)
	_, err = repos.Tabs.IncrementItem(ctx, tab.ID, "latte", model.Variations{"size": "S"}, 1)
	require.NoError(t, err)

	reloaded, err := repos.Tabs.FindBySlug(ctx, "bar")
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 2)
	assert.Equal(t, 2, reloaded.Items[0].Quantity)
	assert.Equal(t, 1, reloaded.Items[1].Quantity)
}

func TestUpdateItemOnAnotherTabIsNotFound(t *testing.T) {
	repos := New()
	ctx := context.Background()
	a, _ := repos.Tabs.GetOrCreate(ctx, "a")
	b, _ := repos.Tabs.GetOrCreate(ctx, "b")
	item, err := repos.Tabs.IncrementItem(ctx, a.ID, "coffee", nil, 1)
	require.NoError(t, err)

	err = repos.Tabs.UpdateItem(ctx, b.ID, item.ID, 3, nil)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	err = repos.Tabs.DeleteItem(ctx, a.ID, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPrintHistoryIsBounded(t *testing.T) {
	repos := New()
	ctx := context.Background()
	tab, _ := repos.Tabs.GetOrCreate(ctx, "t")
	other, _ := repos.Tabs.GetOrCreate(ctx, "other")

	require.NoError(t, repos.Tabs.AppendPrintEntry(ctx, &model.TabPrintEntry{TabID: other.ID, Content: "keep"}, 3))
	for i := 0; i < 5; i++ {
		require.NoError(t, repos.Tabs.AppendPrintEntry(ctx, &model.TabPrintEntry{TabID: tab.ID, Content: string(rune('a' + i))}, 3))
	}

	entries, err := repos.Tabs.ListPrintEntries(ctx, tab.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e", entries[0].Content)
	assert.Equal(t, "c", entries[2].Content)

	kept, err := repos.Tabs.ListPrintEntries(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestSingleActiveSession(t *testing.T) {
	repos := New()
	ctx := context.Background()
	require.NoError(t, repos.Sessions.Create(ctx, &model.PosSession{Status: model.PosSessionActive}))
	err := repos.Sessions.Create(ctx, &model.PosSession{Status: model.PosSessionActive})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestConsumeItemDecrementsInPlace(t *testing.T) {
	repos := New()
	ctx := context.Background()
	tab, err := repos.Tabs.GetOrCreate(ctx, "table-1")
	require.NoError(t, err)

	line, err := repos.Tabs.IncrementItem(ctx, tab.ID, "coffee", nil, 3)
	require.NoError(t, err)
	require.NoError(t, repos.Tabs.MarkPrinted(ctx, tab.ID, line.ID, 3))
	// a terminal adds one more after the order for three was taken
	_, err = repos.Tabs.IncrementItem(ctx, tab.ID, "coffee", nil, 1)
	require.NoError(t, err)

	require.NoError(t, repos.Tabs.ConsumeItem(ctx, tab.ID, line.ID, 2))
	item, err := repos.Tabs.FindItem(ctx, tab.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, 1, item.PrintedQuantity)
	assert.Equal(t, model.PrintStatusAcknowledged, item.PrintStatus)

	require.NoError(t, repos.Tabs.ConsumeItem(ctx, tab.ID, line.ID, 1))
	item, err = repos.Tabs.FindItem(ctx, tab.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity)
	assert.Zero(t, item.PrintedQuantity)
	assert.Equal(t, model.PrintStatusPending, item.PrintStatus)

	require.NoError(t, repos.Tabs.ConsumeItem(ctx, tab.ID, line.ID, 1))
	_, err = repos.Tabs.FindItem(ctx, tab.ID, line.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.NoError(t, repos.Tabs.ConsumeItem(ctx, tab.ID, line.ID, 1))
}

func TestMarkPrintedZeroKeepsLinePending(t *testing.T) {
	repos := New()
	ctx := context.Background()
	tab, err := repos.Tabs.GetOrCreate(ctx, "table-1")
	require.NoError(t, err)
	line, err := repos.Tabs.IncrementItem(ctx, tab.ID, "coffee", nil, 1)
	require.NoError(t, err)

	require.NoError(t, repos.Tabs.MarkPrinted(ctx, tab.ID, line.ID, 0))
	item, err := repos.Tabs.FindItem(ctx, tab.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PrintStatusPending, item.PrintStatus)
}
