package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/live"
	"settlement/pkg/apperror"
)

func TestCartAddItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, AddCartItemRequest{ProductID: "burger", Quantity: 2}, guest)
	require.NoError(t, err)
	item, err := f.carts.AddItem(ctx, AddCartItemRequest{ProductID: "burger"}, guest)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	_, err = f.carts.AddItem(ctx, AddCartItemRequest{ProductID: "burger"}, guest)
	requireKind(t, err, apperror.KindValidation)

	cart, err := f.carts.GetCart(ctx, guest)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.True(t, f.publisher.saw(live.UserTopic(guest.SessionID)))
}

func TestCartClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.carts.Clear(ctx, guest))

	_, err := f.carts.AddItem(ctx, AddCartItemRequest{ProductID: "coffee"}, guest)
	require.NoError(t, err)
	require.NoError(t, f.carts.Clear(ctx, guest))

	cart, err := f.carts.GetCart(ctx, guest)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}
