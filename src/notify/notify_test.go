package notify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"vmp/src/notify"
	"vmp/src/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	batches [][]string
	invalid map[string]bool
	err     error
}

func (d *fakeDispatcher) Send(_ context.Context, tokens []string, msg notify.Message) (notify.Result, error) {
	d.batches = append(d.batches, tokens)
	if d.err != nil {
		return notify.Result{}, d.err
	}
	var res notify.Result
	for _, t := range tokens {
		if d.invalid[t] {
			res.Failure++
			res.InvalidTokens = append(res.InvalidTokens, t)
			continue
		}
		res.Success++
	}
	return res, nil
}

func TestNotifyUsersRemovesInvalidTokens(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	require.NoError(t, store.SaveDeviceToken(ctx, 1, "tok-a", "ios"))
	require.NoError(t, store.SaveDeviceToken(ctx, 1, "tok-b", "android"))
	require.NoError(t, store.SaveDeviceToken(ctx, 2, "tok-c", "web"))
	require.NoError(t, store.SaveDeviceToken(ctx, 3, "tok-d", "web"))
	dispatcher := &fakeDispatcher{invalid: map[string]bool{"tok-b": true}}

	res := notify.NewService(store, dispatcher).NotifyUsers(ctx, []uint{1, 2}, "Order confirmed", "Enjoy", nil)

	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Failure)
	assert.Equal(t, []string{"tok-b"}, res.InvalidTokens)
	left, err := store.ListDeviceTokens(ctx, []uint{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a", "tok-c", "tok-d"}, left)
}

func TestNotifyUsersBatches(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	for i := 0; i < 1200; i++ {
		require.NoError(t, store.SaveDeviceToken(ctx, 9, fmt.Sprintf("tok-%04d", i), "android"))
	}
	dispatcher := &fakeDispatcher{}

	res := notify.NewService(store, dispatcher).NotifyUsers(ctx, []uint{9}, "t", "b", nil)

	require.Len(t, dispatcher.batches, 3)
	assert.Len(t, dispatcher.batches[0], 500)
	assert.Len(t, dispatcher.batches[1], 500)
	assert.Len(t, dispatcher.batches[2], 200)
	assert.Equal(t, 1200, res.Success)
}

func TestNotifyUsersSwallowsDispatchErrors(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	require.NoError(t, store.SaveDeviceToken(ctx, 1, "tok-a", "ios"))
	dispatcher := &fakeDispatcher{err: errors.New("unavailable")}

	res := notify.NewService(store, dispatcher).NotifyUsers(ctx, []uint{1}, "t", "b", nil)

	assert.Equal(t, notify.Result{Failure: 1}, res)
}

func TestNotifyUsersWithoutDispatcher(t *testing.T) {
	res := notify.NewService(testutil.NewStore(), nil).NotifyUsers(context.Background(), []uint{1}, "t", "b", nil)
	assert.Equal(t, notify.Result{}, res)

	var svc *notify.Service
	assert.Equal(t, notify.Result{}, svc.NotifyUsers(context.Background(), []uint{1}, "t", "b", nil))
}
