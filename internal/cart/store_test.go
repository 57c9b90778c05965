package cart

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveAndGetRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	expires := time.Now().Add(48 * time.Hour).UTC()

	h.seed(t, "user-1", expires, Item{ProductID: "p2", Quantity: 1}, Item{ProductID: "p1", Quantity: 4})

	cart, err := h.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", cart.UserID)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "p2", cart.Items[0].ProductID, "items keep addedAt order")
	assert.Equal(t, 4, cart.Items[1].Quantity)
	assert.True(t, expires.Equal(cart.ExpiresAt))

	key := h.client.CartKey(UserKey("user-1"))
	assert.True(t, h.mr.Exists(key))
	assert.Equal(t, 30*24*time.Hour, h.mr.TTL(key))
	for _, k := range h.mr.Keys() {
		assert.NotContains(t, k, "user-1", "raw user ids must not appear in key names")
	}
}

func TestStoreSaveReplacesWholeRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	h.seed(t, "user-1", expires, Item{ProductID: "p1", Quantity: 1}, Item{ProductID: "p2", Quantity: 1})
	h.seed(t, "user-1", expires, Item{ProductID: "p3", Quantity: 2})

	cart, err := h.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p3", cart.Items[0].ProductID)
}

func TestStoreGetCartNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.GetCart(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestStoreSkipsMalformedItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "user-1", time.Now().Add(time.Hour), Item{ProductID: "p1", Quantity: 2})

	key := h.client.CartKey(UserKey("user-1"))
	h.mr.HSet(key, "item:bad", "{not json")
	h.mr.HSet(key, "item:zero", `{"productId":"zero","quantity":0}`)

	cart, err := h.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p1", cart.Items[0].ProductID)
}

func TestStoreFailsHardWhenRedisIsDown(t *testing.T) {
	h := newHarness(t)
	h.mr.Close()

	_, err := h.store.GetCart(context.Background(), "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCartNotFound)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, pkgerrors.IsCode(h.store.Ping(context.Background()), pkgerrors.CodeDependency))
}

func TestStoreRemoveItemKeepsOtherLines(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "user-1", time.Now().Add(time.Hour), Item{ProductID: "p1", Quantity: 1}, Item{ProductID: "p2", Quantity: 3})

	require.NoError(t, h.store.RemoveItem(ctx, "user-1", "p1"))

	cart, err := h.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p2", cart.Items[0].ProductID)
	assert.Equal(t, 3, cart.Items[0].Quantity)
}

func TestStoreRemoveItemRefreshesUpdatedAt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "user-1", time.Now().Add(time.Hour), Item{ProductID: "p1", Quantity: 1}, Item{ProductID: "p2", Quantity: 1})
	stamp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	h.store.now = func() time.Time { return stamp }

	require.NoError(t, h.store.RemoveItem(ctx, "user-1", "p2"))

	cart, err := h.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, stamp.Equal(cart.UpdatedAt))
	assert.Greater(t, h.mr.TTL(h.client.CartKey(UserKey("user-1"))), 29*24*time.Hour)
}

func TestStoreRemoveItemDeletesRecordWithLastLine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "user-1", time.Now().Add(time.Hour), Item{ProductID: "p2", Quantity: 1})

	require.NoError(t, h.store.RemoveItem(ctx, "user-1", "p2"))

	assert.False(t, h.mr.Exists(h.client.CartKey(UserKey("user-1"))))
	_, err := h.store.GetCart(ctx, "user-1")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestStoreRemoveItemDoesNotRecreateDeletedCart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "user-1", time.Now().Add(time.Hour), Item{ProductID: "p1", Quantity: 1}, Item{ProductID: "p2", Quantity: 1})
	require.NoError(t, h.store.ClearCart(ctx, "user-1"))

	require.NoError(t, h.store.RemoveItem(ctx, "user-1", "p2"))

	assert.False(t, h.mr.Exists(h.client.CartKey(UserKey("user-1"))))
}

func TestStoreReservationLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.store.GetReservation(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, h.store.SetReservation(ctx, "user-1", "res-1", 15*time.Minute))
	id, err = h.store.GetReservation(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "res-1", id)
	assert.Equal(t, 15*time.Minute, h.mr.TTL(h.client.CartReservationKey(UserKey("user-1"))))

	require.NoError(t, h.store.ClearReservation(ctx, "user-1"))
	id, err = h.store.GetReservation(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestStoreExpiryNoticeMarker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sent, err := h.store.HasExpiryNotice(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, h.store.MarkExpiryNotice(ctx, "user-1", 2))
	sent, err = h.store.HasExpiryNotice(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 24*time.Hour, h.mr.TTL(h.client.ExpiryNoticeKey(UserKey("user-1"), 2)))

	other, err := h.store.HasExpiryNotice(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.False(t, other, "markers are per days-until-expiration")
}

func TestStoreScanResolvesOwners(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, user := range []string{"alice", "bob", "carol"} {
		h.seed(t, user, time.Now().Add(time.Hour), Item{ProductID: "p1", Quantity: 1})
	}
	require.NoError(t, h.store.SetReservation(ctx, "alice", "res", time.Minute))

	var owners []string
	err := h.store.ScanCartKeys(ctx, func(keys []string) error {
		for _, key := range keys {
			owner, err := h.store.UserIDForKey(ctx, key)
			if err != nil {
				return err
			}
			owners = append(owners, owner)
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(owners)
	assert.Equal(t, []string{"alice", "bob", "carol"}, owners)

	_, err = h.store.UserIDForKey(ctx, h.client.CartKey("missing"))
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestWithUserLockReportsBusyCart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.mr.Set(h.client.CartLockKey(UserKey("user-1")), "someone-else"))

	called := false
	err := h.store.WithUserLock(ctx, "user-1", func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.True(t, strings.Contains(err.Error(), "busy"))
}

func TestWithUserLockReleasesOnlyOwnToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lockKey := h.client.CartLockKey(UserKey("user-1"))

	err := h.store.WithUserLock(ctx, "user-1", func(context.Context) error {
		assert.True(t, h.mr.Exists(lockKey))
		// Simulate the lock expiring and another caller taking it over.
		require.NoError(t, h.mr.Set(lockKey, "other-owner"))
		return nil
	})
	require.NoError(t, err)

	value, getErr := h.mr.Get(lockKey)
	require.NoError(t, getErr)
	assert.Equal(t, "other-owner", value)
}
