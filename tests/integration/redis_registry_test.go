// Package integration provides end-to-end tests for the StoreFleet backend.
// This file verifies registry persistence and token revocation against a
// real Redis instance.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	registryapp "github.com/storefleet/backend/internal/application/registry"
	"github.com/storefleet/backend/internal/domain/registry"
	"github.com/storefleet/backend/internal/infrastructure/auth"
	"github.com/storefleet/backend/internal/infrastructure/persistence"
	"github.com/storefleet/backend/tests/testutil"
)

func TestRedisRegistryRoundTrip(t *testing.T) {
	tr := NewTestRedis(t)
	kv := persistence.NewRedisKVWithClient(tr.Client)
	repo := persistence.NewKVStoreRepository(kv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, kv.Ping(ctx))

	// Empty registry reads as an empty list, not an error
	stores, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, stores)

	alpha, err := registry.NewStore("Alpha Shop", "https://alpha.example.com", "ck_alpha", "cs_alpha", true)
	require.NoError(t, err)
	beta, err := registry.NewStore("Beta Shop", "https://beta.example.com", "ck_beta", "cs_beta", false)
	require.NoError(t, err)

	require.NoError(t, repo.Insert(ctx, alpha))
	require.NoError(t, repo.Insert(ctx, beta))

	stores, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "Alpha Shop", stores[0].Name)
	assert.Equal(t, "Beta Shop", stores[1].Name)

	// Health fields survive the round trip
	responseTime := int64(42)
	checkedAt := time.Now().UTC().Truncate(time.Second)
	alpha.ApplyHealth(registry.HealthReport{
		Status:         registry.StoreStatusOnline,
		ResponseTimeMs: &responseTime,
		CheckedAt:      checkedAt,
	})
	require.NoError(t, repo.Update(ctx, alpha))

	found, err := repo.FindByID(ctx, alpha.ID)
	require.NoError(t, err)
	assert.Equal(t, registry.StoreStatusOnline, found.Status)
	require.NotNil(t, found.LastResponseTimeMs)
	assert.Equal(t, responseTime, *found.LastResponseTimeMs)
	require.NotNil(t, found.LastCheckedAt)
	assert.True(t, found.LastCheckedAt.Equal(checkedAt))

	require.NoError(t, repo.Delete(ctx, beta.ID))

	_, err = repo.FindByID(ctx, beta.ID)
	assert.ErrorIs(t, err, registry.ErrStoreNotFound)

	stores, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func TestRedisRegistryNotifiesObservers(t *testing.T) {
	tr := NewTestRedis(t)
	kv := persistence.NewRedisKVWithClient(tr.Client)
	repo := persistence.NewKVStoreRepository(kv)
	service := registryapp.NewStoreService(repo, nil, zap.NewNop())

	observerID, ch := service.Subscribe()
	defer service.Unsubscribe(observerID)
	recorder := testutil.NewSnapshotRecorder(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	created, err := service.CreateStore(ctx, registryapp.CreateStoreInput{
		Name:           "Gamma Shop",
		BaseURL:        "https://gamma.example.com",
		ConsumerKey:    "ck_gamma",
		ConsumerSecret: "cs_gamma",
		IsActive:       true,
	})
	require.NoError(t, err)

	require.True(t, testutil.WaitForSnapshotCount(t, recorder, 1, 2*time.Second))
	require.Len(t, recorder.Last(), 1)
	assert.Equal(t, created.ID, recorder.Last()[0].ID)

	// Toggling and deleting each push a fresh full snapshot
	_, err = service.ToggleActive(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, testutil.WaitForSnapshotCount(t, recorder, 2, 2*time.Second))
	assert.False(t, recorder.Last()[0].IsActive)

	require.NoError(t, service.DeleteStore(ctx, created.ID))
	require.True(t, testutil.WaitForSnapshotCount(t, recorder, 3, 2*time.Second))
	assert.Empty(t, recorder.Last())
}

func TestRedisTokenBlacklist(t *testing.T) {
	tr := NewTestRedis(t)
	blacklist := auth.NewRedisTokenBlacklistWithClient(tr.Client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	revoked, err := blacklist.IsRevoked(ctx, "jti-unknown")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, blacklist.Revoke(ctx, "jti-logout", time.Minute))

	revoked, err = blacklist.IsRevoked(ctx, "jti-logout")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Entries expire with their TTL so the blacklist does not grow forever
	require.NoError(t, blacklist.Revoke(ctx, "jti-ephemeral", 100*time.Millisecond))
	require.Eventually(t, func() bool {
		revoked, err := blacklist.IsRevoked(ctx, "jti-ephemeral")
		return err == nil && !revoked
	}, 2*time.Second, 50*time.Millisecond, "revocation entry should expire")

	// Session cutoff revokes tokens issued before it
	issuedBefore := time.Now().Add(-time.Minute)
	require.NoError(t, blacklist.RevokeAllSessions(ctx, time.Minute))

	sessionRevoked, err := blacklist.IsSessionRevoked(ctx, issuedBefore)
	require.NoError(t, err)
	assert.True(t, sessionRevoked)

	sessionRevoked, err = blacklist.IsSessionRevoked(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, sessionRevoked)
}
