package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finestructure/historyview/internal/database"
	"github.com/finestructure/historyview/internal/database/repository"
)

func openTestDB(t *testing.T) *repository.PeerRepo {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewPeerRepo(db)
}

func TestPeerRepoRememberAndList(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	repo := openTestDB(t)

	require.NoError(t, repo.Remember(ctx, "10.0.0.1:7777", "alpha"))
	require.NoError(t, repo.Remember(ctx, "10.0.0.2:7777", "beta"))

	peers, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 2)

	got, err := repo.Get(ctx, "10.0.0.1:7777")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "alpha", got.Name)
	require.True(t, got.AutoDial)
}

func TestPeerRepoRememberKeepsNameOnEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestDB(t)

	require.NoError(t, repo.Remember(ctx, "h:1", "alpha"))
	require.NoError(t, repo.Remember(ctx, "h:1", ""))

	got, err := repo.Get(ctx, "h:1")
	require.NoError(t, err)
	require.Equal(t, "alpha", got.Name)

	require.NoError(t, repo.Remember(ctx, "h:1", "renamed"))
	got, err = repo.Get(ctx, "h:1")
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Name)
}

func TestPeerRepoAutoDialAndForget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestDB(t)

	require.NoError(t, repo.Remember(ctx, "h:1", "a"))
	require.NoError(t, repo.Remember(ctx, "h:2", "b"))
	require.NoError(t, repo.SetAutoDial(ctx, "h:2", false))

	dial, err := repo.AutoDial(ctx)
	require.NoError(t, err)
	require.Len(t, dial, 1)
	require.Equal(t, "h:1", dial[0].Addr)

	require.NoError(t, repo.Forget(ctx, "h:1"))
	got, err := repo.Get(ctx, "h:1")
	require.NoError(t, err)
	require.Nil(t, got)

	require.Error(t, repo.Remember(ctx, "  ", "x"))
}
