package engine_test

import (
	"testing"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/engine"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func TestSynchronizer_JoinReadiness(t *testing.T) {
	store := storage.NewMockStore()
	sync := engine.NewSynchronizer()

	assert.NoError(t, sync.OpenBranches(store, "req-1", "fork", []string{"a", "b", "c"}))

	assert.NoError(t, sync.CompleteBranch(store, "req-1", "fork", "a"))
	assert.NoError(t, sync.CompleteBranch(store, "req-1", "fork", "b"))

	ready, err := sync.IsJoinReady(store, "req-1", "fork", models.JoinAll)
	assert.NoError(t, err)
	assert.False(t, ready, "AND join must wait for the third branch")

	ready, err = sync.IsJoinReady(store, "req-1", "fork", models.JoinAny)
	assert.NoError(t, err)
	assert.True(t, ready, "OR join is ready after the first completion")

	assert.NoError(t, sync.CompleteBranch(store, "req-1", "fork", "c"))
	ready, err = sync.IsJoinReady(store, "req-1", "fork", models.JoinAll)
	assert.NoError(t, err)
	assert.True(t, ready)
}

func TestSynchronizer_CompleteBranchIsIdempotent(t *testing.T) {
	store := storage.NewMockStore()
	sync := engine.NewSynchronizer()

	assert.NoError(t, sync.OpenBranches(store, "req-1", "fork", []string{"a", "b"}))
	assert.NoError(t, sync.CompleteBranch(store, "req-1", "fork", "a"))
	// re-delivered completion event
	assert.NoError(t, sync.CompleteBranch(store, "req-1", "fork", "a"))

	ready, err := sync.IsJoinReady(store, "req-1", "fork", models.JoinAll)
	assert.NoError(t, err)
	assert.False(t, ready, "duplicate completion must not count twice")

	branches, err := store.GetBranches("req-1", "fork")
	assert.NoError(t, err)
	completed := 0
	for _, b := range branches {
		if b.Status == models.CompletedBranchStatus {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestSynchronizer_NoBranchesMeansNotReady(t *testing.T) {
	store := storage.NewMockStore()
	sync := engine.NewSynchronizer()

	ready, err := sync.IsJoinReady(store, "req-1", "fork", models.JoinAll)
	assert.NoError(t, err)
	assert.False(t, ready)
}

func TestSynchronizer_ResetAllowsAFreshPass(t *testing.T) {
	store := storage.NewMockStore()
	sync := engine.NewSynchronizer()

	assert.NoError(t, sync.OpenBranches(store, "req-1", "fork", []string{"a", "b"}))
	assert.NoError(t, sync.CompleteBranch(store, "req-1", "fork", "a"))
	assert.NoError(t, sync.CompleteBranch(store, "req-1", "fork", "b"))

	assert.NoError(t, sync.Reset(store, "req-1", "fork"))

	// with the rows gone the join cannot fire again for this pass
	ready, err := sync.IsJoinReady(store, "req-1", "fork", models.JoinAll)
	assert.NoError(t, err)
	assert.False(t, ready)

	// and a revision loop can open the same fork again
	assert.NoError(t, sync.OpenBranches(store, "req-1", "fork", []string{"a", "b"}))
	branches, err := store.GetBranches("req-1", "fork")
	assert.NoError(t, err)
	assert.Len(t, branches, 2)
	for _, b := range branches {
		assert.Equal(t, models.PendingBranchStatus, b.Status)
	}
}
