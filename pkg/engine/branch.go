package engine

import (
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/pkg/errors"
)

// Synchronizer tracks fork/join completion over branch rows. It holds no
// store of its own: every call receives the store of the advancing
// transaction, so branch rows commit or roll back together with the step
// writes they belong to. Rows live only for the duration of one parallel
// pass; Reset clears them when the join fires.
type Synchronizer struct{}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{}
}

// OpenBranches creates one pending branch row per spawned path.
func (s *Synchronizer) OpenBranches(store storage.Store, requestID, forkNodeID string, branchNodeIDs []string) error {
	for _, branchNodeID := range branchNodeIDs {
		b := models.Branch{
			RequestID:    requestID,
			ForkNodeID:   forkNodeID,
			BranchNodeID: branchNodeID,
			Status:       models.PendingBranchStatus,
		}
		if err := store.SaveBranch(b); err != nil {
			return errors.Wrapf(err, "open branch %s of fork %s", branchNodeID, forkNodeID)
		}
	}
	return nil
}

// CompleteBranch flips one branch to completed. Completing an already
// completed branch is a no-op so re-delivered completion events cannot
// corrupt state.
func (s *Synchronizer) CompleteBranch(store storage.Store, requestID, forkNodeID, branchNodeID string) error {
	return store.CompleteBranch(requestID, forkNodeID, branchNodeID)
}

// IsJoinReady reports whether the join fed by forkNodeID may proceed:
// AND requires every branch completed, OR requires at least one. A fork
// with no open rows (never entered, or already reset) is never ready.
func (s *Synchronizer) IsJoinReady(store storage.Store, requestID, forkNodeID string, policy models.JoinPolicy) (bool, error) {
	branches, err := store.GetBranches(requestID, forkNodeID)
	if err != nil {
		return false, errors.Wrapf(err, "load branches of fork %s", forkNodeID)
	}
	if len(branches) == 0 {
		return false, nil
	}
	completed := 0
	for _, b := range branches {
		if b.Status == models.CompletedBranchStatus {
			completed++
		}
	}
	if policy == models.JoinAny {
		return completed > 0, nil
	}
	return completed == len(branches), nil
}

// Reset deletes the fork's branch rows once its join has fired. With no rows
// left the join cannot fire again for this pass, and a later revision loop
// back through the fork opens a fresh set.
func (s *Synchronizer) Reset(store storage.Store, requestID, forkNodeID string) error {
	return errors.Wrapf(store.DeleteBranches(requestID, forkNodeID), "reset branches of fork %s", forkNodeID)
}
