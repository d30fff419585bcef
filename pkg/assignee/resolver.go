// Package assignee resolves a step's declarative assignee rule to a concrete
// user or a static role.
package assignee

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/pkg/errors"
)

const (
	ruleDirectManager      = "DIRECT_MANAGER"
	ruleManagerLevelPrefix = "MANAGER_LEVEL_"

	// DefaultMaxDepth bounds the manager-chain walk. A deeper chain is a
	// data-integrity bug, not something to loop on.
	DefaultMaxDepth = 10
)

// Directory is the external user-management collaborator. The resolver only
// reads from it.
type Directory interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// HierarchyBrokenError reports a manager chain that cannot satisfy the rule:
// a missing manager link, a cycle, or a chain deeper than the configured cap.
// It is terminal and requires an administrator to fix the directory data.
type HierarchyBrokenError struct {
	Rule   string
	UserID string // user at which the walk stopped
	Detail string
}

func (e *HierarchyBrokenError) Error() string {
	return fmt.Sprintf("hierarchy broken resolving %s at user %s: %s", e.Rule, e.UserID, e.Detail)
}

// Resolver maps assignee rules to users via the directory.
type Resolver struct {
	dir      Directory
	maxDepth int
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir, maxDepth: DefaultMaxDepth}
}

// WithMaxDepth overrides the hierarchy walk cap.
func (r *Resolver) WithMaxDepth(depth int) *Resolver {
	r.maxDepth = depth
	return r
}

// Resolve returns either a concrete user id (hierarchy rules) or the rule
// itself as a static role (everything else). Exactly one of the two results
// is non-nil on success.
func (r *Resolver) Resolve(ctx context.Context, rule string, requesterID string) (assigneeID *string, assigneeRole *string, err error) {
	level, ok := parseLevel(rule)
	if !ok {
		role := rule
		return nil, &role, nil
	}
	if level > r.maxDepth {
		return nil, nil, &HierarchyBrokenError{
			Rule:   rule,
			UserID: requesterID,
			Detail: fmt.Sprintf("target level %d exceeds max depth %d", level, r.maxDepth),
		}
	}

	// Exactly level hops from the requester, reusing the one directory
	// handle for every fetch.
	visited := map[string]struct{}{requesterID: {}}
	currentID := requesterID
	for hop := 1; hop <= level; hop++ {
		user, err := r.dir.GetUser(ctx, currentID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "fetch user %s while resolving %s", currentID, rule)
		}
		if user.ManagerID == nil || *user.ManagerID == "" {
			return nil, nil, &HierarchyBrokenError{
				Rule:   rule,
				UserID: user.ID,
				Detail: fmt.Sprintf("no manager at level %d of %d", hop, level),
			}
		}
		managerID := *user.ManagerID
		if _, seen := visited[managerID]; seen {
			return nil, nil, &HierarchyBrokenError{
				Rule:   rule,
				UserID: managerID,
				Detail: "cycle detected in manager chain",
			}
		}
		visited[managerID] = struct{}{}
		currentID = managerID
	}
	return &currentID, nil, nil
}

// parseLevel recognizes the dynamic hierarchy tokens. DIRECT_MANAGER is
// level 1; MANAGER_LEVEL_N is level N.
func parseLevel(rule string) (int, bool) {
	if rule == ruleDirectManager {
		return 1, true
	}
	if !strings.HasPrefix(rule, ruleManagerLevelPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(rule, ruleManagerLevelPrefix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
