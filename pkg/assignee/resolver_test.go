package assignee_test

import (
	"context"
	"testing"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/assignee"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type fakeDirectory struct {
	users map[string]models.User
	calls int
}

func (d *fakeDirectory) GetUser(_ context.Context, id string) (models.User, error) {
	d.calls++
	u, ok := d.users[id]
	if !ok {
		return models.User{}, errors.Errorf("user %s not found", id)
	}
	return u, nil
}

func strptr(s string) *string { return &s }

// requester -> a -> b -> c
func chainDirectory() *fakeDirectory {
	return &fakeDirectory{users: map[string]models.User{
		"requester": {ID: "requester", ManagerID: strptr("a")},
		"a":         {ID: "a", ManagerID: strptr("b")},
		"b":         {ID: "b", ManagerID: strptr("c")},
		"c":         {ID: "c"},
	}}
}

func TestResolve_StaticRolePassthrough(t *testing.T) {
	r := assignee.NewResolver(chainDirectory())
	id, role, err := r.Resolve(context.Background(), "it_admin", "requester")
	assert.NoError(t, err)
	assert.Nil(t, id)
	if assert.NotNil(t, role) {
		assert.Equal(t, "it_admin", *role)
	}
}

func TestResolve_DirectManager(t *testing.T) {
	dir := chainDirectory()
	r := assignee.NewResolver(dir)
	id, role, err := r.Resolve(context.Background(), "DIRECT_MANAGER", "requester")
	assert.NoError(t, err)
	assert.Nil(t, role)
	if assert.NotNil(t, id) {
		assert.Equal(t, "a", *id)
	}
	assert.Equal(t, 1, dir.calls) // exactly one hop
}

func TestResolve_ManagerLevelN(t *testing.T) {
	r := assignee.NewResolver(chainDirectory())

	id, _, err := r.Resolve(context.Background(), "MANAGER_LEVEL_2", "requester")
	assert.NoError(t, err)
	assert.Equal(t, "b", *id)

	id, _, err = r.Resolve(context.Background(), "MANAGER_LEVEL_3", "requester")
	assert.NoError(t, err)
	assert.Equal(t, "c", *id)
}

func TestResolve_BrokenChain(t *testing.T) {
	dir := &fakeDirectory{users: map[string]models.User{
		"requester": {ID: "requester", ManagerID: strptr("a")},
		"a":         {ID: "a"}, // no manager
	}}
	r := assignee.NewResolver(dir)

	id, role, err := r.Resolve(context.Background(), "MANAGER_LEVEL_2", "requester")
	assert.Nil(t, id)
	assert.Nil(t, role)
	var hbe *assignee.HierarchyBrokenError
	if assert.ErrorAs(t, err, &hbe) {
		assert.Equal(t, "a", hbe.UserID)
		assert.Contains(t, hbe.Error(), "no manager at level 2 of 2")
	}
}

func TestResolve_CycleDetected(t *testing.T) {
	dir := &fakeDirectory{users: map[string]models.User{
		"requester": {ID: "requester", ManagerID: strptr("a")},
		"a":         {ID: "a", ManagerID: strptr("requester")},
	}}
	r := assignee.NewResolver(dir)

	_, _, err := r.Resolve(context.Background(), "MANAGER_LEVEL_3", "requester")
	var hbe *assignee.HierarchyBrokenError
	if assert.ErrorAs(t, err, &hbe) {
		assert.Contains(t, hbe.Error(), "cycle detected")
	}
}

func TestResolve_MaxDepthExceeded(t *testing.T) {
	r := assignee.NewResolver(chainDirectory()).WithMaxDepth(2)
	_, _, err := r.Resolve(context.Background(), "MANAGER_LEVEL_3", "requester")
	var hbe *assignee.HierarchyBrokenError
	if assert.ErrorAs(t, err, &hbe) {
		assert.Contains(t, hbe.Error(), "exceeds max depth 2")
	}
}

func TestResolve_UnrecognizedLevelTokenFallsBackToRole(t *testing.T) {
	r := assignee.NewResolver(chainDirectory())
	id, role, err := r.Resolve(context.Background(), "MANAGER_LEVEL_X", "requester")
	assert.NoError(t, err)
	assert.Nil(t, id)
	assert.Equal(t, "MANAGER_LEVEL_X", *role)
}
