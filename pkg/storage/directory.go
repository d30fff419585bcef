package storage

import (
	"context"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
)

// Directory adapts a Store's user rows to the directory contract the
// assignee resolver consumes. One handle serves every hop of a hierarchy
// walk.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

func (d *Directory) GetUser(_ context.Context, id string) (models.User, error) {
	return d.store.GetUser(id)
}
