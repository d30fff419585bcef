package service

import (
	"fmt"

	"github.com/alhafibarefoot/HelpDesk-sub001/internal/log"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/graph"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/pkg/errors"
)

// DefinitionService manages the workflow definition lifecycle: draft
// revisions come in, get validated, and are published for execution.
type DefinitionService struct {
	store storage.Store
}

func NewDefinitionService(store storage.Store) *DefinitionService {
	return &DefinitionService{store: store}
}

// CreateDefinition validates the graph and stores it as a new draft revision.
func (s *DefinitionService) CreateDefinition(def models.WorkflowDefinition) (id int64, err error) {
	if def.Name == "" {
		return 0, errors.New("definition name cannot be empty")
	}
	if len(def.Name) > 100 {
		return 0, errors.New("definition name too long (max 100 characters)")
	}
	if verrs := graph.New(def).Validate(); len(verrs) > 0 {
		return 0, errors.Errorf("invalid workflow graph: %v", verrs)
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				log.GetLogger().Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			log.GetLogger().Errorf("Failed to commit: %v", commitErr)
			err = commitErr // Update the named return value
		}
	}()

	if def.Version == 0 {
		def.Version = 1
	}
	def.Status = models.DraftDefinitionStatus
	id, err = txStore.SaveDefinition(def)
	if err != nil {
		return 0, err
	}
	log.GetLogger().Infof("Created definition '%s' v%d with ID %d", def.Name, def.Version, id)
	return id, nil
}

// PublishDefinition re-validates a draft and marks it executable. Published
// definitions are immutable; changes go into a new revision.
func (s *DefinitionService) PublishDefinition(id int64) (err error) {
	if id <= 0 {
		return errors.New("definition ID must be positive")
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				log.GetLogger().Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			log.GetLogger().Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	def, err := txStore.GetDefinition(id)
	if err != nil {
		return err
	}
	if def.Status == models.PublishedDefinitionStatus {
		return nil // already published
	}
	if verrs := graph.New(def).Validate(); len(verrs) > 0 {
		return errors.Errorf("cannot publish invalid workflow graph: %v", verrs)
	}
	if err := txStore.UpdateDefinitionStatus(def.ID, models.PublishedDefinitionStatus); err != nil {
		return err
	}

	log.GetLogger().Infof("Published definition ID %d ('%s' v%d)", id, def.Name, def.Version)
	return nil
}

// Validate runs graph validation without persisting anything.
func (s *DefinitionService) Validate(def models.WorkflowDefinition) []graph.ValidationError {
	return graph.New(def).Validate()
}

func (s *DefinitionService) GetDefinition(id int64) (models.WorkflowDefinition, error) {
	def, err := s.store.GetDefinition(id)
	if err != nil {
		return models.WorkflowDefinition{}, fmt.Errorf("get definition %d: %w", id, err)
	}
	return def, nil
}

func (s *DefinitionService) ListDefinitions() ([]models.WorkflowDefinition, error) {
	return s.store.ListDefinitions()
}
