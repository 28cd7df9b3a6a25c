package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/ports"
)

// ProjectService handles project-related business logic.
type ProjectService struct {
	projects ports.ProjectRepository
	cache    ports.CacheService
}

// NewProjectService creates a new ProjectService.
func NewProjectService(projects ports.ProjectRepository, cache ports.CacheService) *ProjectService {
	return &ProjectService{projects: projects, cache: cache}
}

// Create validates and persists a new project.
func (s *ProjectService) Create(ctx context.Context, project *domain.Project) error {
	project.Name = strings.TrimSpace(project.Name)
	if project.Name == "" {
		return fmt.Errorf("project name must not be empty")
	}
	if project.OwnerID == "" {
		return fmt.Errorf("project owner is required")
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, "projects:owner:"+project.OwnerID)
	}
	return nil
}

// GetByID returns a single project.
func (s *ProjectService) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	return s.projects.GetByID(ctx, id)
}

// ListByOwner returns the projects a user owns.
func (s *ProjectService) ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	cacheKey := "projects:owner:" + ownerID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var projects []domain.Project
			if err := json.Unmarshal(data, &projects); err == nil {
				return projects, nil
			}
		}
	}

	projects, err := s.projects.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	// Cache for 2 minutes (project lists change on create/delete only)
	if s.cache != nil {
		if data, err := json.Marshal(projects); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 120)
		}
	}

	return projects, nil
}

// Delete removes a project and its pins.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, "projects:owner:"+project.OwnerID)
	}
	return nil
}
