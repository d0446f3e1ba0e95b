package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// ProjectStore хранит копии агрегатов в памяти с той же семантикой версий, что и PostgreSQL.
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]*entity.Project
}

func NewProjectStore() *ProjectStore {
	return &ProjectStore{projects: make(map[uuid.UUID]*entity.Project)}
}

func (s *ProjectStore) Create(_ context.Context, p *entity.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; ok {
		return apperror.New(apperror.ErrCodeConflict, "проект уже существует")
	}
	p.Version = 1
	s.projects[p.ID] = p.Clone()
	return nil
}

func (s *ProjectStore) Update(_ context.Context, p *entity.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.projects[p.ID]
	if !ok {
		return apperror.ErrProjectNotFound
	}
	if current.Version != p.Version {
		return repository.ErrVersionConflict
	}
	p.Version++
	s.projects[p.ID] = p.Clone()
	return nil
}

func (s *ProjectStore) FindByID(_ context.Context, id uuid.UUID) (*entity.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, apperror.ErrProjectNotFound
	}
	return p.Clone(), nil
}

func (s *ProjectStore) ListByParticipant(_ context.Context, userID uuid.UUID, filter repository.ProjectFilter) ([]*entity.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Project
	for _, p := range s.projects {
		if !p.IsParticipant(userID) {
			continue
		}
		if filter.Status != "" && string(p.Status) != filter.Status {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *ProjectStore) ListAwaitingReview(_ context.Context, limit int) ([]*entity.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Project
	for _, p := range s.projects {
		if !p.Status.AcceptsMilestoneWork() || len(p.MilestonesAwaitingReview()) == 0 {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return paginate(out, limit, 0), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
