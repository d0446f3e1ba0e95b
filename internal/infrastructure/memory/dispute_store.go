package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type DisputeStore struct {
	mu       sync.RWMutex
	disputes map[uuid.UUID]*entity.Dispute
}

func NewDisputeStore() *DisputeStore {
	return &DisputeStore{disputes: make(map[uuid.UUID]*entity.Dispute)}
}

func (s *DisputeStore) Create(_ context.Context, d *entity.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.disputes {
		if existing.MilestoneID == d.MilestoneID && existing.Status.IsOpen() {
			return apperror.New(apperror.ErrCodeConflict, "по этапу уже открыт спор")
		}
	}
	d.Version = 1
	s.disputes[d.ID] = d.Clone()
	return nil
}

func (s *DisputeStore) Update(_ context.Context, d *entity.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.disputes[d.ID]
	if !ok {
		return apperror.ErrDisputeNotFound
	}
	if current.Version != d.Version {
		return repository.ErrVersionConflict
	}
	d.Version++
	s.disputes[d.ID] = d.Clone()
	return nil
}

func (s *DisputeStore) FindByID(_ context.Context, id uuid.UUID) (*entity.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.disputes[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	return d.Clone(), nil
}

func (s *DisputeStore) FindOpenByMilestone(_ context.Context, milestoneID uuid.UUID) (*entity.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.disputes {
		if d.MilestoneID == milestoneID && d.Status.IsOpen() {
			return d.Clone(), nil
		}
	}
	return nil, apperror.ErrDisputeNotFound
}

func (s *DisputeStore) LatestByRaiser(_ context.Context, milestoneID, raisedBy uuid.UUID) (*entity.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *entity.Dispute
	for _, d := range s.disputes {
		if d.MilestoneID != milestoneID || d.RaisedBy != raisedBy {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, apperror.ErrDisputeNotFound
	}
	return latest.Clone(), nil
}

func (s *DisputeStore) ListByProject(_ context.Context, projectID uuid.UUID) ([]*entity.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Dispute
	for _, d := range s.disputes {
		if d.ProjectID == projectID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *DisputeStore) ListByStatus(_ context.Context, status valueobject.DisputeStatus, limit int) ([]*entity.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Dispute
	for _, d := range s.disputes {
		if d.Status == status {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return paginate(out, limit, 0), nil
}

func (s *DisputeStore) CountOpenByProject(_ context.Context, projectID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, d := range s.disputes {
		if d.ProjectID == projectID && d.Status.IsOpen() {
			n++
		}
	}
	return n, nil
}
