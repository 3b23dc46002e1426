package validators

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tillpoint/tillpoint/internal/staff"
)

// Service enumerates approval candidates for a store: its managers plus all
// admins, excluding the caller, partitioned by PIN availability.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListCandidates returns the candidates visible to the actor for storeID.
func (s *Service) ListCandidates(ctx context.Context, actor *staff.Actor, storeID int64) (Candidates, error) {
	if storeID == 0 {
		return Candidates{}, ErrStoreRequired
	}

	var managers, admins []CandidateRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		managers, err = s.repo.ManagersByStore(gctx, storeID)
		return err
	})
	g.Go(func() error {
		var err error
		admins, err = s.repo.Admins(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Candidates{}, err
	}

	result := Candidates{
		WithPin:    []Candidate{},
		WithoutPin: []Candidate{},
	}
	for _, row := range append(managers, admins...) {
		if row.ID == actor.ID {
			continue
		}
		if row.HasPin {
			result.WithPin = append(result.WithPin, row.Candidate)
		} else {
			result.WithoutPin = append(result.WithoutPin, row.Candidate)
		}
	}
	return result, nil
}
