package services

import (
	"context"
	"fmt"

	"github.com/edudati/openheal-research/repositories"
)

// Principal is the authenticated researcher behind a request.
type Principal struct {
	ResearcherID string
	IsSuperuser  bool
}

// AccessPolicy decides which studies a researcher may see. Superusers see
// everything; other researchers only the studies they are linked to.
type AccessPolicy struct {
	researchers repositories.ResearcherRepository
}

func NewAccessPolicy(researchers repositories.ResearcherRepository) *AccessPolicy {
	return &AccessPolicy{researchers: researchers}
}

// AllowedStudyIDs returns nil for "all studies" and a possibly empty list
// otherwise.
func (p *AccessPolicy) AllowedStudyIDs(ctx context.Context, principal Principal) ([]string, error) {
	if principal.IsSuperuser {
		return nil, nil
	}
	if principal.ResearcherID == "" {
		return []string{}, nil
	}
	ids, err := p.researchers.StudyIDs(ctx, principal.ResearcherID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allowed studies: %w", err)
	}
	return ids, nil
}

func (p *AccessPolicy) CanAccessStudy(ctx context.Context, principal Principal, studyID string) (bool, error) {
	allowed, err := p.AllowedStudyIDs(ctx, principal)
	if err != nil {
		return false, err
	}
	if allowed == nil {
		return true, nil
	}
	for _, id := range allowed {
		if id == studyID {
			return true, nil
		}
	}
	return false, nil
}

// CanManageStudies reports whether the principal may create studies.
func (p *AccessPolicy) CanManageStudies(principal Principal) bool {
	return principal.IsSuperuser
}

// requireStudy returns ErrForbiddenOperation unless the principal may access
// the study.
func (p *AccessPolicy) requireStudy(ctx context.Context, principal Principal, studyID string) error {
	ok, err := p.CanAccessStudy(ctx, principal, studyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbiddenOperation
	}
	return nil
}
