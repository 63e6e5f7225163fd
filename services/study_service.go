package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/repositories"
	"github.com/google/uuid"
)

var studyCodePattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

type CreateStudyInput struct {
	Code        string     `json:"code"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	IsActive    *bool      `json:"is_active"`
}

type StudyService struct {
	studies repositories.StudyRepository
	policy  *AccessPolicy
}

func NewStudyService(studies repositories.StudyRepository, policy *AccessPolicy) *StudyService {
	return &StudyService{studies: studies, policy: policy}
}

func (in *CreateStudyInput) validate() error {
	fields := make(map[string]string)
	in.Code = strings.ToLower(strings.TrimSpace(in.Code))
	in.Title = strings.TrimSpace(in.Title)
	if in.Code == "" || len(in.Code) > 50 || !studyCodePattern.MatchString(in.Code) {
		fields["code"] = "code must be a slug of at most 50 characters"
	}
	if in.Title == "" || len(in.Title) > 200 {
		fields["title"] = "title is required and must be at most 200 characters"
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		fields["end_date"] = "end date must not be before start date"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *StudyService) Create(ctx context.Context, principal Principal, input CreateStudyInput) (*models.Study, error) {
	if !s.policy.CanManageStudies(principal) {
		return nil, ErrForbiddenOperation
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	if _, err := s.studies.GetByCode(ctx, input.Code); err == nil {
		return nil, ErrStudyCodeConflict
	} else if !errors.Is(err, repositories.ErrStudyNotFound) {
		return nil, fmt.Errorf("failed to check study code: %w", err)
	}

	study := &models.Study{
		ID:          uuid.NewString(),
		Code:        input.Code,
		Title:       input.Title,
		Description: input.Description,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		IsActive:    input.IsActive == nil || *input.IsActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.studies.Create(ctx, study); err != nil {
		if errors.Is(err, repositories.ErrStudyCodeConflict) {
			return nil, ErrStudyCodeConflict
		}
		return nil, fmt.Errorf("failed to create study: %w", err)
	}
	return study, nil
}

func (s *StudyService) List(ctx context.Context, principal Principal) ([]*models.Study, error) {
	allowed, err := s.policy.AllowedStudyIDs(ctx, principal)
	if err != nil {
		return nil, err
	}
	studies, err := s.studies.List(ctx, allowed)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	return studies, nil
}

func (s *StudyService) Get(ctx context.Context, principal Principal, id string) (*models.Study, error) {
	study, err := s.studies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrStudyNotFound) {
			return nil, ErrStudyNotFound
		}
		return nil, fmt.Errorf("failed to load study: %w", err)
	}
	ok, err := s.policy.CanAccessStudy(ctx, principal, study.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStudyNotFound
	}
	return study, nil
}
