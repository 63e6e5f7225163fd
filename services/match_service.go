package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/repositories"
)

type ListMatchesInput struct {
	ParticipantID string
	IsActive      *bool
	IsUsed        *bool
}

// UpdateMatchInput is a generic partial update. Every column can be sent,
// but Save restores the OpenHeal-owned ones, so only the annotation fields
// and the flags actually change.
type UpdateMatchInput struct {
	ParticipantID  *string    `json:"participant_id"`
	PresetID       *int       `json:"preset_id"`
	LevelID        *int       `json:"level_id"`
	ResultID       *string    `json:"result_id"`
	Date           *time.Time `json:"date"`
	ScreenSize     *string    `json:"screen_size"`
	PhaseID        *int       `json:"phase_id"`
	InterventionID *int       `json:"intervention_id"`
	MomentID       *int       `json:"moment_id"`
	IsActive       *bool      `json:"is_active"`
	IsUsed         *bool      `json:"is_used"`
}

func (in UpdateMatchInput) apply(m *models.MatchRecord) {
	if in.ParticipantID != nil {
		m.ParticipantID = *in.ParticipantID
	}
	if in.PresetID != nil {
		m.PresetID = *in.PresetID
	}
	if in.LevelID != nil {
		m.LevelID = in.LevelID
	}
	if in.ResultID != nil {
		m.ResultID = *in.ResultID
	}
	if in.Date != nil {
		m.Date = *in.Date
	}
	if in.ScreenSize != nil {
		m.ScreenSize = in.ScreenSize
	}
	if in.PhaseID != nil {
		m.PhaseID = in.PhaseID
	}
	if in.InterventionID != nil {
		m.InterventionID = in.InterventionID
	}
	if in.MomentID != nil {
		m.MomentID = in.MomentID
	}
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
	if in.IsUsed != nil {
		m.IsUsed = *in.IsUsed
	}
}

type MatchService struct {
	matches      repositories.MatchRepository
	balls        repositories.BallRepository
	participants repositories.ParticipantRepository
	policy       *AccessPolicy
	logger       *slog.Logger
}

func NewMatchService(
	matches repositories.MatchRepository,
	balls repositories.BallRepository,
	participants repositories.ParticipantRepository,
	policy *AccessPolicy,
	logger *slog.Logger,
) *MatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchService{
		matches:      matches,
		balls:        balls,
		participants: participants,
		policy:       policy,
		logger:       logger,
	}
}

func (s *MatchService) List(ctx context.Context, principal Principal, input ListMatchesInput) ([]*models.MatchRecord, error) {
	allowed, err := s.policy.AllowedStudyIDs(ctx, principal)
	if err != nil {
		return nil, err
	}
	matches, err := s.matches.List(ctx, repositories.MatchFilter{
		ParticipantID: input.ParticipantID,
		StudyIDs:      allowed,
		IsActive:      input.IsActive,
		IsUsed:        input.IsUsed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return matches, nil
}

// load returns a match visible to the principal; others look missing.
func (s *MatchService) load(ctx context.Context, principal Principal, id string) (*models.MatchRecord, error) {
	m, err := s.matches.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match: %w", err)
	}
	p, err := s.participants.FindByID(ctx, m.ParticipantID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match participant: %w", err)
	}
	ok, err := s.policy.CanAccessStudy(ctx, principal, p.StudyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// Get returns the match with its ball events.
func (s *MatchService) Get(ctx context.Context, principal Principal, id string) (*models.MatchRecord, error) {
	m, err := s.load(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	balls, err := s.balls.ListByMatch(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match balls: %w", err)
	}
	m.Balls = balls
	return m, nil
}

func (s *MatchService) Update(ctx context.Context, principal Principal, id string, input UpdateMatchInput) (*models.MatchRecord, error) {
	m, err := s.load(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	input.apply(m)
	if err := s.matches.Save(ctx, nil, m); err != nil {
		return nil, fmt.Errorf("failed to save match: %w", err)
	}
	s.logger.Info("match updated", slog.String("match_id", m.ID), slog.String("participant_id", m.ParticipantID))
	return m, nil
}
